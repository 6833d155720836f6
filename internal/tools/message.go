package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hearthside/domo/internal/delivery"
)

// DirectSendFunc attempts an immediate send on a channel adapter.
type DirectSendFunc func(ctx context.Context, channel, recipient, content string) error

// SendMessageTool sends a message to a user on a connected channel. Failed
// sends are handed to the delivery queue so they retry with backoff instead
// of getting lost.
type SendMessageTool struct {
	send  DirectSendFunc
	queue *delivery.Queue
}

func NewSendMessageTool(send DirectSendFunc, queue *delivery.Queue) *SendMessageTool {
	return &SendMessageTool{send: send, queue: queue}
}

func (t *SendMessageTool) Name() string { return "send_message" }

func (t *SendMessageTool) Description() string {
	return "Send a message to a user on a connected channel (telegram, discord, cli)"
}

func (t *SendMessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Target channel name, e.g. 'telegram'",
			},
			"recipient": map[string]interface{}{
				"type":        "string",
				"description": "Platform user or chat id to deliver to",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Message text",
			},
		},
		"required": []string{"channel", "recipient", "content"},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	channel, _ := args["channel"].(string)
	recipient, _ := args["recipient"].(string)
	content, _ := args["content"].(string)
	if channel == "" || recipient == "" || content == "" {
		return ErrorResult("channel, recipient and content are required")
	}

	if t.send != nil {
		if err := t.send(ctx, channel, recipient, content); err == nil {
			return SilentResult(fmt.Sprintf("message sent to %s on %s", recipient, channel))
		} else {
			slog.Warn("direct send failed, queueing for retry", "channel", channel, "error", err)
		}
	}

	if t.queue == nil {
		return ErrorResult("message could not be sent and no delivery queue is available")
	}
	item, err := t.queue.Enqueue(ctx, channel, recipient, content, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("send failed and enqueue failed: %v", err))
	}
	return SilentResult(fmt.Sprintf("message queued for delivery to %s on %s (item %d)", recipient, channel, item.ID))
}
