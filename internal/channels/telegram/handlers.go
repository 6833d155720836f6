package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
)

// handleMessage admits, enriches, and forwards one incoming update.
func (a *Adapter) handleMessage(ctx context.Context, msg *telego.Message) {
	if isServiceMessage(msg) || msg.From == nil {
		return
	}

	user := msg.From
	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = userID + "|" + user.Username
	}
	isGroup := msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"
	chatID := fmt.Sprintf("%d", msg.Chat.ID)

	slog.Debug("telegram message",
		"chat", chatID, "group", isGroup, "user", senderID,
		"preview", channels.Truncate(msg.Text, 60))

	if isGroup {
		if !a.AdmitGroup(userID, user.Username) {
			return
		}
		if a.requireMention && !a.detectMention(msg) {
			return
		}
	} else {
		admitted, code := a.AdmitDM(ctx, userID, user.Username)
		if !admitted {
			if code != "" {
				a.sendPairingReply(ctx, msg.Chat.ID, code)
			}
			return
		}
	}

	content := msg.Text
	if msg.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += msg.Caption
	}

	media := a.resolveMedia(ctx, msg)
	var mediaPaths []string
	if len(media) > 0 {
		if tags := buildMediaTags(media); tags != "" {
			if content != "" {
				content = tags + "\n\n" + content
			} else {
				content = tags
			}
		}
		for i := range media {
			m := &media[i]
			if m.Type == "document" && m.FilePath != "" {
				doc, err := extractDocumentContent(m.FilePath, m.FileName)
				if err != nil {
					slog.Warn("document extraction failed", "file", m.FileName, "error", err)
				} else if doc != "" {
					content += "\n\n" + doc
				}
			}
			if m.FilePath != "" && m.Type == "image" {
				mediaPaths = append(mediaPaths, m.FilePath)
			}
		}
	}

	if strings.TrimSpace(content) == "" {
		return
	}

	wantsVoice := false
	for _, m := range media {
		if m.Type == "voice" && m.Transcript != "" {
			wantsVoice = a.cfg.VoiceReplies
		}
	}

	// Group messages carry the sender name so the agent knows who spoke.
	if isGroup {
		label := user.FirstName
		if user.Username != "" {
			label = "@" + user.Username
		}
		content = fmt.Sprintf("[From: %s]\n%s", label, content)
	}

	_ = a.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(msg.Chat.ID), telego.ChatActionTyping))

	a.Publish(bus.InboundMessage{
		SenderID:   userID,
		ChatID:     chatID,
		Username:   user.Username,
		Content:    content,
		Media:      mediaPaths,
		WantsVoice: wantsVoice,
	})
}

// sendPairingReply tells an unpaired sender how to get approved. Issue
// already debounced duplicates, so this fires once per code.
func (a *Adapter) sendPairingReply(ctx context.Context, chatID int64, code string) {
	text := fmt.Sprintf(
		"Hi! I don't know you yet. Give this pairing code to my owner to get access:\n\n%s\n\nThe code expires in 1 hour.",
		code)
	if _, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Warn("pairing reply failed", "error", err)
	}
}

// detectMention checks entities, captions, raw text, and reply-to-bot.
func (a *Adapter) detectMention(msg *telego.Message) bool {
	botUsername := a.bot.Username()
	if botUsername == "" {
		return false
	}
	handle := "@" + strings.ToLower(botUsername)

	for _, pair := range []struct {
		entities []telego.MessageEntity
		text     string
	}{
		{msg.Entities, msg.Text},
		{msg.CaptionEntities, msg.Caption},
	} {
		if pair.text == "" {
			continue
		}
		for _, entity := range pair.entities {
			if entity.Type != "mention" && entity.Type != "bot_command" {
				continue
			}
			if entity.Offset+entity.Length > len(pair.text) {
				continue
			}
			span := pair.text[entity.Offset : entity.Offset+entity.Length]
			if strings.Contains(strings.ToLower(span), handle) {
				return true
			}
		}
		if strings.Contains(strings.ToLower(pair.text), handle) {
			return true
		}
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return strings.EqualFold(msg.ReplyToMessage.From.Username, botUsername)
	}
	return false
}

// isServiceMessage filters member-joined, title-changed, and similar system
// updates that carry no user content.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil {
		return false
	}
	return true
}
