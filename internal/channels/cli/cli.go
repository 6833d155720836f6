// Package cli is a line-oriented REPL channel on stdin/stdout. The local
// user is implicitly trusted, so no pairing applies.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
)

const localUser = "local"

// Adapter reads prompts from stdin and prints replies to stdout.
type Adapter struct {
	*channels.Base
	out  *os.File
	done chan struct{}
}

func New(msgBus *bus.MessageBus) *Adapter {
	return &Adapter{
		Base: channels.NewBase("cli", msgBus, nil, nil, string(channels.DMPolicyOpen), ""),
		out:  os.Stdout,
		done: make(chan struct{}),
	}
}

// Start launches the read loop. EOF on stdin ends it.
func (a *Adapter) Start(ctx context.Context) error {
	go a.readLoop(ctx)
	return nil
}

func (a *Adapter) Stop(_ context.Context) error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	fmt.Fprintln(a.out, "domo ready. Type a message, Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		a.Publish(bus.InboundMessage{
			SenderID: localUser,
			ChatID:   localUser,
			Username: localUser,
			Content:  line,
		})
	}
}

// Send prints the reply as plain text.
func (a *Adapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	fmt.Fprintln(a.out, channels.PlainText(msg.Content))
	for _, att := range msg.Media {
		fmt.Fprintf(a.out, "[attachment: %s]\n", att.Path)
	}
	return nil
}
