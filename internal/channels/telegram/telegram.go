// Package telegram connects the runtime to the Telegram Bot API via long
// polling. DMs follow the pairing flow, groups are gated on an @mention,
// and voice notes are transcribed before reaching the agent.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
	"github.com/hearthside/domo/internal/config"
)

// messageMaxLen is the Bot API limit for one message.
const messageMaxLen = 4096

// Transcriber turns a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Speaker turns reply text into audio for voice replies.
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Adapter is the Telegram channel.
type Adapter struct {
	*channels.Base
	bot            *telego.Bot
	cfg            config.TelegramConfig
	transcriber    Transcriber
	speaker        Speaker
	requireMention bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// Options carries the optional voice services.
type Options struct {
	Transcriber Transcriber
	Speaker     Speaker
}

func New(cfg config.TelegramConfig, msgBus *bus.MessageBus, pairing *channels.Pairing, opts Options) (*Adapter, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Adapter{
		Base:           channels.NewBase("telegram", msgBus, cfg.AllowFrom, pairing, cfg.DMPolicy, cfg.GroupPolicy),
		bot:            bot,
		cfg:            cfg,
		transcriber:    opts.Transcriber,
		speaker:        opts.Speaker,
		requireMention: requireMention,
	}, nil
}

// Start begins long polling and returns once the update stream is live.
func (a *Adapter) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	a.pollCancel = cancel
	a.pollDone = make(chan struct{})

	updates, err := a.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram connected", "username", a.bot.Username())

	go func() {
		defer close(a.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram update stream closed")
					return
				}
				if update.Message != nil {
					a.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels polling and waits for the update loop so Telegram releases
// the getUpdates lock before any restart.
func (a *Adapter) Stop(_ context.Context) error {
	if a.pollCancel != nil {
		a.pollCancel()
	}
	if a.pollDone != nil {
		select {
		case <-a.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling did not exit within timeout")
		}
	}
	return nil
}

// Send delivers one outbound message, splitting it at the platform limit.
// Voice replies are attempted first when requested; on failure the text path
// still runs.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}

	if msg.AsVoice && a.cfg.VoiceReplies && a.speaker != nil && msg.Content != "" {
		if err := a.sendVoice(ctx, chatID, msg.Content); err == nil {
			a.sendAttachments(ctx, chatID, msg.Media)
			return nil
		} else {
			slog.Warn("voice reply failed, falling back to text", "error", err)
		}
	}

	for _, chunk := range channels.SplitMessage(msg.Content, messageMaxLen) {
		if chunk == "" {
			continue
		}
		if err := a.sendText(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	a.sendAttachments(ctx, chatID, msg.Media)
	return nil
}

// sendText tries Telegram HTML first and degrades to plain text when the
// rendered markup is rejected.
func (a *Adapter) sendText(ctx context.Context, chatID int64, text string) error {
	html := MarkdownToHTML(text)
	params := tu.Message(tu.ID(chatID), html)
	params.ParseMode = telego.ModeHTML
	if _, err := a.bot.SendMessage(ctx, params); err == nil {
		return nil
	}
	plain := channels.PlainText(text)
	if _, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), plain)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (a *Adapter) sendVoice(ctx context.Context, chatID int64, text string) error {
	audio, err := a.speaker.Speak(ctx, channels.PlainText(text))
	if err != nil {
		return fmt.Errorf("synthesize voice: %w", err)
	}
	voice := tu.Voice(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(audio), "reply.ogg")))
	if _, err := a.bot.SendVoice(ctx, voice); err != nil {
		return fmt.Errorf("telegram send voice: %w", err)
	}
	return nil
}

// sendAttachments sends media files best-effort; a failed attachment is
// logged, not fatal, since the text already went out.
func (a *Adapter) sendAttachments(ctx context.Context, chatID int64, media []bus.MediaAttachment) {
	for _, att := range media {
		f, err := os.Open(att.Path)
		if err != nil {
			slog.Warn("attachment unreadable", "path", att.Path, "error", err)
			continue
		}
		if isImageType(att.ContentType) {
			photo := tu.Photo(tu.ID(chatID), tu.File(f))
			photo.Caption = att.Caption
			_, err = a.bot.SendPhoto(ctx, photo)
		} else {
			doc := tu.Document(tu.ID(chatID), tu.File(f))
			doc.Caption = att.Caption
			_, err = a.bot.SendDocument(ctx, doc)
		}
		f.Close()
		if err != nil {
			slog.Warn("attachment send failed", "path", att.Path, "error", err)
		}
	}
}

func isImageType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

func parseChatID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}
