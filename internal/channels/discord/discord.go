// Package discord connects the runtime to Discord over the gateway. DMs
// follow the pairing flow; guild channels require an @mention by default.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
	"github.com/hearthside/domo/internal/config"
)

// messageMaxLen is Discord's limit for one message.
const messageMaxLen = 2000

// Adapter is the Discord channel.
type Adapter struct {
	*channels.Base
	session        *discordgo.Session
	cfg            config.DiscordConfig
	botUserID      string
	requireMention bool
}

func New(cfg config.DiscordConfig, msgBus *bus.MessageBus, pairing *channels.Pairing) (*Adapter, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Adapter{
		Base:           channels.NewBase("discord", msgBus, cfg.AllowFrom, pairing, cfg.DMPolicy, cfg.GroupPolicy),
		session:        session,
		cfg:            cfg,
		requireMention: requireMention,
	}, nil
}

// Start opens the gateway connection.
func (a *Adapter) Start(_ context.Context) error {
	a.session.AddHandler(a.handleMessage)
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := a.session.User("@me")
	if err != nil {
		a.session.Close()
		return fmt.Errorf("fetch discord identity: %w", err)
	}
	a.botUserID = user.ID
	slog.Info("discord connected", "username", user.Username)
	return nil
}

func (a *Adapter) Stop(_ context.Context) error {
	return a.session.Close()
}

// Send delivers one outbound message, split at the platform limit. Markdown
// passes through untouched; Discord renders it natively.
func (a *Adapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("empty discord channel id")
	}
	for _, chunk := range channels.SplitMessage(msg.Content, messageMaxLen) {
		if chunk == "" {
			continue
		}
		if _, err := a.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	for _, att := range msg.Media {
		if err := a.sendAttachment(msg.ChatID, att); err != nil {
			slog.Warn("discord attachment failed", "path", att.Path, "error", err)
		}
	}
	return nil
}

func (a *Adapter) sendAttachment(channelID string, att bus.MediaAttachment) error {
	f, err := os.Open(att.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: att.Caption,
		Files: []*discordgo.File{{
			Name:        filepath.Base(att.Path),
			ContentType: att.ContentType,
			Reader:      f,
		}},
	})
	return err
}

// handleMessage admits and forwards one gateway message event.
func (a *Adapter) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	senderName := displayName(m)
	isDM := m.GuildID == ""
	ctx := context.Background()

	if isDM {
		admitted, code := a.AdmitDM(ctx, senderID, m.Author.Username)
		if !admitted {
			if code != "" {
				a.sendPairingReply(m.ChannelID, senderID, code)
			}
			return
		}
	} else {
		if !a.AdmitGroup(senderID, m.Author.Username) {
			return
		}
		if a.requireMention && !a.mentioned(m) {
			return
		}
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if strings.TrimSpace(content) == "" {
		return
	}
	if !isDM {
		content = fmt.Sprintf("[From: %s]\n%s", senderName, content)
	}

	_ = a.session.ChannelTyping(m.ChannelID)

	a.Publish(bus.InboundMessage{
		SenderID: senderID,
		ChatID:   m.ChannelID,
		Username: m.Author.Username,
		Content:  content,
	})
}

func (a *Adapter) mentioned(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == a.botUserID {
			return true
		}
	}
	return false
}

func (a *Adapter) sendPairingReply(channelID, senderID, code string) {
	text := fmt.Sprintf(
		"Access not configured.\n\nYour Discord user ID: %s\nPairing code: %s\n\nAsk the owner to approve with:\n  domo pairing approve %s",
		senderID, code, code)
	if _, err := a.session.ChannelMessageSend(channelID, text); err != nil {
		slog.Warn("discord pairing reply failed", "error", err)
	}
}

// displayName prefers server nickname, then global name, then username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
