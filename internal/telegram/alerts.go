package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/llmgate/internal/config"
	"github.com/set-night/llmgate/internal/domain"
)

// AlertSink forwards events to topics of an ops chat. Notify only enqueues;
// Run delivers until its context is done.
type AlertSink struct {
	bot    *bot.Bot
	chatID int64
	topics map[domain.EventType]int
	queue  chan domain.Event
}

func NewAlertSink(b *bot.Bot, cfg *config.Config) *AlertSink {
	return &AlertSink{
		bot:    b,
		chatID: cfg.LogTelegramChatID,
		topics: map[domain.EventType]int{
			domain.EventError:     cfg.LogTopicError,
			domain.EventOverdraft: cfg.LogTopicOverdraft,
			domain.EventSecurity:  cfg.LogTopicSecurity,
			domain.EventTopUp:     cfg.LogTopicBalance,
			domain.EventGuest:     cfg.LogTopicGuest,
		},
		queue: make(chan domain.Event, config.AlertQueueSize),
	}
}

func (s *AlertSink) Notify(ctx context.Context, e domain.Event) {
	if _, ok := s.topics[e.Type]; !ok {
		return
	}
	select {
	case s.queue <- e:
	default:
		slog.Warn("telegram alert queue full, dropping", "type", e.Type)
	}
}

func (s *AlertSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.queue:
			s.send(ctx, e)
		}
	}
}

func (s *AlertSink) send(ctx context.Context, e domain.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.AlertSendTimeout)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID: s.chatID,
		Text:   truncate(FormatEvent(e), config.MaxTelegramMessageLen),
	}
	// Topic 0 is the chat's general thread.
	if topic := s.topics[e.Type]; topic != 0 {
		params.MessageThreadID = topic
	}

	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		slog.Error("failed to send telegram alert", "type", e.Type, "error", err)
	}
}

// FormatEvent renders an event as plain text.
func FormatEvent(e domain.Event) string {
	var sb strings.Builder
	switch e.Type {
	case domain.EventOverdraft:
		sb.WriteString("⚠️ Overdraft")
	case domain.EventSecurity:
		sb.WriteString("🚨 Security")
	case domain.EventError:
		sb.WriteString("❌ Error")
	case domain.EventTopUp:
		sb.WriteString("💰 Top-up")
	case domain.EventGuest:
		sb.WriteString("👤 New guest")
	default:
		sb.WriteString(string(e.Type))
	}
	sb.WriteString("\n")

	if e.GuestName != "" {
		fmt.Fprintf(&sb, "\nGuest: %s", e.GuestName)
	}
	if !e.Delta.IsZero() {
		fmt.Fprintf(&sb, "\nDelta: %s", e.Delta.String())
	}
	if e.Detail != "" {
		fmt.Fprintf(&sb, "\nDetail: %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, "\nError: %s", e.Err.Error())
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(&sb, "\nTime: %s", at.Format("2006-01-02 15:04:05"))
	return sb.String()
}

func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-20]) + "\n\n... (truncated)"
}
