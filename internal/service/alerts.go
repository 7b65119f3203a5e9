package service

import (
	"context"
	"log/slog"

	"github.com/set-night/llmgate/internal/domain"
)

// AlertSink receives events meant for operators. Notify must not block the caller
// for long and never fails the request.
type AlertSink interface {
	Notify(ctx context.Context, e domain.Event)
}

// LogAlertSink writes events to the default slog logger.
type LogAlertSink struct{}

func (LogAlertSink) Notify(ctx context.Context, e domain.Event) {
	level := slog.LevelInfo
	switch e.Type {
	case domain.EventOverdraft, domain.EventSecurity:
		level = slog.LevelWarn
	case domain.EventError:
		level = slog.LevelError
	}

	attrs := []any{"type", e.Type}
	if e.GuestName != "" {
		attrs = append(attrs, "guest", e.GuestName)
	}
	if !e.Delta.IsZero() {
		attrs = append(attrs, "delta", e.Delta.String())
	}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}
	slog.Log(ctx, level, "alert", attrs...)
}

// MultiAlertSink fans an event out to every sink.
type MultiAlertSink []AlertSink

func (m MultiAlertSink) Notify(ctx context.Context, e domain.Event) {
	for _, s := range m {
		s.Notify(ctx, e)
	}
}
