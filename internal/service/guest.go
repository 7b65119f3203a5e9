package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/llmgate/internal/domain"
)

type GuestService struct {
	store  Store
	alerts AlertSink
}

func NewGuestService(store Store, alerts AlertSink) *GuestService {
	return &GuestService{store: store, alerts: alerts}
}

// FindOrCreate returns the guest for a platform user id, registering it on first contact.
func (s *GuestService) FindOrCreate(ctx context.Context, name string) (domain.Guest, error) {
	guest, created, err := s.store.UpsertGuest(ctx, name)
	if err != nil {
		return domain.Guest{}, fmt.Errorf("upsert guest: %w", err)
	}
	if created {
		slog.Info("guest registered", "guest", name)
		s.alerts.Notify(ctx, domain.Event{
			Type:      domain.EventGuest,
			GuestName: name,
			CreatedAt: time.Now(),
		})
	}
	return guest, nil
}
