package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOverdraft EventType = "overdraft"
	EventSecurity  EventType = "security"
	EventError     EventType = "error"
	EventTopUp     EventType = "top_up"
	EventGuest     EventType = "guest_registered"
)

// Event is raised toward the admin collaborator.
type Event struct {
	Type      EventType
	GuestName string
	// Delta is the true balance change, negative for overdrafts.
	Delta     decimal.Decimal
	Detail    string
	Err       error
	CreatedAt time.Time
}
