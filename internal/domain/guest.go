package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Guest is an end-user account keyed by the platform user id.
type Guest struct {
	ID        GuestID
	Name      string
	Credit    decimal.Decimal
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
