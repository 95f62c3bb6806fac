package invite

import (
	"context"
	"time"
)

const (
	// Cooldown is the minimum interval between two issued codes for one email.
	Cooldown = 5 * time.Minute
	// TTL is how long an issued code stays redeemable.
	TTL = 30 * 24 * time.Hour
)

// Record is an issued invite code. ExpiresAt never changes and Used never
// reverts once set.
type Record struct {
	Code      string     `json:"code"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

type throttleEntry struct {
	LastRequestAt time.Time
	LastCode      string
}

// Stats aggregates the registry contents at a point in time.
type Stats struct {
	Total   int `json:"total" yaml:"total"`
	Used    int `json:"used" yaml:"used"`
	Expired int `json:"expired" yaml:"expired"`
	Active  int `json:"active" yaml:"active"`
}

// Issued describes a successfully requested code.
type Issued struct {
	Code      string
	Email     string
	Name      string
	ExpiresAt time.Time
	Message   string
}

// Redemption describes a successfully consumed code.
type Redemption struct {
	Email      string
	Name       string
	RedeemedAt time.Time
}

// Notification is handed to the Notifier after a code has been committed.
type Notification struct {
	Email     string
	Name      string
	Code      string
	ExpiresAt time.Time
}

// Notifier delivers a freshly issued code to its recipient.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f(ctx, n).
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
