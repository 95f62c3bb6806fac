package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const issuedMessage = "Invite code sent successfully! Check your email in a few minutes."

// Option customises a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for issuance, expiry and throttling.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRand replaces the random source used for code generation.
func WithRand(src io.Reader) Option {
	return func(r *Registry) {
		if src != nil {
			r.rand = src
		}
	}
}

// WithPrefix sets the prefix of generated codes.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// WithRetention makes Prune drop records that expired more than d ago.
// Zero keeps records for the lifetime of the process.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		r.retention = d
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry owns every issued invite and the per-email request throttle.
// A single lock guards both maps; the notifier is always called without it.
type Registry struct {
	notifier  Notifier
	now       func() time.Time
	rand      io.Reader
	prefix    string
	retention time.Duration
	logger    zerolog.Logger

	gen codeGenerator

	mu       sync.RWMutex
	records  map[string]*Record
	throttle map[string]throttleEntry
}

// New builds a Registry that notifies recipients through notifier.
func New(notifier Notifier, opts ...Option) (*Registry, error) {
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}

	r := &Registry{
		notifier: notifier,
		now:      time.Now,
		rand:     rand.Reader,
		prefix:   DefaultPrefix,
		logger:   zerolog.Nop(),
		records:  make(map[string]*Record),
		throttle: make(map[string]throttleEntry),
	}
	for _, opt := range opts {
		opt(r)
	}

	gen, err := newCodeGenerator(r.prefix, r.rand)
	if err != nil {
		return nil, err
	}
	r.gen = gen

	return r, nil
}

// Request issues a new code for email and hands it to the notifier. When the
// notifier fails the code stays committed and ErrDispatchFailed is returned
// together with the issued code.
func (r *Registry) Request(ctx context.Context, email, name string) (Issued, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if !ValidEmail(email) {
		return Issued{}, ErrInvalidEmail
	}

	rec, err := r.commit(email, name)
	if err != nil {
		return Issued{}, err
	}

	issued := Issued{
		Code:      rec.Code,
		Email:     rec.Email,
		Name:      rec.Name,
		ExpiresAt: rec.ExpiresAt,
	}

	err = r.notifier.Notify(ctx, Notification{
		Email:     rec.Email,
		Name:      rec.Name,
		Code:      rec.Code,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("email", email).Msg("invite notification failed")
		return issued, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	issued.Message = issuedMessage
	return issued, nil
}

func (r *Registry) commit(email, name string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if entry, ok := r.throttle[email]; ok && now.Sub(entry.LastRequestAt) < Cooldown {
		return Record{}, ErrRateLimited
	}

	code, err := r.gen.unique(now, func(c string) bool {
		_, exists := r.records[c]
		return exists
	})
	if err != nil {
		return Record{}, fmt.Errorf("generate invite code: %w", err)
	}

	rec := &Record{
		Code:      code,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}
	r.records[code] = rec
	r.throttle[email] = throttleEntry{LastRequestAt: now, LastCode: code}

	r.logger.Info().Str("email", email).Time("expires_at", rec.ExpiresAt).Msg("invite code issued")
	return *rec, nil
}

// Redeem consumes code. A used code reports ErrAlreadyUsed even after it
// has expired.
func (r *Registry) Redeem(_ context.Context, code string) (Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[code]
	if !ok {
		return Redemption{}, ErrNotFound
	}
	if rec.Used {
		return Redemption{}, ErrAlreadyUsed
	}
	now := r.now()
	if now.After(rec.ExpiresAt) {
		return Redemption{}, ErrExpired
	}

	rec.Used = true
	rec.UsedAt = &now

	r.logger.Info().Str("email", rec.Email).Msg("invite code redeemed")
	return Redemption{Email: rec.Email, Name: rec.Name, RedeemedAt: now}, nil
}

// Lookup returns a copy of the record for code.
func (r *Registry) Lookup(code string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[code]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Stats scans all records.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var s Stats
	s.Total = len(r.records)
	for _, rec := range r.records {
		switch {
		case rec.Used:
			s.Used++
		case now.After(rec.ExpiresAt):
			s.Expired++
		}
	}
	s.Active = s.Total - s.Used - s.Expired
	return s
}

// Prune forgets throttle entries whose cooldown has elapsed and, when a
// retention is configured, records that expired longer ago than it. It
// returns the number of records removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for email, entry := range r.throttle {
		if now.Sub(entry.LastRequestAt) >= Cooldown {
			delete(r.throttle, email)
		}
	}

	if r.retention <= 0 {
		return 0
	}
	removed := 0
	for code, rec := range r.records {
		if now.Sub(rec.ExpiresAt) > r.retention {
			delete(r.records, code)
			removed++
		}
	}
	return removed
}
