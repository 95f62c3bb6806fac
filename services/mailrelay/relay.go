package mailrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"curry2cakes/pkg/bus"
	"curry2cakes/pkg/mailer"
)

const (
	durableMail     = "mail-relay"
	durableActivity = "mail-relay-activity"

	// dedupeWindow bounds how long delivered envelope ids are remembered so
	// JetStream redeliveries of an already sent message are dropped.
	dedupeWindow = time.Hour
)

// Subscriber is the subset of *bus.Bus the relay consumes from.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, maxDeliver int, fn func(context.Context, []byte) error) (io.Closer, error)
}

// Relay drains queued invite emails from the bus and hands them to a Sender.
type Relay struct {
	sub        Subscriber
	sender     mailer.Sender
	maxDeliver int
	logger     zerolog.Logger
	now        func() time.Time

	sent     *prometheus.CounterVec
	activity *prometheus.CounterVec

	deliveredMu sync.Mutex
	delivered   map[string]time.Time

	subsMu sync.Mutex
	subs   []io.Closer
}

// New creates a relay bound to the provided dependencies.
func New(sub Subscriber, sender mailer.Sender, maxDeliver int, logger zerolog.Logger) (*Relay, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}

	return &Relay{
		sub:        sub,
		sender:     sender,
		maxDeliver: maxDeliver,
		logger:     logger,
		now:        time.Now,
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curry2cakes",
			Subsystem: "mail_relay",
			Name:      "messages_total",
			Help:      "Outbound invite emails by result.",
		}, []string{"result"}),
		activity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curry2cakes",
			Subsystem: "mail_relay",
			Name:      "invite_events_total",
			Help:      "Invite lifecycle events observed on the bus.",
		}, []string{"subject"}),
		delivered: make(map[string]time.Time),
	}, nil
}

// Collectors exposes the relay metrics for registration.
func (r *Relay) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.sent, r.activity}
}

// Start registers the bus subscriptions.
func (r *Relay) Start(ctx context.Context) error {
	if r == nil {
		return errors.New("nil relay")
	}

	specs := []struct {
		subject    string
		durable    string
		maxDeliver int
		handler    func(context.Context, []byte) error
	}{
		{bus.SubjectMailOutbound, durableMail, r.maxDeliver, r.handleOutbound},
		{bus.SubjectInviteIssued, durableActivity + "-issued", 1, r.observe(bus.SubjectInviteIssued)},
		{bus.SubjectInviteRedeemed, durableActivity + "-redeemed", 1, r.observe(bus.SubjectInviteRedeemed)},
	}

	for _, spec := range specs {
		closer, err := r.sub.Subscribe(ctx, spec.subject, spec.durable, spec.maxDeliver, spec.handler)
		if err != nil {
			_ = r.Close()
			return fmt.Errorf("subscribe %s: %w", spec.subject, err)
		}
		r.subsMu.Lock()
		r.subs = append(r.subs, closer)
		r.subsMu.Unlock()
	}
	return nil
}

// Close tears down active subscriptions.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}

	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	var firstErr error
	for _, sub := range r.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.subs = nil
	return firstErr
}

func (r *Relay) handleOutbound(ctx context.Context, data []byte) error {
	var env mailer.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Redelivering a payload that cannot be decoded never helps.
		r.sent.WithLabelValues("malformed").Inc()
		r.logger.Error().Err(err).Msg("drop malformed mail envelope")
		return nil
	}
	if err := env.Message.Validate(); err != nil {
		r.sent.WithLabelValues("malformed").Inc()
		r.logger.Error().Err(err).Str("envelope_id", env.ID).Msg("drop invalid mail envelope")
		return nil
	}

	if r.seen(env.ID) {
		r.sent.WithLabelValues("duplicate").Inc()
		return nil
	}

	id, err := r.sender.Send(ctx, env.Message)
	if err != nil {
		r.sent.WithLabelValues("failed").Inc()
		r.logger.Warn().Err(err).Str("envelope_id", env.ID).Str("to", env.Message.To).Msg("mail delivery failed")
		return err
	}

	r.markDelivered(env.ID)
	r.sent.WithLabelValues("sent").Inc()
	r.logger.Info().
		Str("envelope_id", env.ID).
		Str("message_id", id).
		Str("to", env.Message.To).
		Msg("invite email delivered")
	return nil
}

func (r *Relay) observe(subject string) func(context.Context, []byte) error {
	return func(_ context.Context, data []byte) error {
		r.activity.WithLabelValues(subject).Inc()
		r.logger.Debug().Str("subject", subject).RawJSON("event", jsonOrNull(data)).Msg("invite event")
		return nil
	}
}

func jsonOrNull(data []byte) []byte {
	if json.Valid(data) {
		return data
	}
	return []byte("null")
}

func (r *Relay) seen(id string) bool {
	if id == "" {
		return false
	}
	r.deliveredMu.Lock()
	defer r.deliveredMu.Unlock()
	_, ok := r.delivered[id]
	return ok
}

func (r *Relay) markDelivered(id string) {
	if id == "" {
		return
	}
	now := r.now()

	r.deliveredMu.Lock()
	defer r.deliveredMu.Unlock()
	for k, at := range r.delivered {
		if now.Sub(at) > dedupeWindow {
			delete(r.delivered, k)
		}
	}
	r.delivered[id] = now
}
