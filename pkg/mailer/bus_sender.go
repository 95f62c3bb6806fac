package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"curry2cakes/pkg/bus"
)

// Publisher is the subset of *bus.Bus used to queue outbound mail.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Envelope is the outbound mail payload carried on the bus.
type Envelope struct {
	ID      string  `json:"id"`
	Message Message `json:"message"`
}

// BusSender queues messages on JetStream for the mail relay. A message
// counts as sent once the stream acknowledged it.
type BusSender struct {
	pub     Publisher
	subject string
}

// NewBusSender returns a BusSender publishing to bus.SubjectMailOutbound.
func NewBusSender(pub Publisher) (*BusSender, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	return &BusSender{pub: pub, subject: bus.SubjectMailOutbound}, nil
}

// Send publishes msg and returns the envelope id.
func (s *BusSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	env := Envelope{ID: uuid.NewString(), Message: msg}
	if err := s.pub.Publish(ctx, s.subject, env); err != nil {
		return "", fmt.Errorf("queue message: %w", err)
	}
	return env.ID, nil
}
