package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSender pretends to deliver messages by logging them. It is the default
// transport for local development.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender returns a LogSender writing to logger.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs msg and returns a mock message id.
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := "mock-" + uuid.NewString()
	s.logger.Info().
		Str("message_id", id).
		Str("to", msg.To).
		Str("from", msg.From).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("email sent (mock)")
	return id, nil
}
