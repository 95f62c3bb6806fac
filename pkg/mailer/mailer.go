// Package mailer delivers invite notifications through pluggable senders.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"curry2cakes/infra/branding"
	"curry2cakes/pkg/invite"
	"curry2cakes/pkg/render"
)

const (
	// DefaultFrom is the sender address used when none is configured.
	DefaultFrom = "invites@curry2cakes.com"
	// InviteSubject is the subject line of invite emails.
	InviteSubject = "Your Exclusive Curry2Cakes Invite Code"

	inviteHTMLTemplate = "invite_email.html.tmpl"
	inviteTextTemplate = "invite_email.txt.tmpl"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Validate checks the fields every sender relies on.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return errors.New("message recipient is required")
	case strings.TrimSpace(m.From) == "":
		return errors.New("message sender is required")
	case m.HTML == "" && m.Text == "":
		return errors.New("message body is required")
	}
	return nil
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Dispatcher renders invite emails and hands them to a Sender. It satisfies
// invite.Notifier.
type Dispatcher struct {
	sender   Sender
	renderer *render.Engine
	brand    branding.Brand
	from     string
	now      func() time.Time
}

// NewDispatcher builds a Dispatcher. An empty from falls back to DefaultFrom.
func NewDispatcher(sender Sender, renderer *render.Engine, from string) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if strings.TrimSpace(from) == "" {
		from = DefaultFrom
	}
	brand, err := branding.Load()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{sender: sender, renderer: renderer, brand: brand, from: from, now: time.Now}, nil
}

// Compose renders the invite email for n.
func (d *Dispatcher) Compose(n invite.Notification) (Message, error) {
	validDays := int(math.Ceil(n.ExpiresAt.Sub(d.now()).Hours() / 24))
	if validDays < 1 {
		validDays = 1
	}
	data := map[string]any{
		"Name":      n.Name,
		"Code":      n.Code,
		"ValidDays": validDays,
		"ExpiresOn": n.ExpiresAt.UTC().Format("January 2, 2006"),
		"Brand":     d.brand,
	}

	html, err := d.renderer.Render(inviteHTMLTemplate, data)
	if err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	text, err := d.renderer.Render(inviteTextTemplate, data)
	if err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		To:      n.Email,
		From:    d.from,
		Subject: InviteSubject,
		HTML:    html,
		Text:    text,
	}, nil
}

// Notify composes and sends the invite email.
func (d *Dispatcher) Notify(ctx context.Context, n invite.Notification) error {
	msg, err := d.Compose(n)
	if err != nil {
		return err
	}
	if _, err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send invite email: %w", err)
	}
	return nil
}
