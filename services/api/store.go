package api

import (
	"context"

	"curry2cakes/pkg/audit"
)

// Auditor persists audit events.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Store holds optional external dependencies required by the API layer.
// Nil members disable the matching side effect.
type Store struct {
	Audit Auditor
	Bus   Publisher
	// Ready reports whether backing services are reachable.
	Ready func(ctx context.Context) error
}
