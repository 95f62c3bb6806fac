// Package audit keeps an append-only trail of invite requests and redemptions.
// Raw codes are never written; only a short hint survives.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"curry2cakes/pkg/db"
)

const (
	ActionRequest = "invite.request"
	ActionRedeem  = "invite.redeem"

	ResultOK = "ok"
)

// Event is one row of the invite_audit table.
type Event struct {
	ID         uuid.UUID         `json:"id" db:"id" gorm:"type:uuid;primaryKey"`
	Action     string            `json:"action" db:"action" gorm:"type:text;not null;index"`
	Result     string            `json:"result" db:"result" gorm:"type:text;not null"`
	Email      string            `json:"email,omitempty" db:"email" gorm:"type:text;index"`
	CodeHint   string            `json:"code_hint,omitempty" db:"code_hint" gorm:"type:text"`
	RemoteAddr string            `json:"remote_addr,omitempty" db:"remote_addr" gorm:"type:text"`
	RequestID  string            `json:"request_id,omitempty" db:"request_id" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" db:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at" gorm:"type:timestamptz;not null"`
}

func (Event) TableName() string { return "invite_audit" }

// CodeHint keeps the first three and last two characters of code.
func CodeHint(code string) string {
	if len(code) <= 5 {
		return "***"
	}
	return code[:3] + "..." + code[len(code)-2:]
}

// Recorder writes events through gorm.
type Recorder struct {
	orm *gorm.DB
	now func() time.Time
}

// NewRecorder returns a Recorder bound to orm.
func NewRecorder(orm *gorm.DB) (*Recorder, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &Recorder{orm: orm, now: time.Now}, nil
}

// Record stores ev, filling in its id and timestamp when unset.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	if ev.Action == "" {
		return errors.New("audit action is required")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	if ev.Result == "" {
		ev.Result = ResultOK
	}

	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()

	if err := r.orm.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// List returns events created at or after since, oldest first.
func List(ctx context.Context, pool *pgxpool.Pool, since time.Time, limit int) ([]Event, error) {
	if pool == nil {
		return nil, errors.New("nil pool provided")
	}
	if limit <= 0 {
		limit = 10000
	}

	query := `
        SELECT id, action, result, email, code_hint, remote_addr, request_id, metadata, created_at
        FROM invite_audit
        WHERE created_at >= $1
        ORDER BY created_at ASC
        LIMIT $2
    `

	var events []Event
	if err := db.Select(ctx, pool, &events, query, since.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
