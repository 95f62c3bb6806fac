package invitectl

import (
	"context"
	"io"
	"net/http"
	"time"

	"curry2cakes/pkg/audit"
)

// EventSource loads audit events created at or after since.
type EventSource func(ctx context.Context, since time.Time, limit int) ([]audit.Event, error)

// Uploader stores an object in S3-compatible storage.
type Uploader interface {
	PutObject(ctx context.Context, bucket, key, contentType string, r io.Reader, size int64, sha256 string) error
}

// ExportConfig configures an encrypted audit export.
type ExportConfig struct {
	Source    EventSource
	Since     time.Time
	Limit     int
	Recipient string
	// Output is a local destination file. Optional when Bucket is set.
	Output string
	Bucket string
	S3     Uploader
	Now    func() time.Time
	Stdout io.Writer
}

// StatsConfig configures a stats query against a running API.
type StatsConfig struct {
	APIBaseURL string
	HTTPClient *http.Client
	Format     string
	Stdout     io.Writer
}
