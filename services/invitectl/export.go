package invitectl

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"

	"curry2cakes/pkg/audit"
)

const (
	exportPrefix      = "audit/"
	exportSuffix      = ".jsonl.zst.age"
	exportContentType = "application/octet-stream"
)

// ExportResult describes a finished export.
type ExportResult struct {
	Events int
	Bytes  int64
	SHA256 string
	Key    string
	Path   string
}

// Export writes audit events as JSON lines, compresses them with zstd and
// encrypts the stream to an age recipient. The result goes to a local file,
// an S3 bucket, or both.
func Export(ctx context.Context, cfg ExportConfig) (*ExportResult, error) {
	if cfg.Source == nil {
		return nil, errors.New("event source is required")
	}
	if cfg.Output == "" && cfg.Bucket == "" {
		return nil, errors.New("output file or bucket is required")
	}
	if cfg.Bucket != "" && cfg.S3 == nil {
		return nil, errors.New("s3 client is required for bucket uploads")
	}
	recipient, err := age.ParseX25519Recipient(strings.TrimSpace(cfg.Recipient))
	if err != nil {
		return nil, fmt.Errorf("parse recipient: %w", err)
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	events, err := cfg.Source(ctx, cfg.Since, cfg.Limit)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encodeEvents(&buf, recipient, events); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(buf.Bytes())
	result := &ExportResult{
		Events: len(events),
		Bytes:  int64(buf.Len()),
		SHA256: hex.EncodeToString(sum[:]),
	}

	if cfg.Output != "" {
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create output dir: %w", err)
			}
		}
		if err := os.WriteFile(cfg.Output, buf.Bytes(), 0o600); err != nil {
			return nil, fmt.Errorf("write export: %w", err)
		}
		result.Path = cfg.Output
		fmt.Fprintf(stdout, "wrote %d events to %s\n", result.Events, cfg.Output)
	}

	if cfg.Bucket != "" {
		key := exportPrefix + now().UTC().Format("20060102T150405Z") + exportSuffix
		if err := cfg.S3.PutObject(ctx, cfg.Bucket, key, exportContentType, bytes.NewReader(buf.Bytes()), result.Bytes, result.SHA256); err != nil {
			return nil, fmt.Errorf("upload export: %w", err)
		}
		result.Key = key
		fmt.Fprintf(stdout, "uploaded %d events to s3://%s/%s\n", result.Events, cfg.Bucket, key)
	}

	return result, nil
}

func encodeEvents(w io.Writer, recipient age.Recipient, events []audit.Event) error {
	encrypted, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("age encrypt: %w", err)
	}
	encoder, err := zstd.NewWriter(encrypted)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	if err := writeLines(encoder, events); err != nil {
		encoder.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return fmt.Errorf("close age writer: %w", err)
	}
	return nil
}

func writeLines(w io.Writer, events []audit.Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}

// Decrypt reverses Export. identities holds one or more age identities in
// the age-keygen file format; the decompressed JSON lines are written to w.
func Decrypt(r io.Reader, identities string, w io.Writer) error {
	ids, err := age.ParseIdentities(strings.NewReader(identities))
	if err != nil {
		return fmt.Errorf("parse identity: %w", err)
	}
	plain, err := age.Decrypt(r, ids...)
	if err != nil {
		return fmt.Errorf("age decrypt: %w", err)
	}
	decoder, err := zstd.NewReader(plain)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	if _, err := io.Copy(w, decoder); err != nil {
		return fmt.Errorf("decompress export: %w", err)
	}
	return nil
}
