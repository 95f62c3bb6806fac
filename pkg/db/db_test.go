package db

import (
	"context"
	"io/fs"
	"testing"
)

func TestNilPool(t *testing.T) {
	if _, err := ORM(nil); err == nil {
		t.Fatalf("ORM(nil) expected error")
	}
	if _, err := Migrate(context.Background(), nil); err == nil {
		t.Fatalf("Migrate(nil) expected error")
	}
}

func TestOpenRejectsBadDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Fatalf("expected malformed DSN to fail")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationsFS, migrationsDir+"/*.go")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no migrations embedded")
	}
}
