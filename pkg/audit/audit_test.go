package audit

import (
	"context"
	"testing"
	"time"
)

func TestCodeHint(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"C2CABCD12345", "C2C...45"},
		{"ABCDEF", "ABC...EF"},
		{"SHORT", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		if got := CodeHint(tt.code); got != tt.want {
			t.Errorf("CodeHint(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestNewRecorderRequiresORM(t *testing.T) {
	if _, err := NewRecorder(nil); err == nil {
		t.Fatalf("expected error for nil orm")
	}
}

func TestListRequiresPool(t *testing.T) {
	if _, err := List(context.Background(), nil, time.Time{}, 0); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}
