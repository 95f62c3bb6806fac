package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	fail  error
	onRun func()
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	if n.onRun != nil {
		n.onRun()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *fakeClock, *recordingNotifier) {
	t.Helper()
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	reg, err := New(notifier, append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return reg, clock, notifier
}

func mustRequest(t *testing.T, reg *Registry, email string) Issued {
	t.Helper()
	issued, err := reg.Request(context.Background(), email, "")
	if err != nil {
		t.Fatalf("Request(%q) error = %v", email, err)
	}
	return issued
}

func TestRequestIssuesUniqueCodes(t *testing.T) {
	reg, _, notifier := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		issued := mustRequest(t, reg, fmt.Sprintf("guest%d@curry2cakes.com", i))
		if len(issued.Code) != CodeLength {
			t.Fatalf("code %q has length %d, want %d", issued.Code, len(issued.Code), CodeLength)
		}
		if !strings.HasPrefix(issued.Code, DefaultPrefix) {
			t.Fatalf("code %q missing prefix %q", issued.Code, DefaultPrefix)
		}
		if seen[issued.Code] {
			t.Fatalf("code %q issued twice", issued.Code)
		}
		seen[issued.Code] = true
		if issued.Message == "" {
			t.Fatalf("expected confirmation message")
		}
	}

	if got := len(notifier.sent); got != 200 {
		t.Fatalf("notifier called %d times, want 200", got)
	}
}

func TestRequestRecordsFields(t *testing.T) {
	reg, clock, notifier := newTestRegistry(t)

	issued, err := reg.Request(context.Background(), "  ana@curry2cakes.com ", "Ana")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	rec, ok := reg.Lookup(issued.Code)
	if !ok {
		t.Fatalf("record for %q not stored", issued.Code)
	}
	if rec.Email != "ana@curry2cakes.com" || rec.Name != "Ana" {
		t.Fatalf("record = %+v, want trimmed email and name", rec)
	}
	if !rec.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("CreatedAt = %v, want %v", rec.CreatedAt, clock.Now())
	}
	if want := clock.Now().Add(30 * 24 * time.Hour); !rec.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", rec.ExpiresAt, want)
	}
	if rec.Used || rec.UsedAt != nil {
		t.Fatalf("fresh record marked used: %+v", rec)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].Code != issued.Code || notifier.sent[0].Name != "Ana" {
		t.Fatalf("notification = %+v", notifier.sent)
	}
}

func TestRecordJSON(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	issued := mustRequest(t, reg, "json@curry2cakes.com")
	if _, err := reg.Redeem(context.Background(), issued.Code); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	rec, _ := reg.Lookup(issued.Code)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	want := []string{"code", "email", "name", "created_at", "expires_at", "used", "used_at"}
	if len(got) != len(want) {
		t.Fatalf("record keys = %v, want %v", got, want)
	}
	for _, k := range want {
		if _, ok := got[k]; !ok {
			t.Fatalf("record JSON missing %q: %s", k, data)
		}
	}
	if got["used"] != true {
		t.Fatalf("used = %v", got["used"])
	}
}

func TestRequestInvalidEmail(t *testing.T) {
	reg, _, notifier := newTestRegistry(t)

	tests := []string{
		"no-at-sign",
		"@missing-local.com",
		"missing-domain@",
		"user@nodot",
		"two words@curry2cakes.com",
		"",
	}
	for _, email := range tests {
		t.Run(email, func(t *testing.T) {
			_, err := reg.Request(context.Background(), email, "")
			if !errors.Is(err, ErrInvalidEmail) {
				t.Fatalf("Request(%q) error = %v, want ErrInvalidEmail", email, err)
			}
		})
	}

	if s := reg.Stats(); s.Total != 0 {
		t.Fatalf("invalid requests created records: %+v", s)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("notifier called for invalid emails")
	}
}

func TestRequestRateLimited(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	const email = "ravi@curry2cakes.com"

	mustRequest(t, reg, email)

	clock.Advance(Cooldown - time.Second)
	_, err := reg.Request(context.Background(), email, "")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second Request() error = %v, want ErrRateLimited", err)
	}
	if !strings.Contains(Message(err), "5 minutes") {
		t.Fatalf("rate limit message %q does not mention the cooldown", Message(err))
	}

	mustRequest(t, reg, "other@curry2cakes.com")

	clock.Advance(time.Second)
	mustRequest(t, reg, email)

	if s := reg.Stats(); s.Total != 3 {
		t.Fatalf("Total = %d, want 3", s.Total)
	}
}

func TestRequestDispatchFailureKeepsCode(t *testing.T) {
	reg, clock, notifier := newTestRegistry(t)
	notifier.fail = errors.New("smtp down")

	issued, err := reg.Request(context.Background(), "maya@curry2cakes.com", "Maya")
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Request() error = %v, want ErrDispatchFailed", err)
	}
	if issued.Code == "" {
		t.Fatalf("expected issued code alongside dispatch failure")
	}

	red, err := reg.Redeem(context.Background(), issued.Code)
	if err != nil {
		t.Fatalf("Redeem() after failed dispatch error = %v", err)
	}
	if red.Email != "maya@curry2cakes.com" || red.Name != "Maya" {
		t.Fatalf("redemption = %+v", red)
	}

	notifier.fail = nil
	clock.Advance(time.Minute)
	if _, err := reg.Request(context.Background(), "maya@curry2cakes.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("throttle not committed on dispatch failure: %v", err)
	}
}

func TestRedeem(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	issued := mustRequest(t, reg, "ola@curry2cakes.com")

	clock.Advance(time.Hour)
	red, err := reg.Redeem(context.Background(), issued.Code)
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if red.Email != "ola@curry2cakes.com" {
		t.Fatalf("Email = %q", red.Email)
	}
	if !red.RedeemedAt.Equal(clock.Now()) {
		t.Fatalf("RedeemedAt = %v, want %v", red.RedeemedAt, clock.Now())
	}

	rec, _ := reg.Lookup(issued.Code)
	if !rec.Used || rec.UsedAt == nil || !rec.UsedAt.Equal(clock.Now()) {
		t.Fatalf("record not marked used: %+v", rec)
	}

	if _, err := reg.Redeem(context.Background(), issued.Code); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("second Redeem() error = %v, want ErrAlreadyUsed", err)
	}
}

func TestRedeemFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, reg *Registry, clock *fakeClock) string
		wantErr error
	}{
		{
			name: "unknown code",
			setup: func(*testing.T, *Registry, *fakeClock) string {
				return "C2CNOPE00000"
			},
			wantErr: ErrNotFound,
		},
		{
			name: "codes are case sensitive",
			setup: func(t *testing.T, reg *Registry, _ *fakeClock) string {
				return strings.ToLower(mustRequest(t, reg, "case@curry2cakes.com").Code)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "expired",
			setup: func(t *testing.T, reg *Registry, clock *fakeClock) string {
				code := mustRequest(t, reg, "late@curry2cakes.com").Code
				clock.Advance(TTL + time.Millisecond)
				return code
			},
			wantErr: ErrExpired,
		},
		{
			name: "used then expired reports used",
			setup: func(t *testing.T, reg *Registry, clock *fakeClock) string {
				code := mustRequest(t, reg, "early@curry2cakes.com").Code
				if _, err := reg.Redeem(context.Background(), code); err != nil {
					t.Fatalf("Redeem() error = %v", err)
				}
				clock.Advance(TTL + time.Hour)
				return code
			},
			wantErr: ErrAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, clock, _ := newTestRegistry(t)
			code := tt.setup(t, reg, clock)
			if _, err := reg.Redeem(context.Background(), code); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Redeem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedeemAtExactExpiry(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	code := mustRequest(t, reg, "edge@curry2cakes.com").Code

	clock.Advance(TTL)
	if _, err := reg.Redeem(context.Background(), code); err != nil {
		t.Fatalf("Redeem() at expiry instant error = %v", err)
	}
}

func TestStats(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)

	if got := reg.Stats(); got != (Stats{}) {
		t.Fatalf("empty Stats() = %+v", got)
	}

	mustRequest(t, reg, "a@curry2cakes.com")
	clock.Advance(20 * 24 * time.Hour)
	used := mustRequest(t, reg, "b@curry2cakes.com")
	mustRequest(t, reg, "c@curry2cakes.com")

	if _, err := reg.Redeem(context.Background(), used.Code); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	clock.Advance(11 * 24 * time.Hour)

	want := Stats{Total: 3, Used: 1, Expired: 1, Active: 1}
	if got := reg.Stats(); got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}
}

func TestConcurrentRedeem(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	code := mustRequest(t, reg, "race@curry2cakes.com").Code

	const attempts = 64
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		used      int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.Redeem(context.Background(), code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyUsed):
				used++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || used != attempts-1 {
		t.Fatalf("successes = %d, already used = %d", successes, used)
	}
}

func TestConcurrentRequestsSameEmail(t *testing.T) {
	reg, _, notifier := newTestRegistry(t)

	const attempts = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  int
		limited int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.Request(context.Background(), "burst@curry2cakes.com", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, ErrRateLimited):
				limited++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if issued != 1 || limited != attempts-1 {
		t.Fatalf("issued = %d, rate limited = %d", issued, limited)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifier called %d times", len(notifier.sent))
	}
}

func TestNotifierRunsOutsideLock(t *testing.T) {
	clock := newFakeClock()
	var reg *Registry
	notifier := &recordingNotifier{}
	notifier.onRun = func() {
		// Would deadlock if the registry lock were still held.
		if s := reg.Stats(); s.Total != 1 {
			t.Errorf("record not committed before dispatch: %+v", s)
		}
	}

	var err error
	reg, err = New(notifier, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := reg.Request(context.Background(), "lock@curry2cakes.com", "")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Request() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Request() blocked while notifier read the registry")
	}
}

type repeatReader struct {
	chunks [][]byte
	i      int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	chunk := r.chunks[len(r.chunks)-1]
	if r.i < len(r.chunks) {
		chunk = r.chunks[r.i]
	}
	r.i++
	return copy(p, chunk), nil
}

func TestRequestRegeneratesOnCollision(t *testing.T) {
	same := []byte{0xAB, 0xCD, 0xEF, 0x01}
	src := &repeatReader{chunks: [][]byte{same, same, same, {0x12, 0x34, 0x56, 0x78}}}
	reg, _, _ := newTestRegistry(t, WithRand(src))

	first := mustRequest(t, reg, "one@curry2cakes.com")
	second := mustRequest(t, reg, "two@curry2cakes.com")

	if first.Code == second.Code {
		t.Fatalf("collision not resolved: %q", first.Code)
	}
	if src.i != 4 {
		t.Fatalf("random source read %d times, want 4", src.i)
	}
}

func TestRequestCodeSpaceExhausted(t *testing.T) {
	reg, _, notifier := newTestRegistry(t, WithRand(bytes.NewReader(bytes.Repeat([]byte{0x42}, 4*(maxAttempts+1)))))

	mustRequest(t, reg, "first@curry2cakes.com")
	_, err := reg.Request(context.Background(), "second@curry2cakes.com", "")
	if !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("Request() error = %v, want ErrCodeSpaceExhausted", err)
	}
	if got := Message(err); got != internalMessage {
		t.Fatalf("Message() = %q, want internal message", got)
	}

	if s := reg.Stats(); s.Total != 1 {
		t.Fatalf("failed issuance left partial state: %+v", s)
	}
	if _, err := reg.Request(context.Background(), "second@curry2cakes.com", ""); errors.Is(err, ErrRateLimited) {
		t.Fatalf("failed issuance committed a throttle entry")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifier called %d times", len(notifier.sent))
	}
}

func TestPrune(t *testing.T) {
	reg, clock, _ := newTestRegistry(t, WithRetention(24*time.Hour))

	old := mustRequest(t, reg, "old@curry2cakes.com")
	clock.Advance(TTL)
	fresh := mustRequest(t, reg, "fresh@curry2cakes.com")

	clock.Advance(Cooldown)
	if removed := reg.Prune(); removed != 0 {
		t.Fatalf("Prune() removed %d records before retention elapsed", removed)
	}
	reg.mu.RLock()
	throttled := len(reg.throttle)
	reg.mu.RUnlock()
	if throttled != 0 {
		t.Fatalf("throttle entries kept after cooldown: %d", throttled)
	}

	clock.Advance(24 * time.Hour)
	if removed := reg.Prune(); removed != 1 {
		t.Fatalf("Prune() removed %d records, want 1", removed)
	}
	if _, ok := reg.Lookup(old.Code); ok {
		t.Fatalf("expired record %q kept", old.Code)
	}
	if _, ok := reg.Lookup(fresh.Code); !ok {
		t.Fatalf("active record %q dropped", fresh.Code)
	}
}

func TestPruneWithoutRetentionKeepsRecords(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	mustRequest(t, reg, "keep@curry2cakes.com")

	clock.Advance(10 * TTL)
	if removed := reg.Prune(); removed != 0 {
		t.Fatalf("Prune() removed %d records without retention", removed)
	}
	if s := reg.Stats(); s.Expired != 1 {
		t.Fatalf("Stats() = %+v", s)
	}
}
