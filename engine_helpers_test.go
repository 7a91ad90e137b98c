package authshield

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/kvstore"
	"github.com/MrEthical07/authshield/risk"
)

type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
	seq     int
	findErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    map[string]UserRecord{},
		byEmail: map[string]string{},
	}
}

func cloneUser(u UserRecord) UserRecord {
	u.BackupCodes = slices.Clone(u.BackupCodes)
	return u
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return UserRecord{}, s.findErr
	}
	id, ok := s.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return UserRecord{}, s.findErr
	}
	u, ok := s.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *fakeUserStore) Create(_ context.Context, in CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[in.Email]; ok {
		return UserRecord{}, ErrUserExists
	}
	s.seq++
	u := UserRecord{
		ID:           fmt.Sprintf("u%d", s.seq),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return cloneUser(u), nil
}

func (s *fakeUserStore) Update2FA(_ context.Context, id string, enabled bool, secret string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorEnabled = enabled
	u.TwoFactorSecret = secret
	u.BackupCodes = slices.Clone(codes)
	s.byID[id] = u
	return nil
}

func (s *fakeUserStore) UpdateBackupCodes(_ context.Context, id string, expected, next []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return false, ErrUserNotFound
	}
	if !slices.Equal(u.BackupCodes, expected) {
		return false, nil
	}
	u.BackupCodes = slices.Clone(next)
	s.byID[id] = u
	return true, nil
}

func (s *fakeUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s.byID[id] = u
	return nil
}

func (s *fakeUserStore) get(t *testing.T, id string) UserRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		t.Fatalf("user %s not found", id)
	}
	return cloneUser(u)
}

func (s *fakeUserStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID[id]
	u.IsActive = active
	s.byID[id] = u
}

type fakeEventStore struct {
	mu        sync.Mutex
	events    []risk.Event
	readErr   error
	appendErr error
}

func (s *fakeEventStore) Append(_ context.Context, ev risk.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	ev.ID = fmt.Sprintf("ev%d", len(s.events)+1)
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventStore) recent(userID string) []risk.Event {
	out := make([]risk.Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].UserID == userID {
			out = append(out, s.events[i])
		}
	}
	return out
}

func (s *fakeEventStore) Recent(_ context.Context, userID string, limit int) ([]risk.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := s.recent(userID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeEventStore) distinct(userID string, limit int, field func(risk.Event) string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []string
	for _, ev := range s.recent(userID) {
		v := field(ev)
		if slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeEventStore) RecentDistinctIPs(_ context.Context, userID string, limit int) ([]string, error) {
	return s.distinct(userID, limit, func(ev risk.Event) string { return ev.IPAddress })
}

func (s *fakeEventStore) RecentDistinctUserAgents(_ context.Context, userID string, limit int) ([]string, error) {
	return s.distinct(userID, limit, func(ev risk.Event) string { return ev.UserAgent })
}

func (s *fakeEventStore) all() []risk.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEngine struct {
	*Engine
	mr     *miniredis.Miniredis
	users  *fakeUserStore
	events *fakeEventStore
	clock  *testClock
	sink   *audit.ChannelSink
}

const (
	testEmail    = "user@example.com"
	testPassword = "StrongPass123!"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Crypto.Secret = "test-encryption-key"
	cfg.JWT.PrivateKey = []byte("test-jwt-secret-word")
	cfg.Password.Scheme = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Risk.Location = time.UTC
	cfg.Timing.LoginFloor = 0
	cfg.Audit.BufferSize = 512
	cfg.Audit.DropIfFull = false
	return cfg
}

func newTestKV(t *testing.T) kvstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return kvstore.NewRedis(client)
}

func newTestEngine(t testing.TB, mutate func(*Config)) *testEngine {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	te := &testEngine{
		mr:     mr,
		users:  newFakeUserStore(),
		events: &fakeEventStore{},
		clock:  &testClock{now: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)},
		sink:   audit.NewChannelSink(1024),
	}

	engine, err := New().
		WithConfig(cfg).
		WithStore(kvstore.NewRedis(client)).
		WithUserStore(te.users).
		WithEventStore(te.events).
		WithAuditSink(te.sink).
		WithClock(te.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

// seedUser creates a user directly in the store, bypassing Register.
func (te *testEngine) seedUser(t testing.TB, email, plain string) UserRecord {
	t.Helper()
	hash, err := te.passwords.Hash(plain)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u, err := te.users.Create(context.Background(), CreateUserInput{Email: email, PasswordHash: hash})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return u
}

func (te *testEngine) login(t testing.TB, email, plain string) *LoginResult {
	t.Helper()
	res, err := te.Login(context.Background(), LoginRequest{
		Email:     email,
		Password:  plain,
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res == nil || res.Tokens == nil {
		t.Fatal("expected token pair")
	}
	return res
}

// drainAudit closes the engine and returns every delivered audit event.
func (te *testEngine) drainAudit() []AuditEvent {
	te.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-te.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasAuditEvent(events []AuditEvent, category AuditCategory, eventType string) bool {
	for _, ev := range events {
		if ev.Category == category && ev.EventType == eventType {
			return true
		}
	}
	return false
}

func mustErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
