// Package memstore keeps users and behavior events in process memory. It
// backs the service binary when no database is configured and the load
// generator.
package memstore

import (
	"context"
	"crypto/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/risk"
)

// Users is a mutex-guarded authshield.UserStore.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]authshield.UserRecord
	byEmail map[string]string
	now     func() time.Time
}

// NewUsers returns an empty user store.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]authshield.UserRecord),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func copyUser(u authshield.UserRecord) authshield.UserRecord {
	u.BackupCodes = slices.Clone(u.BackupCodes)
	return u
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Users) FindByEmail(_ context.Context, email string) (authshield.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return authshield.UserRecord{}, authshield.ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *Users) FindByID(_ context.Context, id string) (authshield.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return authshield.UserRecord{}, authshield.ErrUserNotFound
	}
	return copyUser(u), nil
}

// Create stores a new active user with a random UUID.
func (s *Users) Create(_ context.Context, in authshield.CreateUserInput) (authshield.UserRecord, error) {
	key := emailKey(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[key]; taken {
		return authshield.UserRecord{}, authshield.ErrUserExists
	}
	u := authshield.UserRecord{
		ID:           uuid.NewString(),
		Email:        key,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	s.byID[u.ID] = u
	s.byEmail[key] = u.ID
	return copyUser(u), nil
}

func (s *Users) Update2FA(_ context.Context, id string, enabled bool, secret string, backupCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return authshield.ErrUserNotFound
	}
	u.TwoFactorEnabled = enabled
	u.TwoFactorSecret = secret
	u.BackupCodes = slices.Clone(backupCodes)
	s.byID[id] = u
	return nil
}

func (s *Users) UpdateBackupCodes(_ context.Context, id string, expected, next []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return false, authshield.ErrUserNotFound
	}
	if !slices.Equal(u.BackupCodes, expected) {
		return false, nil
	}
	u.BackupCodes = slices.Clone(next)
	s.byID[id] = u
	return true, nil
}

func (s *Users) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return authshield.ErrUserNotFound
	}
	u.PasswordHash = hash
	s.byID[id] = u
	return nil
}

// SetActive toggles the active flag. It is the only way to deactivate a
// user here; the engine never does.
func (s *Users) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return authshield.ErrUserNotFound
	}
	u.IsActive = active
	s.byID[id] = u
	return nil
}

// Len returns the number of stored users.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Events is an append-only, per-user risk.EventStore. Each user's history is
// capped at MaxPerUser; the oldest events are discarded first.
type Events struct {
	mu         sync.RWMutex
	byUser     map[string][]risk.Event
	maxPerUser int
}

// DefaultMaxPerUser bounds one user's in-memory history.
const DefaultMaxPerUser = 1000

// NewEvents returns an empty event store. maxPerUser <= 0 uses DefaultMaxPerUser.
func NewEvents(maxPerUser int) *Events {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Events{
		byUser:     make(map[string][]risk.Event),
		maxPerUser: maxPerUser,
	}
}

// Append stores ev, assigning a ULID when ev.ID is empty.
func (s *Events) Append(_ context.Context, ev risk.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		id, err := ulid.New(ulid.Timestamp(ev.Timestamp), rand.Reader)
		if err != nil {
			return err
		}
		ev.ID = id.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.byUser[ev.UserID], ev)
	if over := len(history) - s.maxPerUser; over > 0 {
		history = slices.Clone(history[over:])
	}
	s.byUser[ev.UserID] = history
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Events) Recent(_ context.Context, userID string, limit int) ([]risk.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.byUser[userID]
	n := min(limit, len(history))
	out := make([]risk.Event, 0, max(n, 0))
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (s *Events) RecentDistinctIPs(_ context.Context, userID string, limit int) ([]string, error) {
	return s.distinct(userID, limit, func(ev risk.Event) string { return ev.IPAddress }), nil
}

func (s *Events) RecentDistinctUserAgents(_ context.Context, userID string, limit int) ([]string, error) {
	return s.distinct(userID, limit, func(ev risk.Event) string { return ev.UserAgent }), nil
}

func (s *Events) distinct(userID string, limit int, field func(risk.Event) string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.byUser[userID]
	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		v := field(history[i])
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
