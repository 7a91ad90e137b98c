package pgstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/risk"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/auth?sslmode=disable": "pgx5://u:p@db:5432/auth?sslmode=disable",
		"postgresql://db/auth":                        "pgx5://db/auth",
		"pgx5://db/auth":                              "pgx5://db/auth",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Fatalf("expected paired migrations, got %d up and %d down", up, down)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatal("expected unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Fatal("plain error is not a unique violation")
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

// Integration tests are opt-in and require AUTHSHIELD_TEST_DATABASE_URL.
func openTestStores(t *testing.T) (*Users, *Events) {
	t.Helper()
	url := os.Getenv("AUTHSHIELD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AUTHSHIELD_TEST_DATABASE_URL not set")
	}
	if err := Migrate(url); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := NewPool(ctx, url, 4, 3*time.Second)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(pool.Close)

	users, err := NewUsers(pool)
	if err != nil {
		t.Fatalf("NewUsers failed: %v", err)
	}
	events, err := NewEvents(pool)
	if err != nil {
		t.Fatalf("NewEvents failed: %v", err)
	}
	return users, events
}

func TestPostgresUsers(t *testing.T) {
	users, _ := openTestStores(t)
	ctx := context.Background()
	email := fmt.Sprintf("pg-%d@example.com", time.Now().UnixNano())

	u, err := users.Create(ctx, authshield.CreateUserInput{Email: email, PasswordHash: "h"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !u.IsActive || u.TwoFactorEnabled {
		t.Fatalf("unexpected defaults %+v", u)
	}
	if _, err := users.Create(ctx, authshield.CreateUserInput{Email: email, PasswordHash: "h"}); !errors.Is(err, authshield.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := users.FindByEmail(ctx, "missing-"+email); !errors.Is(err, authshield.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := users.Update2FA(ctx, u.ID, true, "sealed", []string{"h1", "h2"}); err != nil {
		t.Fatalf("Update2FA failed: %v", err)
	}
	ok, err := users.UpdateBackupCodes(ctx, u.ID, []string{"h1", "h2"}, []string{"h2"})
	if err != nil || !ok {
		t.Fatalf("expected swap, ok=%v err=%v", ok, err)
	}
	ok, err = users.UpdateBackupCodes(ctx, u.ID, []string{"h1", "h2"}, []string{"h1"})
	if err != nil || ok {
		t.Fatalf("expected stale swap to fail, ok=%v err=%v", ok, err)
	}
	if _, err := users.UpdateBackupCodes(ctx, "missing", nil, nil); !errors.Is(err, authshield.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := users.UpdatePasswordHash(ctx, u.ID, "h2"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}
	if err := users.UpdatePasswordHash(ctx, "missing", "h"); !errors.Is(err, authshield.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	got, err := users.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !got.TwoFactorEnabled || got.TwoFactorSecret != "sealed" || len(got.BackupCodes) != 1 || got.PasswordHash != "h2" {
		t.Fatalf("unexpected stored 2FA state %+v", got)
	}
}

func TestPostgresEvents(t *testing.T) {
	_, events := openTestStores(t)
	ctx := context.Background()
	userID := fmt.Sprintf("pg-events-%d", time.Now().UnixNano())
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, ip := range []string{"1.1.1.1", "2.2.2.2", "1.1.1.1"} {
		err := events.Append(ctx, risk.Event{
			UserID:    userID,
			IPAddress: ip,
			UserAgent: "ua",
			Action:    risk.ActionLogin,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Success:   true,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	recent, err := events.Recent(ctx, userID, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || !recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Fatalf("expected newest first, got %+v", recent)
	}

	ips, err := events.RecentDistinctIPs(ctx, userID, 10)
	if err != nil {
		t.Fatalf("RecentDistinctIPs failed: %v", err)
	}
	if len(ips) != 2 || ips[0] != "1.1.1.1" {
		t.Fatalf("unexpected distinct ips %v", ips)
	}
}
