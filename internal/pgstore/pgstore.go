// Package pgstore persists users and behavior events in PostgreSQL.
//
// The pgx pool is owned by the caller; stores never close it. The schema is
// managed by the embedded migrations (see Migrate).
package pgstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/risk"
)

const pgUniqueViolation = "23505"

// NewPool builds a pool from databaseURL and checks connectivity within timeout.
func NewPool(ctx context.Context, databaseURL string, maxConns int32, timeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return pool, nil
}

// Users implements authshield.UserStore.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers returns a user store over pool.
func NewUsers(pool *pgxpool.Pool) (*Users, error) {
	if pool == nil {
		return nil, errors.New("pgstore: nil pool")
	}
	return &Users{pool: pool}, nil
}

const userColumns = `id, email, password_hash, is_active, two_factor_enabled, two_factor_secret, backup_codes, created_at`

func scanUser(row pgx.Row) (authshield.UserRecord, error) {
	var u authshield.UserRecord
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.TwoFactorEnabled, &u.TwoFactorSecret, &u.BackupCodes, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authshield.UserRecord{}, authshield.ErrUserNotFound
		}
		return authshield.UserRecord{}, err
	}
	return u, nil
}

func (s *Users) FindByEmail(ctx context.Context, email string) (authshield.UserRecord, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *Users) FindByID(ctx context.Context, id string) (authshield.UserRecord, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts an active user. A taken email maps to authshield.ErrUserExists.
func (s *Users) Create(ctx context.Context, in authshield.CreateUserInput) (authshield.UserRecord, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		uuid.NewString(), in.Email, in.PasswordHash, time.Now().UTC(),
	)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return authshield.UserRecord{}, authshield.ErrUserExists
		}
		return authshield.UserRecord{}, err
	}
	return u, nil
}

func (s *Users) Update2FA(ctx context.Context, id string, enabled bool, secret string, backupCodes []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET two_factor_enabled = $2, two_factor_secret = $3, backup_codes = $4 WHERE id = $1`,
		id, enabled, secret, nonNil(backupCodes),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authshield.ErrUserNotFound
	}
	return nil
}

// UpdateBackupCodes swaps the stored codes only while they still equal
// expected. Array equality in the WHERE clause makes the swap atomic.
func (s *Users) UpdateBackupCodes(ctx context.Context, id string, expected, next []string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET backup_codes = $3 WHERE id = $1 AND backup_codes = $2`,
		id, nonNil(expected), nonNil(next),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, authshield.ErrUserNotFound
	}
	return false, nil
}

func (s *Users) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authshield.ErrUserNotFound
	}
	return nil
}

// SetActive toggles the active flag.
func (s *Users) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authshield.ErrUserNotFound
	}
	return nil
}

// Events implements risk.EventStore. Rows are only ever inserted.
type Events struct {
	pool *pgxpool.Pool
}

// NewEvents returns an event store over pool.
func NewEvents(pool *pgxpool.Pool) (*Events, error) {
	if pool == nil {
		return nil, errors.New("pgstore: nil pool")
	}
	return &Events{pool: pool}, nil
}

// Append inserts ev with a ULID derived from its timestamp.
func (s *Events) Append(ctx context.Context, ev risk.Event) error {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO behavior_events (id, user_id, ip_address, user_agent, action, occurred_at, success, failure_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.UserID, ev.IPAddress, ev.UserAgent, ev.Action, ev.Timestamp.UTC(), ev.Success, ev.FailureReason,
	)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Events) Recent(ctx context.Context, userID string, limit int) ([]risk.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, ip_address, user_agent, action, occurred_at, success, failure_reason
		   FROM behavior_events
		  WHERE user_id = $1
		  ORDER BY occurred_at DESC, id DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]risk.Event, 0, limit)
	for rows.Next() {
		var ev risk.Event
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.IPAddress, &ev.UserAgent, &ev.Action, &ev.Timestamp, &ev.Success, &ev.FailureReason); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Events) RecentDistinctIPs(ctx context.Context, userID string, limit int) ([]string, error) {
	return s.distinct(ctx, "ip_address", userID, limit)
}

func (s *Events) RecentDistinctUserAgents(ctx context.Context, userID string, limit int) ([]string, error) {
	return s.distinct(ctx, "user_agent", userID, limit)
}

// distinct orders values by their latest occurrence. column is one of two
// fixed identifiers, never caller input.
func (s *Events) distinct(ctx context.Context, column, userID string, limit int) ([]string, error) {
	col := pgx.Identifier{column}.Sanitize()
	rows, err := s.pool.Query(ctx,
		`SELECT `+col+`
		   FROM behavior_events
		  WHERE user_id = $1
		  GROUP BY `+col+`
		  ORDER BY max(occurred_at) DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// nonNil keeps empty code sets as '{}' rather than NULL so array
// comparisons match.
func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}
