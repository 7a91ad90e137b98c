package tokens

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/kvstore"
)

const (
	metaPrefix    = "token_meta:"
	revokedPrefix = "revoked:"

	// Marker values distinguish an explicit revocation from a rotation.
	markerRevoked = "1"
	markerRotated = "rotated"
)

// Config controls token lifetimes and revocation marker TTLs.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevocationTTL is used when the remaining lifetime of a revoked token is
	// unknown. It must be at least RefreshTTL.
	RevocationTTL time.Duration
	// RevocationLeeway is added to every revocation marker TTL to cover
	// verifier clock skew.
	RevocationLeeway time.Duration
}

// DefaultConfig returns 15m access tokens, 7d refresh tokens and a one
// minute revocation leeway.
func DefaultConfig() Config {
	return Config{
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour,
		RevocationTTL:    7 * 24 * time.Hour,
		RevocationLeeway: time.Minute,
	}
}

// Validate checks lifetime ordering.
func (c Config) Validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("tokens: AccessTTL and RefreshTTL must be > 0")
	}
	if c.AccessTTL > c.RefreshTTL {
		return errors.New("tokens: AccessTTL must not exceed RefreshTTL")
	}
	if c.RevocationTTL < c.RefreshTTL {
		return errors.New("tokens: RevocationTTL must be >= RefreshTTL")
	}
	if c.RevocationLeeway < 0 {
		return errors.New("tokens: RevocationLeeway must be >= 0")
	}
	return nil
}

// Pair is a freshly issued access/refresh pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessJTI        string
	RefreshJTI       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager issues, verifies and revokes tokens.
//
// Manager is safe for concurrent use; all shared state lives in the store.
type Manager struct {
	store  kvstore.Store
	signer *jwt.Manager
	cfg    Config
	now    func() time.Time
	newID  func() string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides jti generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// New returns a Manager backed by store and signer.
func New(store kvstore.Store, signer *jwt.Manager, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil || signer == nil {
		return nil, errors.New("tokens: store and signer are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		store:  store,
		signer: signer,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Config returns the active configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

func metaKey(jti, userID string) string {
	return metaPrefix + jti + ":" + userID
}

func revokedKey(jti string) string {
	return revokedPrefix + jti
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// IssuePair signs an access and a refresh token for userID, each with its
// own jti, and stores metadata for both with TTLs equal to their lifetimes.
func (m *Manager) IssuePair(ctx context.Context, userID, email string) (Pair, error) {
	if userID == "" {
		return Pair{}, errors.New("tokens: userID is required")
	}
	now := m.now().Truncate(time.Second)

	accessJTI := m.newID()
	refreshJTI := m.newID()
	for refreshJTI == accessJTI {
		refreshJTI = m.newID()
	}

	access, err := m.issue(ctx, userID, email, accessJTI, jwt.TypeAccess, now, m.cfg.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.issue(ctx, userID, email, refreshJTI, jwt.TypeRefresh, now, m.cfg.RefreshTTL)
	if err != nil {
		_ = m.store.Del(ctx, metaKey(accessJTI, userID))
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresAt:  now.Add(m.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(m.cfg.RefreshTTL),
	}, nil
}

func (m *Manager) issue(ctx context.Context, userID, email, jti string, typ jwt.TokenType, now time.Time, ttl time.Duration) (string, error) {
	token, err := m.signer.Sign(userID, email, jti, typ, now, ttl)
	if err != nil {
		return "", fmt.Errorf("tokens: sign %s token: %w", typ, err)
	}
	raw, err := encodeRecord(Record{
		JTI:       jti,
		UserID:    userID,
		Type:      typ,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, metaKey(jti, userID), raw, ttl); err != nil {
		return "", unavailable(err)
	}
	return token, nil
}

// Verify validates token, then rejects it when a revocation marker exists for
// its jti or its metadata has been evicted.
func (m *Manager) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := m.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	if err := m.checkMeta(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) parse(token string) (*jwt.Claims, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return claims, nil
}

func (m *Manager) checkMeta(ctx context.Context, claims *jwt.Claims) error {
	if _, err := m.store.Get(ctx, metaKey(claims.ID, claims.Subject)); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return fmt.Errorf("%w: metadata evicted", ErrExpired)
		}
		return unavailable(err)
	}
	return nil
}

// VerifyRefresh is VerifyType for refresh tokens that also recognises a
// token which was already rotated. In that case the claims are returned
// together with an error matching both ErrReused and ErrRevoked, so the
// caller can act on the owner.
func (m *Manager) VerifyRefresh(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != jwt.TypeRefresh {
		return nil, ErrWrongType
	}

	marker, found, err := m.marker(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if found {
		if marker == markerRotated {
			return claims, reused()
		}
		return nil, ErrRevoked
	}

	if err := m.checkMeta(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func reused() error {
	return fmt.Errorf("%w: %w", ErrReused, ErrRevoked)
}

// VerifyType is Verify plus a check on the type claim.
func (m *Manager) VerifyType(ctx context.Context, token string, typ jwt.TokenType) (*jwt.Claims, error) {
	claims, err := m.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, ErrWrongType
	}
	return claims, nil
}

// IsRevoked reports whether a revocation marker exists for jti.
func (m *Manager) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, found, err := m.marker(ctx, jti)
	return found, err
}

func (m *Manager) marker(ctx context.Context, jti string) (string, bool, error) {
	val, err := m.store.Get(ctx, revokedKey(jti))
	if err == nil {
		return val, true, nil
	}
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", false, nil
	}
	return "", false, unavailable(err)
}

// Revoke marks jti as revoked. The marker TTL covers the token's remaining
// lifetime when its metadata is still present, and RevocationTTL otherwise.
// Revoking an already revoked jti is a no-op.
func (m *Manager) Revoke(ctx context.Context, jti string) error {
	if jti == "" {
		return errors.New("tokens: jti is required")
	}
	keys, err := m.store.Keys(ctx, metaPrefix+escapeGlob(jti)+":*")
	if err != nil {
		return unavailable(err)
	}
	var rec *Record
	for _, key := range keys {
		raw, err := m.store.Get(ctx, key)
		if err != nil {
			continue
		}
		if r, err := decodeRecord(raw); err == nil && r.JTI == jti {
			rec = &r
			break
		}
	}
	_, err = m.mark(ctx, jti, rec, markerRevoked)
	return err
}

func (m *Manager) mark(ctx context.Context, jti string, rec *Record, value string) (bool, error) {
	ttl := m.cfg.RevocationTTL
	if rec != nil {
		ttl = m.markerTTL(rec.ExpiresAt)
	}
	created, err := m.store.SetNX(ctx, revokedKey(jti), value, ttl)
	if err != nil {
		return false, unavailable(err)
	}
	return created, nil
}

func (m *Manager) markerTTL(expiresAt time.Time) time.Duration {
	remaining := expiresAt.Sub(m.now())
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining + m.cfg.RevocationLeeway
}

// RevokeAll revokes every token of userID that still has metadata and
// returns how many markers were written. Tokens whose metadata already
// expired cannot be found and are skipped.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int, error) {
	records, err := m.records(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for i := range records {
		created, err := m.mark(ctx, records[i].JTI, &records[i], markerRevoked)
		if err != nil {
			return revoked, err
		}
		if created {
			revoked++
		}
	}
	return revoked, nil
}

// ListActive returns userID's tokens that have metadata and no revocation
// marker, newest first.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]Record, error) {
	records, err := m.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := records[:0]
	for _, rec := range records {
		revoked, err := m.IsRevoked(ctx, rec.JTI)
		if err != nil {
			return nil, err
		}
		if !revoked {
			active = append(active, rec)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].IssuedAt.Equal(active[j].IssuedAt) {
			return active[i].Type < active[j].Type
		}
		return active[i].IssuedAt.After(active[j].IssuedAt)
	})
	return active, nil
}

func (m *Manager) records(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, errors.New("tokens: userID is required")
	}
	keys, err := m.store.Keys(ctx, metaPrefix+"*:"+escapeGlob(userID))
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		raw, err := m.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				continue
			}
			return nil, unavailable(err)
		}
		rec, err := decodeRecord(raw)
		if err != nil || rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A refresh token can be rotated exactly once; presenting
// it again fails with ErrReused and returns its claims.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Pair, *jwt.Claims, error) {
	claims, err := m.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return Pair{}, claims, err
	}

	rec := Record{JTI: claims.ID, UserID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	created, err := m.mark(ctx, claims.ID, &rec, markerRotated)
	if err != nil {
		return Pair{}, nil, err
	}
	if !created {
		// Lost the race to a concurrent rotation or an explicit revoke.
		marker, _, err := m.marker(ctx, claims.ID)
		if err != nil {
			return Pair{}, nil, err
		}
		if marker == markerRotated {
			return Pair{}, claims, reused()
		}
		return Pair{}, nil, ErrRevoked
	}

	pair, err := m.IssuePair(ctx, claims.Subject, claims.Email)
	if err != nil {
		return Pair{}, nil, err
	}
	return pair, claims, nil
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
