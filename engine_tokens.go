package authshield

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/risk"
	"github.com/MrEthical07/authshield/tokens"
)

// issueTokens mints a pair for user and seals both tokens.
func (e *Engine) issueTokens(ctx context.Context, user UserRecord) (TokenPair, error) {
	pair, err := e.tokens.IssuePair(ctx, user.ID, user.Email)
	if err != nil {
		err = mapTokenError(err)
		if errors.Is(err, ErrStoreUnavailable) {
			e.emitStoreError(ctx, "token_issue", err)
		}
		return TokenPair{}, err
	}
	return e.sealPair(ctx, user.ID, pair)
}

func (e *Engine) sealPair(ctx context.Context, userID string, pair tokens.Pair) (TokenPair, error) {
	access, err := e.envelope.Encrypt(pair.AccessToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := e.envelope.Encrypt(pair.RefreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("seal refresh token: %w", err)
	}

	e.metrics.Add(MetricTokensIssued, 2)
	e.emitAudit(ctx, audit.CategoryJWT, auditEventTokensIssued, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"access_jti":  pair.AccessJTI,
			"refresh_jti": pair.RefreshJTI,
		}
	})

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// openToken removes the envelope from a client-held token.
func (e *Engine) openToken(sealed string) (string, error) {
	if sealed == "" {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, ErrValidation)
	}
	raw, err := e.envelope.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, ErrValidation)
	}
	return raw, nil
}

// mapTokenError translates token-manager sentinels into the engine taxonomy.
func mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tokens.ErrRevoked):
		return fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	case errors.Is(err, tokens.ErrExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, tokens.ErrInvalid),
		errors.Is(err, tokens.ErrWrongType),
		errors.Is(err, tokens.ErrCorruptRecord):
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case errors.Is(err, tokens.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// Refresh rotates a sealed refresh token into a new sealed pair. Each
// refresh token can be used once; the owner must still exist and be active.
func (e *Engine) Refresh(ctx context.Context, sealedRefresh string) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	pair, userID, err := e.refresh(ctx, sealedRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, audit.CategoryTokenRefresh, auditEventRefreshFailure, false, userID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, audit.CategoryTokenRefresh, auditEventRefreshSuccess, true, userID, "", nil, nil)
	return pair, nil
}

func (e *Engine) refresh(ctx context.Context, sealedRefresh string) (*TokenPair, string, error) {
	raw, err := e.openToken(sealedRefresh)
	if err != nil {
		return nil, "", err
	}
	claims, err := e.tokens.VerifyRefresh(ctx, raw)
	if err != nil {
		if errors.Is(err, tokens.ErrReused) && claims != nil {
			e.handleRefreshReuse(ctx, claims)
			return nil, claims.Subject, mapTokenError(err)
		}
		return nil, "", mapTokenError(err)
	}

	user, err := e.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, claims.Subject, fmt.Errorf("%w: subject no longer exists", ErrInvalidToken)
		}
		return nil, claims.Subject, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.IsActive {
		return nil, user.ID, fmt.Errorf("%w: %w", ErrInvalidToken, ErrAccountInactive)
	}

	next, rotated, err := e.tokens.Refresh(ctx, raw)
	if err != nil {
		if errors.Is(err, tokens.ErrReused) && rotated != nil {
			e.handleRefreshReuse(ctx, rotated)
		}
		return nil, user.ID, mapTokenError(err)
	}
	e.metricInc(MetricTokensRevoked)

	ip, userAgent := clientInfo(ctx, "", "")
	e.analyze(ctx, user.ID, risk.ActionRefresh, ip, userAgent, true)

	sealed, err := e.sealPair(ctx, user.ID, next)
	if err != nil {
		return nil, user.ID, err
	}
	return &sealed, user.ID, nil
}

// handleRefreshReuse reacts to a rotated refresh token being presented
// again. Either the legitimate client or an attacker holds a stolen copy, so
// with ReuseDetection on every token of the owner is revoked.
func (e *Engine) handleRefreshReuse(ctx context.Context, claims *jwt.Claims) {
	e.metricInc(MetricRefreshReuseDetected)

	revoked := 0
	var err error
	if e.config.Tokens.ReuseDetection {
		revoked, err = e.tokens.RevokeAll(ctx, claims.Subject)
		if revoked > 0 {
			e.metrics.Add(MetricTokensRevoked, uint64(revoked))
		}
		if err != nil {
			err = mapTokenError(err)
			if errors.Is(err, ErrStoreUnavailable) {
				e.emitStoreError(ctx, "refresh_reuse_revoke", err)
			}
		}
	}

	e.emitAudit(ctx, audit.CategorySecurityError, auditEventRefreshReuse, false, claims.Subject, claims.Email, err, func() map[string]string {
		return map[string]string{
			"jti":     claims.ID,
			"revoked": strconv.Itoa(revoked),
		}
	})
}

// VerifyAccessToken opens and verifies a sealed access token, including its
// revocation marker and metadata.
func (e *Engine) VerifyAccessToken(ctx context.Context, sealedAccess string) (*AccessClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	raw, err := e.openToken(sealedAccess)
	if err != nil {
		e.metricInc(MetricTokenVerifyFailure)
		return nil, err
	}
	claims, err := e.tokens.VerifyType(ctx, raw, jwt.TypeAccess)
	if err != nil {
		e.metricInc(MetricTokenVerifyFailure)
		return nil, mapTokenError(err)
	}

	out := &AccessClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		JTI:    claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Revoke marks jti as revoked until the token would have expired.
func (e *Engine) Revoke(ctx context.Context, jti string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if jti == "" {
		return fmt.Errorf("%w: jti is required", ErrValidation)
	}
	if err := e.tokens.Revoke(ctx, jti); err != nil {
		return mapTokenError(err)
	}
	e.metricInc(MetricTokensRevoked)
	e.emitAudit(ctx, audit.CategoryJWT, auditEventTokenRevoked, true, "", "", nil, func() map[string]string {
		return map[string]string{"jti": jti}
	})
	return nil
}

// RevokeToken revokes the token behind a sealed access or refresh token.
// Revoking an already revoked token succeeds.
func (e *Engine) RevokeToken(ctx context.Context, sealed string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	raw, err := e.openToken(sealed)
	if err != nil {
		return err
	}
	claims, err := e.tokens.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, tokens.ErrRevoked) {
			return nil
		}
		return mapTokenError(err)
	}
	return e.Revoke(ctx, claims.ID)
}

// RevokeAll revokes every token of userID that still has metadata and
// returns how many were revoked.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	n, err := e.tokens.RevokeAll(ctx, userID)
	if n > 0 {
		e.metrics.Add(MetricTokensRevoked, uint64(n))
	}
	if err != nil {
		return n, mapTokenError(err)
	}
	e.emitAudit(ctx, audit.CategoryJWT, auditEventTokensRevokedAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprint(n)}
	})
	return n, nil
}

// ListActiveTokens returns userID's unrevoked tokens, newest first.
func (e *Engine) ListActiveTokens(ctx context.Context, userID string) ([]ActiveToken, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	records, err := e.tokens.ListActive(ctx, userID)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return records, nil
}
