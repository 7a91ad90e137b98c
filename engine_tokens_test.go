package authshield

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/authshield/internal/audit"
	"github.com/MrEthical07/authshield/jwt"
)

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	u := te.seedUser(t, testEmail, testPassword)
	first := te.login(t, testEmail, testPassword)

	te.clock.Set(te.clock.Now().Add(time.Minute))
	next, err := te.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.AccessToken == first.Tokens.AccessToken || next.RefreshToken == first.Tokens.RefreshToken {
		t.Fatal("expected a new pair")
	}
	if !next.AccessExpiresAt.After(first.Tokens.AccessExpiresAt) {
		t.Fatalf("expected later expiry, got %v <= %v", next.AccessExpiresAt, first.Tokens.AccessExpiresAt)
	}

	claims, err := te.VerifyAccessToken(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("expected subject %s, got %s", u.ID, claims.UserID)
	}

	_, err = te.Refresh(ctx, first.Tokens.RefreshToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 || snap.Counters[MetricRefreshFailure] != 1 {
		t.Fatalf("unexpected refresh counters %+v", snap.Counters)
	}

	events := te.drainAudit()
	if !hasAuditEvent(events, audit.CategoryTokenRefresh, auditEventRefreshSuccess) ||
		!hasAuditEvent(events, audit.CategoryTokenRefresh, auditEventRefreshFailure) {
		t.Fatal("expected refresh audit events")
	}
}

func TestRefreshReuseRevokesEveryToken(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	u := te.seedUser(t, testEmail, testPassword)
	first := te.login(t, testEmail, testPassword)
	other := te.login(t, testEmail, testPassword)

	next, err := te.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	_, err = te.Refresh(ctx, first.Tokens.RefreshToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	_, err = te.VerifyAccessToken(ctx, next.AccessToken)
	mustErrorIs(t, err, ErrTokenRevoked)
	_, err = te.Refresh(ctx, next.RefreshToken)
	mustErrorIs(t, err, ErrTokenRevoked)
	_, err = te.VerifyAccessToken(ctx, other.Tokens.AccessToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	active, err := te.ListActiveTokens(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListActiveTokens failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected every token revoked, %d still active", len(active))
	}

	if got := te.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected one reuse detection, got %d", got)
	}
	found := false
	for _, ev := range te.drainAudit() {
		if ev.Category == audit.CategorySecurityError && ev.EventType == auditEventRefreshReuse {
			found = true
			if ev.UserID != u.ID || ev.Metadata["revoked"] != "5" {
				t.Fatalf("unexpected reuse event %+v", ev)
			}
		}
	}
	if !found {
		t.Fatal("expected refresh reuse audit event")
	}
}

func TestRefreshReuseDetectionCanBeDisabled(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Tokens.ReuseDetection = false })
	ctx := context.Background()
	te.seedUser(t, testEmail, testPassword)
	first := te.login(t, testEmail, testPassword)

	next, err := te.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	_, err = te.Refresh(ctx, first.Tokens.RefreshToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	if _, err := te.VerifyAccessToken(ctx, next.AccessToken); err != nil {
		t.Fatalf("rotated pair must survive without reuse detection: %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("reuse is still counted, got %d", got)
	}
}

func TestRefreshRejectsAccessTokenAndGarbage(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	_, err := te.Refresh(ctx, res.Tokens.AccessToken)
	mustErrorIs(t, err, ErrInvalidToken)

	_, err = te.Refresh(ctx, "not-a-sealed-token")
	mustErrorIs(t, err, ErrInvalidToken)
	mustErrorIs(t, err, ErrValidation)

	_, err = te.Refresh(ctx, "")
	mustErrorIs(t, err, ErrInvalidToken)

	if got := PublicMessage(err); got != "Invalid or expired token" {
		t.Fatalf("unexpected public message %q", got)
	}
}

func TestRefreshRequiresActiveUser(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	u := te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	te.users.setActive(u.ID, false)
	_, err := te.Refresh(ctx, res.Tokens.RefreshToken)
	mustErrorIs(t, err, ErrInvalidToken)
	mustErrorIs(t, err, ErrAccountInactive)
	if got := PublicMessage(err); got != "Invalid or expired token" {
		t.Fatalf("unexpected public message %q", got)
	}
}

func TestRefreshRecordsBehaviorEvent(t *testing.T) {
	te := newTestEngine(t, nil)
	u := te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	ctx := WithClientIP(context.Background(), "198.51.100.9")
	if _, err := te.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	events := te.events.all()
	last := events[len(events)-1]
	if last.UserID != u.ID || last.Action != "refresh" || last.IPAddress != "198.51.100.9" {
		t.Fatalf("unexpected refresh event %+v", last)
	}
}

func TestVerifyAccessTokenExpires(t *testing.T) {
	te := newTestEngine(t, nil)
	te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	te.clock.Set(te.clock.Now().Add(16 * time.Minute))
	_, err := te.VerifyAccessToken(context.Background(), res.Tokens.AccessToken)
	mustErrorIs(t, err, ErrTokenExpired)
	if got := te.MetricsSnapshot().Counters[MetricTokenVerifyFailure]; got != 1 {
		t.Fatalf("expected one verify failure, got %d", got)
	}
}

func TestVerifyAccessTokenRejectsRefreshToken(t *testing.T) {
	te := newTestEngine(t, nil)
	te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	_, err := te.VerifyAccessToken(context.Background(), res.Tokens.RefreshToken)
	mustErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeTokenBlocksVerification(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	if _, err := te.VerifyAccessToken(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if err := te.RevokeToken(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	_, err := te.VerifyAccessToken(ctx, res.Tokens.AccessToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	if err := te.RevokeToken(ctx, res.Tokens.AccessToken); err != nil {
		t.Fatalf("revoking twice should succeed: %v", err)
	}

	err = te.RevokeToken(ctx, "garbage")
	mustErrorIs(t, err, ErrValidation)
}

func TestRevokeByJTI(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.seedUser(t, testEmail, testPassword)
	res := te.login(t, testEmail, testPassword)

	claims, err := te.VerifyAccessToken(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if err := te.Revoke(ctx, claims.JTI); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	_, err = te.VerifyAccessToken(ctx, res.Tokens.AccessToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	mustErrorIs(t, te.Revoke(ctx, ""), ErrValidation)
}

func TestRevokeAllAndListActive(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	u := te.seedUser(t, testEmail, testPassword)
	first := te.login(t, testEmail, testPassword)
	te.login(t, testEmail, testPassword)

	active, err := te.ListActiveTokens(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListActiveTokens failed: %v", err)
	}
	if len(active) != 4 {
		t.Fatalf("expected 4 active tokens, got %d", len(active))
	}
	var access, refresh int
	for _, rec := range active {
		if rec.UserID != u.ID {
			t.Fatalf("unexpected owner %s", rec.UserID)
		}
		switch rec.Type {
		case jwt.TypeAccess:
			access++
		case jwt.TypeRefresh:
			refresh++
		}
	}
	if access != 2 || refresh != 2 {
		t.Fatalf("expected 2 access and 2 refresh tokens, got %d and %d", access, refresh)
	}

	n, err := te.RevokeAll(ctx, u.ID)
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 revoked, got %d", n)
	}

	active, err = te.ListActiveTokens(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListActiveTokens failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active tokens, got %d", len(active))
	}

	_, err = te.VerifyAccessToken(ctx, first.Tokens.AccessToken)
	mustErrorIs(t, err, ErrTokenRevoked)
	_, err = te.Refresh(ctx, first.Tokens.RefreshToken)
	mustErrorIs(t, err, ErrTokenRevoked)

	_, err = te.RevokeAll(ctx, "")
	mustErrorIs(t, err, ErrValidation)
}

func TestTokensIssuedMetric(t *testing.T) {
	te := newTestEngine(t, nil)
	te.seedUser(t, testEmail, testPassword)
	te.login(t, testEmail, testPassword)

	if got := te.MetricsSnapshot().Counters[MetricTokensIssued]; got != 2 {
		t.Fatalf("expected 2 issued tokens, got %d", got)
	}
}
