package tokens

import "errors"

var (
	// ErrInvalid is returned for tokens that fail signature or claim checks.
	ErrInvalid = errors.New("tokens: invalid token")
	// ErrExpired is returned when the token or its metadata has expired.
	ErrExpired = errors.New("tokens: token expired")
	// ErrRevoked is returned for tokens carrying a revocation marker.
	ErrRevoked = errors.New("tokens: token revoked")
	// ErrReused is returned when an already rotated refresh token is
	// presented again. It is always paired with ErrRevoked.
	ErrReused = errors.New("tokens: refresh token reused")
	// ErrWrongType is returned when an access token is presented where a
	// refresh token is expected, or the reverse.
	ErrWrongType = errors.New("tokens: wrong token type")
	// ErrUnavailable wraps key-value store failures.
	ErrUnavailable = errors.New("tokens: store unavailable")
	// ErrCorruptRecord is returned when stored metadata cannot be decoded.
	ErrCorruptRecord = errors.New("tokens: corrupt metadata record")
)
