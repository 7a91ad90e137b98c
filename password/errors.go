package password

import "errors"

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnknownScheme is returned when no registered hasher recognizes a hash.
	ErrUnknownScheme = errors.New("password: unknown hash scheme")
	// ErrPasswordTooShort is returned by hashers for trivially short input.
	ErrPasswordTooShort = errors.New("password: too short to hash")
	// ErrPasswordTooLong is returned for input above the configured bound.
	ErrPasswordTooLong = errors.New("password: too long to hash")
	// ErrWeakPassword is wrapped by PolicyError.
	ErrWeakPassword = errors.New("password: does not meet strength policy")
)
