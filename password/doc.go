// Package password hashes and verifies user passwords and enforces the
// password strength policy.
//
// # Output formats
//
// Argon2id hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the modular crypt format ($2a$, $2b$, $2y$).
//
// [Chain] hashes with one scheme and verifies any registered scheme, so
// stored bcrypt hashes keep working after argon2id becomes the default.
// [Chain.NeedsRehash] reports when a stored hash should be replaced on the
// next successful login.
//
// Every hasher exposes a dummy hash so that callers can spend the same
// verification effort on accounts that do not exist.
//
// This package never logs or stores plaintext passwords.
package password
