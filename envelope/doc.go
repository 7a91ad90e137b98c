// Package envelope implements authenticated encryption, salted slow hashing,
// HMAC signing, and secure random token generation for authshield.
//
// Ciphertexts travel as "<ivHex>:<tagHex>:<ciphertextHex>". Every call to
// Encrypt draws a fresh IV, so equal plaintexts never produce equal blobs.
// Decrypt reports every failure as ErrDecryption and never says which check
// failed.
//
// By default one key, sha256(secret), feeds both the AEAD and the HMAC. The
// primitives differ so the reuse is tolerated; WithKeySeparation derives
// independent subkeys with HKDF when stricter separation is wanted.
package envelope
