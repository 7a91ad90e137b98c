// Package jwt signs and parses the access and refresh tokens issued by
// authshield. Tokens carry {sub, email, jti, iat, exp, type}. Revocation and
// lifetime bookkeeping live in the tokens package; this package only covers
// the cryptographic envelope and standard claim validation.
package jwt
