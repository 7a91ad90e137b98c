// Package tokens tracks issued access/refresh token pairs in the key-value
// store so they can be revoked one at a time or per user.
//
// Key layout:
//
//	token_meta:<jti>:<userId>   JSON Record, TTL equal to the token lifetime
//	revoked:<jti>               revocation marker
//
// A jti without metadata is treated as expired. A revocation marker always
// outlives the token it revokes.
package tokens
