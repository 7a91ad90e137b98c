// Package middleware adapts the engine to net/http handlers.
//
// [RequireAccessToken] reads a sealed access token from the Authorization
// header, verifies it through the engine and stores the claims in the
// request context. [ClientInfo] forwards the caller's IP and user agent so
// login and registration handlers get risk scoring and throttling without
// filling the request fields themselves.
//
// The package makes no authentication decisions of its own.
package middleware
