// Package auth provides bearer token authentication.
package auth

import (
	"crypto/subtle"
	"strings"
)

// ValidateToken performs constant-time comparison of the provided token
// against the expected token to prevent timing attacks.
func ValidateToken(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}
	return token, token != ""
}

// Authorized reports whether header carries the expected bearer token. An
// empty expected token never authorizes.
func Authorized(header, expected string) bool {
	if expected == "" {
		return false
	}
	token, ok := BearerToken(header)
	return ok && ValidateToken(token, expected)
}
