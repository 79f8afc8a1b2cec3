// Package policyauth is a bearer-token authentication middleware for the
// public HTTP surface.
package policyauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "
)

var ErrUnauthorized = errors.New("policy authentication failed")

// RejectFunc writes the response for a failed auth check.
type RejectFunc func(http.ResponseWriter, *http.Request, error)

// Middleware enforces that every request carries "Authorization: Bearer
// <token>" matching token. An empty token disables auth entirely (local
// development / tests), matching spec.md's explicit non-goal on auth
// beyond this single shared-secret gate.
func Middleware(token string, reject RejectFunc) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(token)
	if expected == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	expectedHeader := BearerPrefix + expected

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
			if provided != expectedHeader {
				reject(w, r, fmt.Errorf("%w: missing or invalid bearer token", ErrUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
