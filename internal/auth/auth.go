package auth

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

// Principals recognized by the HTTP surface. Admins reach everything;
// pricing reaches only the price-table and oracle-tick endpoints.
const (
	RoleAdmin   = "admin"
	RolePricing = "pricing"
)

// Authorizer gates the admin surface. Query endpoints are open; every
// mutating endpoint goes through Authorize.
type Authorizer interface {
	// Authorize returns the acting principal, or "" when the request
	// carries no valid credential.
	Authorize(r *http.Request) string
}

// StaticAuthorizer authorizes bearer tokens from a fixed token -> principal
// table, typically loaded from the environment at startup.
type StaticAuthorizer struct {
	tokens map[string]string
}

func NewStaticAuthorizer(tokens map[string]string) *StaticAuthorizer {
	return &StaticAuthorizer{tokens: tokens}
}

// FromEnv builds an authorizer from LOTTO_ADMIN_TOKEN and
// LOTTO_PRICING_TOKEN. Unset vars map no token; with both unset the
// authorizer rejects everything.
func FromEnv() *StaticAuthorizer {
	tokens := make(map[string]string)
	if t := os.Getenv("LOTTO_ADMIN_TOKEN"); t != "" {
		tokens[t] = RoleAdmin
	}
	if t := os.Getenv("LOTTO_PRICING_TOKEN"); t != "" {
		tokens[t] = RolePricing
	}
	return NewStaticAuthorizer(tokens)
}

func (a *StaticAuthorizer) Authorize(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ""
	}
	for candidate, principal := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return principal
		}
	}
	return ""
}
