// Package auth carries the caller identity the gateway reads out of a
// bearer token's unverified claims. The gateway never authenticates anyone
// itself; identities exist only for rate-limit bucketing and logging, and
// the bearer is always forwarded untouched to the external policy service
// that owns the real decision.
package auth

import (
	"encoding/json"
	"fmt"
)

// Identity is the caller as described by its own token claims. Because the
// claims are unverified, nothing in the gateway may use an Identity for an
// authorization decision.
type Identity struct {
	// Subject is the 'sub' claim, always present.
	Subject string

	// Name and Email are the optional standard claims, carried for log
	// readability only.
	Name  string
	Email string

	// Claims preserves the full claim set so callers can read
	// provider-specific fields (the workspace claim used for tenant
	// bucketing lives here).
	Claims map[string]any

	// Token is the original bearer, kept for forwarding to the policy
	// service. Redacted by String and MarshalJSON so an Identity can be
	// logged without leaking it.
	Token string
}

// String redacts the token so a logged Identity never leaks it.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q}", i.Subject)
}

// MarshalJSON redacts the token for structured logs.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}
	return json.Marshal(&struct {
		Subject string         `json:"subject"`
		Name    string         `json:"name,omitempty"`
		Email   string         `json:"email,omitempty"`
		Claims  map[string]any `json:"claims,omitempty"`
		Token   string         `json:"token,omitempty"`
	}{
		Subject: i.Subject,
		Name:    i.Name,
		Email:   i.Email,
		Claims:  i.Claims,
		Token:   token,
	})
}
