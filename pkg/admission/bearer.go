// Package admission implements the gateway's request admission stage: CORS,
// body-size limiting, bearer extraction, and per-route schema validation,
// run in that order ahead of every /web/* handler.
package admission

import (
	"net/http"
	"strings"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/auth"
)

// ExtractBearer pulls the bearer token out of the Authorization header.
// Absence or a malformed header (no "Bearer " prefix, or an empty token)
// fails with UNAUTHORIZED before any downstream call is made.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apierrors.NewUnauthorized("missing Authorization header", nil)
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", apierrors.NewUnauthorized("Authorization header must use the Bearer scheme", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", apierrors.NewUnauthorized("empty bearer token", nil)
	}
	return token, nil
}

// Identify extracts the bearer and, from its unverified claims, the caller
// Identity used for logging and tenant derivation. It never validates the
// token: that is the policy service's job.
func Identify(r *http.Request) (string, *auth.Identity, error) {
	bearer, err := ExtractBearer(r)
	if err != nil {
		return "", nil, err
	}
	identity, err := auth.ExtractUnverifiedIdentity(bearer)
	if err != nil {
		return "", nil, apierrors.NewUnauthorized("malformed bearer token", err)
	}
	return bearer, identity, nil
}
