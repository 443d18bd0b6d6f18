package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractUnverifiedIdentity parses a bearer token's claims WITHOUT checking
// its signature, issuer, or expiry.
//
// The gateway never validates tokens itself: that is the job of the external
// identity provider and the policy decision point the authorizer client
// talks to (see pkg/authorizer). This function exists only so the gateway
// can read the 'sub' claim for rate-limit bucketing and logging before the
// bearer is forwarded untouched to those external services. Never use the
// returned Identity to make an authorization decision.
func ExtractUnverifiedIdentity(bearerToken string) (*Identity, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(bearerToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse bearer token claims: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("bearer token has no 'sub' claim")
	}

	identity := &Identity{
		Subject: sub,
		Claims:  claims,
		Token:   bearerToken,
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}
