package domain

import (
	"context"
	"errors"
	"strings"
)

// Credential is the allow-list entry a bearer token matched.
type Credential struct {
	Environment string
}

type Service interface {
	// Authenticate resolves an Authorization header value to a credential.
	Authenticate(ctx context.Context, authorization string) (*Credential, error)
}

var ErrUnauthorized = errors.New("invalid_api_key")

// BearerToken extracts the token from "Bearer <token>". The scheme is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
