package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backcoffee-chat/internal/models"
)

// Identity is a verified caller.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// ProfileLookup resolves the admin flag of a verified user.
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (models.UserProfile, error)
}

// Authenticator turns bearer tokens into identities.
type Authenticator struct {
	verifier *Verifier
	users    ProfileLookup
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(verifier *Verifier, users ProfileLookup) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate validates a raw token and loads the caller's admin flag.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	userID, err := a.verifier.Validate(token)
	if err != nil {
		return Identity{}, err
	}
	profile, err := a.users.GetProfile(ctx, userID)
	if err != nil {
		return Identity{}, fmt.Errorf("load identity %s: %w", userID, err)
	}
	return Identity{UserID: userID, IsAdmin: profile.IsAdmin}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}
