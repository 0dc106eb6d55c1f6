package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcoffee-chat/internal/models"
)

type stubProfiles map[string]models.UserProfile

func (s stubProfiles) GetProfile(_ context.Context, userID string) (models.UserProfile, error) {
	p, ok := s[userID]
	if !ok {
		return models.UserProfile{}, assert.AnError
	}
	return p, nil
}

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue("u1", time.Minute)
	require.NoError(t, err)

	userID, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestVerifierRejectsOtherSecretAndExpired(t *testing.T) {
	token, err := NewVerifier("other").Issue("u1", time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("secret").Validate(token)
	assert.Error(t, err)

	expired, err := NewVerifier("secret").Issue("u1", -time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("secret").Validate(expired)
	assert.Error(t, err)
}

func TestVerifierDisabled(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())
	_, err := v.Validate("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticatorLoadsAdminFlag(t *testing.T) {
	v := NewVerifier("secret")
	a := NewAuthenticator(v, stubProfiles{"admin1": {ID: "admin1", IsAdmin: true}})
	token, err := v.Issue("admin1", time.Minute)
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "admin1", IsAdmin: true}, id)
}

func TestAuthenticatorUnknownUser(t *testing.T) {
	v := NewVerifier("secret")
	a := NewAuthenticator(v, stubProfiles{})
	token, err := v.Issue("ghost", time.Minute)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), token)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = BearerToken("Basic abc")
	assert.Error(t, err)
	_, err = BearerToken("abc")
	assert.Error(t, err)
}
