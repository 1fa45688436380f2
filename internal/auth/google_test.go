package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"ilm/backend/internal/config"
)

func verifierWithPayload(cfg config.Config, payload *idtoken.Payload, err error) Verifier {
	v := NewVerifier(cfg)
	v.validate = func(_ context.Context, _ string, audience string) (*idtoken.Payload, error) {
		if audience != cfg.GoogleClientID {
			return nil, errors.New("wrong audience")
		}
		return payload, err
	}
	return v
}

func TestVerifyAcceptsAllowlistedEmail(t *testing.T) {
	cfg := config.Config{
		GoogleClientID:      "client-id",
		AllowedGoogleEmails: map[string]struct{}{"someone@example.com": {}},
	}
	payload := &idtoken.Payload{Subject: "sub-1", Claims: map[string]any{
		"email":          "Someone@Example.com",
		"email_verified": true,
		"name":           " Someone ",
	}}

	identity, err := verifierWithPayload(cfg, payload, nil).Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, GoogleIdentity{GoogleSubject: "sub-1", Email: "someone@example.com", Name: "Someone"}, identity)
}

func TestVerifyRejectsUnlistedEmail(t *testing.T) {
	cfg := config.Config{
		GoogleClientID:      "client-id",
		AllowedGoogleEmails: map[string]struct{}{"other@example.com": {}},
	}
	payload := &idtoken.Payload{Subject: "sub-1", Claims: map[string]any{"email": "someone@example.com", "email_verified": true}}

	_, err := verifierWithPayload(cfg, payload, nil).Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestVerifyRejectsUnverifiedEmail(t *testing.T) {
	payload := &idtoken.Payload{Claims: map[string]any{"email": "someone@example.com", "email_verified": false}}

	_, err := verifierWithPayload(config.Config{GoogleClientID: "c"}, payload, nil).Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnverifiedEmail)
}

func TestVerifyRequiresToken(t *testing.T) {
	_, err := NewVerifier(config.Config{}).Verify(context.Background(), " ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
