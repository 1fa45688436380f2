package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"ilm/backend/internal/config"
)

var (
	ErrMissingToken    = errors.New("id token is required")
	ErrUnverifiedEmail = errors.New("google account email is not verified")
	ErrNotAllowed      = errors.New("email is not allowed")
)

type GoogleIdentity struct {
	GoogleSubject string
	Email         string
	Name          string
}

type validateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// Verifier checks Google ID tokens presented as bearer credentials.
type Verifier struct {
	clientID      string
	allowedEmails map[string]struct{}
	validate      validateFunc
}

func NewVerifier(cfg config.Config) Verifier {
	return Verifier{
		clientID:      strings.TrimSpace(cfg.GoogleClientID),
		allowedEmails: cfg.AllowedGoogleEmails,
		validate:      idtoken.Validate,
	}
}

func (v Verifier) Verify(ctx context.Context, idToken string) (GoogleIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return GoogleIdentity{}, ErrMissingToken
	}

	payload, err := v.validate(ctx, idToken, v.clientID)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("validate id token: %w", err)
	}

	email, _ := payload.Claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return GoogleIdentity{}, errors.New("google token missing email claim")
	}

	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if !emailVerified {
		return GoogleIdentity{}, ErrUnverifiedEmail
	}

	identity := GoogleIdentity{
		GoogleSubject: payload.Subject,
		Email:         strings.ToLower(strings.TrimSpace(email)),
	}
	if name, ok := payload.Claims["name"].(string); ok {
		identity.Name = strings.TrimSpace(name)
	}
	if !v.Allowed(identity.Email) {
		return GoogleIdentity{}, ErrNotAllowed
	}
	return identity, nil
}

// Allowed reports whether email may use the API. An empty allowlist admits
// every verified account.
func (v Verifier) Allowed(email string) bool {
	if len(v.allowedEmails) == 0 {
		return true
	}
	_, ok := v.allowedEmails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
