package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenEmpty   = errors.New("token is empty")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the identity-provider claims the chat client reads.
type Claims struct {
	jwt.RegisteredClaims
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Picture    string `json:"picture"`
}

// Viewer is the identity of the local user as carried in the auth token.
type Viewer struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	ExpiresAt   time.Time
}

func (v Viewer) Expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !now.Before(v.ExpiresAt)
}

// ParseViewer reads the viewer out of a token without verifying its
// signature; the server verifies it on every request. Use KeySet.Verify when
// the issuer's keys are available.
func ParseViewer(tokenString string) (Viewer, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return Viewer{}, ErrTokenEmpty
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return Viewer{}, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims.Viewer()
}

// Viewer converts verified or unverified claims into a Viewer.
func (c *Claims) Viewer() (Viewer, error) {
	if c.Subject == "" {
		return Viewer{}, errors.New("token has no subject")
	}
	v := Viewer{
		ID:          c.Subject,
		DisplayName: c.displayName(),
		Email:       c.Email,
		AvatarURL:   c.Picture,
	}
	if c.ExpiresAt != nil {
		v.ExpiresAt = c.ExpiresAt.Time
	}
	return v, nil
}

func (c *Claims) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	full := strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	if full != "" {
		return full
	}
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// SetBearer attaches the token to an outgoing request.
func SetBearer(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(token, "Bearer "))
}
