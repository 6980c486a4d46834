// Package identity answers who the current user is, for attaching an identity
// reference to a player and for history lookups.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

type Provider interface {
	// CurrentUserID is false for guests.
	CurrentUserID() (string, bool)
	DisplayName() string
}

type Static struct {
	UserID string
	Name   string
}

func (s Static) CurrentUserID() (string, bool) { return s.UserID, s.UserID != "" }

func (s Static) DisplayName() string { return s.Name }

// Guest has no identity reference. Its name comes from the caller.
func Guest(name string) Static { return Static{Name: name} }

var ErrInvalidToken = errors.New("invalid identity token")

// FromToken verifies an HS256 token and reads the sub and name claims.
func FromToken(raw, secret string) (Static, error) {
	if secret == "" {
		return Static{}, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Static{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Static{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return Static{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	name, _ := claims["name"].(string)
	return Static{UserID: sub, Name: name}, nil
}

// IssueToken signs a token for userID. Used by tests and local tooling.
func IssueToken(userID, name, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"name": name,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type ctxKey struct{}

func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext falls back to an anonymous guest.
func FromContext(ctx context.Context) Provider {
	if p, ok := ctx.Value(ctxKey{}).(Provider); ok && p != nil {
		return p
	}
	return Static{}
}
