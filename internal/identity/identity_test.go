package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromToken(t *testing.T) {
	raw, err := IssueToken("uid-42", "Asha", "s3cret", time.Hour)
	require.NoError(t, err)

	p, err := FromToken(raw, "s3cret")
	require.NoError(t, err)

	id, ok := p.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "uid-42", id)
	assert.Equal(t, "Asha", p.DisplayName())
}

func TestFromToken_Rejects(t *testing.T) {
	good, err := IssueToken("uid-42", "Asha", "s3cret", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("uid-42", "Asha", "s3cret", -time.Hour)
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "x"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	cases := []struct {
		name   string
		raw    string
		secret string
	}{
		{name: "wrong secret", raw: good, secret: "other"},
		{name: "no secret configured", raw: good, secret: ""},
		{name: "expired", raw: expired, secret: "s3cret"},
		{name: "missing subject", raw: noSub, secret: "s3cret"},
		{name: "garbage", raw: "not.a.token", secret: "s3cret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromToken(tc.raw, tc.secret)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestGuestAndContext(t *testing.T) {
	g := Guest("Bo")
	_, ok := g.CurrentUserID()
	assert.False(t, ok)
	assert.Equal(t, "Bo", g.DisplayName())

	assert.Equal(t, Static{}, FromContext(context.Background()))
	ctx := WithProvider(context.Background(), Static{UserID: "u1", Name: "Asha"})
	id, ok := FromContext(ctx).CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "u1", id)
}
