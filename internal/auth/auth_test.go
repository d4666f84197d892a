package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/errors"
)

const secret = "test-secret"

func setup(t *testing.T) (*Verifier, *Issuer, store.Store) {
	t.Helper()
	s := store.NewMemory()
	require.NoError(t, s.CreateUser(context.Background(), &store.User{
		Username:    "alice",
		Email:       "alice@example.com",
		Authorities: []string{"ROLE_USER"},
	}))
	cfg := Config{Secret: secret, Issuer: "qim", TTL: time.Hour}
	return NewVerifier(cfg, s, nil), NewIssuer(cfg), s
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestVerifier_IssuedToken(t *testing.T) {
	v, issuer, s := setup(t)
	alice, err := s.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	token, err := issuer.Issue(alice)
	require.NoError(t, err)

	for _, credential := range []string{token, "Bearer " + token, "bearer " + token} {
		p, err := v.Verify(context.Background(), credential)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, p.UserID)
		assert.Equal(t, "alice", p.Username)
		assert.True(t, p.HasAuthority("ROLE_USER"))
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v, _, _ := setup(t)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name       string
		credential string
		want       error
	}{
		{"empty", "", ErrInvalidCredential},
		{"bearer only", "Bearer ", ErrInvalidCredential},
		{"garbage", "Bearer not.a.jwt", ErrInvalidCredential},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "alice", "iss": "qim", "exp": exp}), ErrInvalidCredential},
		{"wrong alg", sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"sub": "alice", "iss": "qim", "exp": exp}), ErrInvalidCredential},
		{"unsigned", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "alice", "iss": "qim", "exp": exp}), ErrInvalidCredential},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice", "iss": "qim", "exp": time.Now().Add(-time.Minute).Unix()}), ErrInvalidCredential},
		{"no exp", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice", "iss": "qim"}), ErrInvalidCredential},
		{"no sub", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"iss": "qim", "exp": exp}), ErrInvalidCredential},
		{"wrong issuer", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice", "iss": "evil", "exp": exp}), ErrInvalidCredential},
		{"unknown subject", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "bob", "iss": "qim", "exp": exp}), ErrUnknownSubject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := v.Verify(context.Background(), tc.credential)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVerifier_EmailSubject(t *testing.T) {
	v, _, _ := setup(t)
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "alice@example.com",
		"iss": "qim",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("  BEARER abc "))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.Equal(t, "Bear", StripBearer("Bear"))
}

// brokenUsers 模拟存储不可用
type brokenUsers struct{ store.UserStore }

func (brokenUsers) FindUserByUsername(context.Context, string) (*store.User, error) {
	return nil, errDBDown
}

var errDBDown = fmt.Errorf("connection refused")

func TestVerifier_StoreFailureIsServerError(t *testing.T) {
	cfg := Config{Secret: secret, Issuer: "qim", TTL: time.Hour}
	token, err := NewIssuer(cfg).Issue(&store.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	_, err = NewVerifier(cfg, brokenUsers{}, nil).Verify(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServer))
	assert.False(t, errors.Is(err, ErrUnknownSubject))
	assert.ErrorIs(t, err, errDBDown)
	assert.Equal(t, 500, errors.From(err).HttpCode)
}
