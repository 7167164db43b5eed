package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testIssuer struct {
	key *rsa.PrivateKey
	kid string
	url string
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := &testIssuer{key: key, kid: "key-1"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{{
			Kid: iss.kid,
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(srv.Close)
	iss.url = srv.URL
	return iss
}

func (iss *testIssuer) sign(t *testing.T, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(iss.key)
	require.NoError(t, err)
	return s
}

func newTestKeySet(t *testing.T, iss *testIssuer, now time.Time) *KeySet {
	t.Helper()
	ks := NewKeySet(iss.url+"/", nil)
	ks.now = func() time.Time { return now }
	require.NoError(t, ks.Refresh(context.Background()))
	return ks
}

func TestKeySet_Verify(t *testing.T) {
	iss := newTestIssuer(t)
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	ks := newTestKeySet(t, iss, now)

	token := iss.sign(t, iss.kid, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    iss.url,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Name: "Ada",
	})

	claims, err := ks.Verify("Bearer " + token)
	require.NoError(t, err)
	v, err := claims.Viewer()
	require.NoError(t, err)
	assert.Equal(t, "user-1", v.ID)
	assert.Equal(t, "Ada", v.DisplayName)
}

func TestKeySet_VerifyRejects(t *testing.T) {
	iss := newTestIssuer(t)
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	ks := newTestKeySet(t, iss, now)
	valid := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    iss.url,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	t.Run("expired", func(t *testing.T) {
		c := valid
		c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		_, err := ks.Verify(iss.sign(t, iss.kid, Claims{RegisteredClaims: c}))
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := valid
		c.Issuer = "https://evil.example.com"
		_, err := ks.Verify(iss.sign(t, iss.kid, Claims{RegisteredClaims: c}))
		assert.ErrorContains(t, err, "invalid issuer")
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := ks.Verify(iss.sign(t, "other", Claims{RegisteredClaims: valid}))
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("hmac token", func(t *testing.T) {
		_, err := ks.Verify(signHS256(t, Claims{RegisteredClaims: valid}))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ks.Verify("")
		assert.ErrorIs(t, err, ErrTokenEmpty)
	})
}

func TestKeySet_VerifyBeforeRefresh(t *testing.T) {
	iss := newTestIssuer(t)
	ks := NewKeySet(iss.url, nil)

	_, err := ks.Verify(iss.sign(t, iss.kid, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}))

	assert.ErrorContains(t, err, "JWKS not initialized")
}

func TestKeySet_RefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	err := NewKeySet(srv.URL, nil).Refresh(context.Background())

	assert.ErrorContains(t, err, "status 404")
}
