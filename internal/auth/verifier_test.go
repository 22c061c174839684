package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_DevTokens(t *testing.T) {
	v := NewVerifier(Options{Mode: "dev"})
	p, err := v.Verify(context.Background(), "t_acme:Dispatcher")
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t_acme", Role: "dispatcher"}, p)

	p, err = v.Verify(context.Background(), "t_acme:")
	require.NoError(t, err)
	assert.Equal(t, "viewer", p.Role)

	_, err = v.Verify(context.Background(), "no-separator")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestVerify_HMAC(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "s3cret"})
	sign := func(secret string, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	p, err := v.Verify(context.Background(), sign("s3cret", jwt.MapClaims{"tenant": "t_acme", "role": "ADMIN"}))
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t_acme", Role: "admin"}, p)

	cases := map[string]string{
		"bad signature":  sign("other", jwt.MapClaims{"tenant": "t_acme"}),
		"expired":        sign("s3cret", jwt.MapClaims{"tenant": "t_acme", "exp": time.Now().Add(-time.Minute).Unix()}),
		"missing tenant": sign("s3cret", jwt.MapClaims{"role": "admin"}),
		"not a jwt":      "abc.def",
	}
	for name, tok := range cases {
		_, err := v.Verify(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestVerify_CustomClaims(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "k", TenantClaim: "org", RoleClaim: "scope"})
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"org": "t_x", "scope": "dispatcher"}).SignedString([]byte("k"))
	require.NoError(t, err)
	p, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t_x", Role: "dispatcher"}, p)
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	doc := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits atomic.Int32
	srv := jwksServer(t, "k1", &key.PublicKey, &hits)
	v := NewVerifier(Options{Mode: "jwks", JWKSURL: srv.URL})

	sign := func(kid string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"tenant": "t_rsa", "role": "viewer"})
		tok.Header["kid"] = kid
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	for i := 0; i < 3; i++ {
		p, err := v.Verify(context.Background(), sign("k1"))
		require.NoError(t, err)
		assert.Equal(t, "t_rsa", p.Tenant)
	}
	assert.Equal(t, int32(1), hits.Load(), "keys are cached")

	_, err = v.Verify(context.Background(), sign("k2"))
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, int32(1), hits.Load(), "unknown kids do not refetch immediately")

	// an HS256 token is rejected even if it names a known kid
	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant": "t_rsa"})
	hs.Header["kid"] = "k1"
	forged, err := hs.SignedString([]byte("whatever"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), forged)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/v1/plans/stream?access_token=xyz", nil)
	assert.Equal(t, "xyz", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}
