// Package auth verifies bearer tokens and extracts tenant and role claims.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the caller identity carried by a verified token.
type Principal struct {
	Tenant string
	Role   string
}

type Options struct {
	// Mode is one of dev, hmac or jwks.
	Mode        string
	HMACSecret  string
	JWKSURL     string
	TenantClaim string
	RoleClaim   string
	HTTPClient  *http.Client
	// KeyTTL bounds how long fetched JWKS keys are trusted.
	KeyTTL time.Duration
}

// Verifier validates bearer tokens for one configured mode.
type Verifier struct {
	opts Options
	keys *keySet
}

func NewVerifier(o Options) *Verifier {
	if o.TenantClaim == "" {
		o.TenantClaim = "tenant"
	}
	if o.RoleClaim == "" {
		o.RoleClaim = "role"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if o.KeyTTL == 0 {
		o.KeyTTL = 10 * time.Minute
	}
	v := &Verifier{opts: o}
	if o.Mode == "jwks" {
		v.keys = &keySet{url: o.JWKSURL, client: o.HTTPClient, ttl: o.KeyTTL}
	}
	return v
}

// TokenFromRequest returns the bearer token from the Authorization header, or
// the access_token query parameter for browser stream clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}

func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}
	if v.opts.Mode == "dev" {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, fmt.Errorf("%w: expected tenant:role", ErrInvalidToken)
		}
		return Principal{Tenant: tenant, Role: normalizeRole(role)}, nil
	}

	var (
		keyFunc jwt.Keyfunc
		method  string
	)
	switch v.opts.Mode {
	case "hmac":
		method = jwt.SigningMethodHS256.Alg()
		keyFunc = func(*jwt.Token) (any, error) { return []byte(v.opts.HMACSecret), nil }
	case "jwks":
		method = jwt.SigningMethodRS256.Alg()
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.keys.get(ctx, kid)
		}
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.opts.Mode)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, keyFunc, jwt.WithValidMethods([]string{method})); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tenant, _ := claims[v.opts.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.opts.TenantClaim)
	}
	role, _ := claims[v.opts.RoleClaim].(string)
	return Principal{Tenant: tenant, Role: normalizeRole(role)}, nil
}

// Tokens without a role get read-only access.
func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return "viewer"
	}
	return role
}

// keySet caches RSA keys fetched from a JWKS endpoint.
type keySet struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
	sf      singleflight.Group
}

// minRefresh limits refetches triggered by unknown key ids.
const minRefresh = 30 * time.Second

func (ks *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.RLock()
	key, ok := ks.keys[kid]
	age := time.Since(ks.fetched)
	ks.mu.RUnlock()
	if ok && age < ks.ttl {
		return key, nil
	}
	if !ok && !ks.fetched.IsZero() && age < minRefresh {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	if _, err, _ := ks.sf.Do("jwks", func() (any, error) { return nil, ks.refresh(ctx) }); err != nil {
		return nil, err
	}
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if key, ok := ks.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (ks *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return err
	}
	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		pub, err := k.rsaKey()
		if err != nil {
			return fmt.Errorf("jwks key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	ks.mu.Lock()
	ks.keys = keys
	ks.fetched = time.Now()
	ks.mu.Unlock()
	return nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
