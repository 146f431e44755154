// Package auth verifies bearer tokens and extracts the tenant and role of the
// caller.
package auth

import (
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
)

// Roles understood by the API.
const (
	RoleAdmin   = "admin"
	RolePlanner = "planner"
	RoleViewer  = "viewer"
)

// Modes accepted by NewVerifier.
const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
	ModeJWKS = "jwks"
)

// Principal is the caller of a request. Verified is false for dev-mode
// identities, which the caller chose freely.
type Principal struct {
	Tenant   string
	Role     string
	Verified bool
}

// CanSubmit reports whether the principal may start solves.
func (p Principal) CanSubmit() bool { return p.Role == RoleAdmin || p.Role == RolePlanner }

// CanWatch reports whether the principal may read runs and their reports.
func (p Principal) CanWatch() bool { return p.CanSubmit() || p.Role == RoleViewer }

// Verifier checks bearer tokens: dev ("tenant:role", unchecked), hmac (HS256
// with a shared secret) or jwks (RS256 with keys fetched from JWKSURL).
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	JWKSURL     string
	TenantClaim string
	RoleClaim   string

	http     *http.Client
	cacheTTL time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

// NewVerifier builds a verifier for mode (dev when empty).
func NewVerifier(mode, hmacSecret, jwksURL string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeDev
	}
	return &Verifier{
		Mode:        mode,
		HMACSecret:  []byte(hmacSecret),
		JWKSURL:     jwksURL,
		TenantClaim: "tenant",
		RoleClaim:   "role",
		http:        &http.Client{Timeout: 5 * time.Second},
		cacheTTL:    10 * time.Minute,
	}
}

// Verify turns a bearer token into a principal.
func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == ModeDev {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" || role == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}

	var (
		keyFunc jwt.Keyfunc
		method  string
	)
	switch v.Mode {
	case ModeHMAC:
		method = jwt.SigningMethodHS256.Alg()
		keyFunc = func(*jwt.Token) (any, error) { return v.HMACSecret, nil }
	case ModeJWKS:
		method = jwt.SigningMethodRS256.Alg()
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.rsaKey(kid)
		}
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, keyFunc, jwt.WithValidMethods([]string{method})); err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	tenant, _ := claims[v.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("verify token: missing %q claim", v.TenantClaim)
	}
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = RoleViewer
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role), Verified: true}, nil
}

// minRefetch limits how often an unknown kid can trigger a JWKS fetch.
const minRefetch = 30 * time.Second

// rsaKey returns the JWKS key for kid, refetching the set when it is stale or
// the kid is unknown.
func (v *Verifier) rsaKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	age := time.Since(v.lastFetch)
	fetched := v.keys != nil
	v.mu.RUnlock()
	if ok && age <= v.cacheTTL {
		return key, nil
	}
	if !ok && fetched && age < minRefetch {
		return nil, fmt.Errorf("kid %q not found in JWKS", kid)
	}
	if err := v.fetchJWKS(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk %s modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s exponent: %w", k.Kid, err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("jwk %s: bad exponent", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("jwks url not configured")
	}
	resp, err := v.http.Get(v.JWKSURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return err
		}
		keys[k.Kid] = pub
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
