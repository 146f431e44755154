package auth

import (
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
)

func hs256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func rs256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDevTokens(t *testing.T) {
	v := NewVerifier("", "", "")
	p, err := v.Verify("acme:Planner")
	if err != nil || p.Tenant != "acme" || p.Role != RolePlanner || !p.CanSubmit() || p.Verified {
		t.Fatalf("dev token: %+v %v", p, err)
	}
	for _, bad := range []string{"acme", "acme:", ":admin"} {
		if _, err := v.Verify(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	p, _ = v.Verify("acme:viewer")
	if p.CanSubmit() || !p.CanWatch() {
		t.Fatalf("viewer permissions: %+v", p)
	}
	p, _ = v.Verify("acme:guest")
	if p.CanWatch() {
		t.Fatal("unknown role must not watch")
	}
}

func TestHMACTokens(t *testing.T) {
	v := NewVerifier("hmac", "s3cret", "")
	tok := hs256(t, "s3cret", jwt.MapClaims{"tenant": "acme", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()})
	p, err := v.Verify(tok)
	if err != nil || p.Tenant != "acme" || p.Role != RoleAdmin || !p.Verified {
		t.Fatalf("hmac token: %+v %v", p, err)
	}

	if _, err := v.Verify(hs256(t, "wrong", jwt.MapClaims{"tenant": "acme"})); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected bad signature, got %v", err)
	}
	if _, err := v.Verify(hs256(t, "s3cret", jwt.MapClaims{"role": "admin"})); err == nil {
		t.Fatal("expected missing tenant error")
	}
	expired := hs256(t, "s3cret", jwt.MapClaims{"tenant": "acme", "exp": time.Now().Add(-time.Minute).Unix()})
	if _, err := v.Verify(expired); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
	p, err = v.Verify(hs256(t, "s3cret", jwt.MapClaims{"tenant": "acme"}))
	if err != nil || p.Role != RoleViewer {
		t.Fatalf("default role: %+v %v", p, err)
	}
	if _, err := v.Verify("not.a-jwt"); err == nil {
		t.Fatal("expected malformed token error")
	}
}

func TestHMACRejectsOtherAlgorithms(t *testing.T) {
	v := NewVerifier("hmac", "s3cret", "")
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"tenant": "acme"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(none); err == nil {
		t.Fatal("alg none must be rejected")
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"tenant": "acme"}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(hs512); err == nil {
		t.Fatal("HS512 must be rejected")
	}
}

func TestJWKSTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA", Kid: "k1", Alg: "RS256",
			N: base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := NewVerifier("jwks", "", srv.URL)
	tok := rs256(t, key, "k1", jwt.MapClaims{"tenant": "acme", "role": "planner"})
	for i := 0; i < 2; i++ {
		p, err := v.Verify(tok)
		if err != nil || p.Tenant != "acme" || p.Role != RolePlanner || !p.Verified {
			t.Fatalf("jwks token: %+v %v", p, err)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Fatalf("keys fetched %d times, want 1", n)
	}

	if _, err := v.Verify(rs256(t, key, "k2", jwt.MapClaims{"tenant": "acme"})); err == nil {
		t.Fatal("expected unknown kid error")
	}
	if _, err := v.Verify(hs256(t, "anything", jwt.MapClaims{"tenant": "acme"})); err == nil {
		t.Fatal("HS256 must be rejected in jwks mode")
	}
}

func TestJWKSUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier("jwks", "", srv.URL)
	if _, err := v.Verify(rs256(t, key, "k1", jwt.MapClaims{"tenant": "acme"})); err == nil {
		t.Fatal("expected error when JWKS cannot be fetched")
	}
}
