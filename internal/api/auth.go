// Package api implements the HTTP surface of the routing service.
package api

import (
	"errors"
	"net/http"
	"strings"

	"fleetvrp/internal/auth"
)

var errUnauthenticated = errors.New("missing or invalid bearer token")

// getPrincipal extracts tenant and role from the bearer token using the
// configured verifier (dev/hmac/jwks). In dev mode requests without a token
// fall back to the X-Tenant-Id and X-Role headers.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		if err != nil {
			return auth.Principal{}, errUnauthenticated
		}
		return pr, nil
	}
	if s.Auth != nil && s.Auth.Mode != "dev" {
		return auth.Principal{}, errUnauthenticated
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := strings.ToLower(r.Header.Get("X-Role"))
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: role}, nil
}

// principal writes a 401 problem and reports false when the caller is not
// authenticated.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return auth.Principal{}, false
	}
	return p, true
}
