// Package api implements the HTTP surface of the scheduling service.
package api

import (
	"net/http"
	"strings"

	"apsplan/internal/auth"
)

// getPrincipal resolves the caller. A bearer token is checked with the
// configured verifier; without one the X-Tenant-Id and X-Role headers are
// trusted, defaulting to the configured tenant with the planner role.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		pr, err := s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		return pr, err == nil
	}
	if s.Auth != nil && s.Auth.Mode != "dev" {
		return auth.Principal{}, false
	}
	tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenant == "" {
		tenant = s.Config.DefaultTenant
	}
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
	if role == "" {
		role = auth.RolePlanner
	}
	return auth.Principal{Tenant: tenant, Role: role}, true
}

// RateKey identifies the caller for rate limiting: the tenant of a verified
// bearer token, else the remote host. Request headers and dev tokens are
// chosen by the client and never pick the bucket.
func (s *Server) RateKey(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if s.Auth != nil && s.Auth.Mode != "dev" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		if p, err := s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):])); err == nil {
			return "tenant:" + p.Tenant
		}
	}
	return remoteHost(r)
}

// principal writes 401 and returns false when the caller cannot be resolved.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
	}
	return p, ok
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.principal(w, r)
	if ok && !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, ok
}
