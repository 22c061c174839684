// Package api implements HTTP handlers and helpers for the fleetroute service.
package api

import (
	"context"
	"net/http"
	"strings"

	"fleetroute/internal/auth"
)

const defaultTenant = "t_demo"

type Principal struct {
	Tenant string
	Role   string // admin, dispatcher, viewer
}

type principalKey struct{}

// getPrincipal returns the identity established by authMiddleware. Without
// token auth it reads X-Tenant-Id and X-Role, trusting an upstream gateway.
func (s *Server) getPrincipal(r *http.Request) Principal {
	if p, ok := r.Context().Value(principalKey{}).(Principal); ok {
		return p
	}
	tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
	if tenant == "" {
		tenant = defaultTenant
	}
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanPlan reports whether the principal may submit solves.
func (p Principal) CanPlan() bool { return p.IsAdmin() || p.Role == "dispatcher" }

// authMiddleware verifies bearer tokens when an auth mode is configured.
// Probes, metrics and API docs stay public.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.Auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics", "/openapi.yaml", "/openapi.json", "/docs":
			next.ServeHTTP(w, r)
			return
		}
		ap, err := s.Auth.Verify(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			s.Log.Debugf("auth rejected path=%s: %v", r.URL.Path, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="fleetroute"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, Principal{Tenant: ap.Tenant, Role: ap.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
