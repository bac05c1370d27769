// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/skyfy/skyfy/internal/auth"
)

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="skyfy"`)
	writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.deps.Resolver.ResolveRequest(r)
		if !ok {
			writeUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// optionalAuth lets anonymous requests through but still rejects a token
// that does not resolve.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.ExtractToken(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, ok := s.deps.Resolver.ResolveRequest(r)
		if !ok {
			writeUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}
