// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth resolves bearer tokens to callers. Token issuance lives
// outside this service; tokens are configured statically.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken returns the bearer token of r, or "".
func ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// AuthorizeToken reports whether got equals expected in constant time.
// Empty tokens never match.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

type entry struct {
	token  string
	userID int64
}

// Resolver maps configured tokens to principals.
type Resolver struct {
	entries []entry
}

// NewResolver builds a resolver from token -> user id. Blank tokens and
// non-positive ids are ignored.
func NewResolver(tokens map[string]int64) *Resolver {
	r := &Resolver{}
	for tok, id := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" || id <= 0 {
			continue
		}
		r.entries = append(r.entries, entry{token: tok, userID: id})
	}
	return r
}

// Len returns the number of usable tokens.
func (r *Resolver) Len() int { return len(r.entries) }

// Resolve returns the principal for token. Every entry is compared so the
// time taken does not depend on which one matches.
func (r *Resolver) Resolve(token string) (Principal, bool) {
	var (
		match Principal
		found bool
	)
	for _, e := range r.entries {
		if AuthorizeToken(token, e.token) && !found {
			match = Principal{UserID: e.userID}
			found = true
		}
	}
	return match, found
}

// ResolveRequest extracts and resolves the bearer token of req.
func (r *Resolver) ResolveRequest(req *http.Request) (Principal, bool) {
	tok := ExtractToken(req)
	if tok == "" {
		return Principal{}, false
	}
	return r.Resolve(tok)
}
