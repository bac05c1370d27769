// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc ", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/content/all", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractToken(r), tt.header)
	}
	assert.Empty(t, ExtractToken(nil))
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("secret", "secret"))
	assert.False(t, AuthorizeToken("secret", "other"))
	assert.False(t, AuthorizeToken("", "secret"))
	assert.False(t, AuthorizeToken("secret", " "))
}

func TestResolver(t *testing.T) {
	r := NewResolver(map[string]int64{"alice-token": 1, "bob-token": 2, " ": 3, "zero": 0})
	assert.Equal(t, 2, r.Len())

	p, ok := r.Resolve("bob-token")
	assert.True(t, ok)
	assert.Equal(t, Principal{UserID: 2}, p)

	_, ok = r.Resolve("mallory")
	assert.False(t, ok)
	_, ok = r.Resolve("")
	assert.False(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer alice-token")
	p, ok = r.ResolveRequest(req)
	assert.True(t, ok)
	assert.EqualValues(t, 1, p.UserID)

	_, ok = r.ResolveRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Zero(t, UserID(ctx))

	ctx = WithPrincipal(ctx, Principal{UserID: 9})
	p, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.EqualValues(t, 9, p.UserID)
	assert.EqualValues(t, 9, UserID(ctx))
}
