// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	return m
}

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
	}{
		{name: "nil context", ctx: nil, id: "req-1"},
		{name: "background context", ctx: context.Background(), id: "req-2"},
		{name: "empty id", ctx: context.Background(), id: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.id)
			assert.Equal(t, tt.id, RequestIDFromContext(ctx))
		})
	}
}

func TestContentIDFromContext(t *testing.T) {
	_, ok := ContentIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := ContentIDFromContext(ContextWithContentID(context.Background(), 42))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestWithComponentFromContext_AddsCorrelationFields(t *testing.T) {
	buf := captureLogs(t)

	ctx := ContextWithRequestID(context.Background(), "abc")
	ctx = ContextWithContentID(ctx, 7)
	l := WithComponentFromContext(ctx, "pipeline")
	l.Info().Msg("hello")

	m := decodeLine(t, buf)
	assert.Equal(t, "pipeline", m[FieldComponent])
	assert.Equal(t, "abc", m[FieldRequestID])
	assert.Equal(t, "7", m[FieldContentID])
	assert.Equal(t, "test", m["service"])
}

func TestMiddleware_LogsStatus(t *testing.T) {
	buf := captureLogs(t)

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/content/1/Cover", nil))

	m := decodeLine(t, buf)
	assert.Equal(t, "request.handled", m[FieldEvent])
	assert.Equal(t, float64(http.StatusTeapot), m["status"])
	assert.Equal(t, float64(5), m["bytes"])
	assert.Equal(t, "/content/1/Cover", m[FieldPath])
}

func TestMiddleware_AttachesRequestLogger(t *testing.T) {
	buf := captureLogs(t)

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info().Str(FieldEvent, "handler.ran").Msg("inside")
	}))
	req := httptest.NewRequest(http.MethodGet, "/content", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "req-7"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "handler.ran", first[FieldEvent])
	assert.Equal(t, "http", first[FieldComponent])
	assert.Equal(t, "req-7", first[FieldRequestID])
}

func TestFromContext_FallsBackToBase(t *testing.T) {
	buf := captureLogs(t)

	ctx := ContextWithRequestID(context.Background(), "req-9")
	FromContext(ctx).Info().Msg("no attached logger")

	m := decodeLine(t, buf)
	assert.Equal(t, "req-9", m[FieldRequestID])
	assert.Equal(t, "test", m["service"])
}

func TestDerive_AddsFields(t *testing.T) {
	buf := captureLogs(t)

	l := Derive(func(c *zerolog.Context) {
		*c = c.Str(FieldComponent, "main").Str("commit", "abc123")
	})
	l.Info().Msg("hello")

	m := decodeLine(t, buf)
	assert.Equal(t, "main", m[FieldComponent])
	assert.Equal(t, "abc123", m["commit"])
}
