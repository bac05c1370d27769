// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfy/skyfy/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func newTestManager(t *testing.T, addr string) Manager {
	t.Helper()
	m, err := NewManager(config.ServerConfig{ListenAddr: addr, ShutdownTimeout: 5 * time.Second},
		Deps{Logger: zerolog.Nop(), Handler: okHandler()})
	require.NoError(t, err)
	return m
}

func startAsync(ctx context.Context, m Manager) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	return done
}

func waitAddr(t *testing.T, addr func() net.Addr) string {
	t.Helper()
	require.Eventually(t, func() bool { return addr() != nil }, 5*time.Second, 10*time.Millisecond)
	return addr().String()
}

func TestNewManager_MissingHandler(t *testing.T) {
	_, err := NewManager(config.ServerConfig{}, Deps{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrMissingHandler)
}

func TestManager_StartServeStop(t *testing.T) {
	m := newTestManager(t, "127.0.0.1:0")
	var order []string
	m.RegisterShutdownHook("first", func(context.Context) error { order = append(order, "first"); return nil })
	m.RegisterShutdownHook("second", func(context.Context) error { order = append(order, "second"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, m)
	addr := waitAddr(t, m.Addr)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyStarted)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	m := newTestManager(t, "127.0.0.1:0")
	boom := errors.New("boom")
	m.RegisterShutdownHook("bad", func(context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, m)
	waitAddr(t, m.Addr)
	cancel()
	assert.ErrorIs(t, <-done, boom)
}

func TestManager_ShutdownNotStarted(t *testing.T) {
	m := newTestManager(t, "127.0.0.1:0")
	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	m := newTestManager(t, ln.Addr().String())
	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

func TestApp_RequiresManager(t *testing.T) {
	assert.ErrorIs(t, NewApp(zerolog.Nop(), nil, nil).Run(context.Background()), ErrMissingManager)
}

func TestWaitWithContext(t *testing.T) {
	assert.NoError(t, waitWithContext(context.Background(), func() {}))

	block := make(chan struct{})
	defer close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, waitWithContext(ctx, func() { <-block }), context.DeadlineExceeded)
}
