// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remotetest runs an in-memory SFTP server for tests, with hooks to
// inject upload failures, stalls and outages.
package remotetest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"

	"github.com/skyfy/skyfy/internal/remotestore"
)

// ErrInjected is the failure returned by injected faults.
var ErrInjected = errors.New("remotetest: injected failure")

// Server is an in-memory SFTP backend shared by every session dialed from it.
type Server struct {
	handlers sftp.Handlers

	mu           sync.Mutex
	down         bool
	writes       int
	failWriteAt  int
	stallStat    bool
	dials        int
	openSessions int

	release chan struct{}
	wg      sync.WaitGroup
}

// New starts a server and returns a Store rooted at "/" that dials it.
func New(t testing.TB) (*remotestore.Store, *Server) {
	t.Helper()
	srv := &Server{release: make(chan struct{})}
	mem := sftp.InMemHandler()
	srv.handlers = sftp.Handlers{
		FileGet:  mem.FileGet,
		FilePut:  writeHook{inner: mem.FilePut, srv: srv},
		FileCmd:  mem.FileCmd,
		FileList: listHook{inner: mem.FileList, srv: srv},
	}
	t.Cleanup(func() {
		close(srv.release)
		srv.wg.Wait()
	})
	return remotestore.NewWithDialer("/", 0, srv.Dial), srv
}

// Dial implements remotestore.DialFunc over net.Pipe.
func (s *Server) Dial(context.Context) (*sftp.Client, io.Closer, error) {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return nil, nil, errors.New("remotetest: connection refused")
	}
	s.dials++
	s.openSessions++
	s.mu.Unlock()

	clientConn, serverConn := net.Pipe()
	rs := sftp.NewRequestServer(serverConn, s.handlers)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = rs.Serve()
		_ = rs.Close()
	}()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		_ = clientConn.Close()
		_ = serverConn.Close()
		s.sessionClosed()
		return nil, nil, err
	}
	var once sync.Once
	return client, closer(func() error {
		var err error
		once.Do(func() {
			err = client.Close()
			_ = serverConn.Close()
			s.sessionClosed()
		})
		return err
	}), nil
}

func (s *Server) sessionClosed() {
	s.mu.Lock()
	s.openSessions--
	s.mu.Unlock()
}

// SetDown makes subsequent dials fail.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// FailWriteAt makes the n-th file write (1-based, counted from now) fail.
// Zero disables injection.
func (s *Server) FailWriteAt(n int) {
	s.mu.Lock()
	s.writes = 0
	s.failWriteAt = n
	s.mu.Unlock()
}

// Writes returns how many file writes were opened since the last FailWriteAt.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// StallStat makes Stat requests hang until the test ends.
func (s *Server) StallStat(stall bool) {
	s.mu.Lock()
	s.stallStat = stall
	s.mu.Unlock()
}

// OpenSessions returns dialed sessions that were not closed yet.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openSessions
}

// Dials returns the number of successful dials.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

type closer func() error

func (c closer) Close() error { return c() }

type writeHook struct {
	inner sftp.FileWriter
	srv   *Server
}

func (w writeHook) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	w.srv.mu.Lock()
	w.srv.writes++
	fail := w.srv.failWriteAt > 0 && w.srv.writes == w.srv.failWriteAt
	w.srv.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return w.inner.Filewrite(r)
}

type listHook struct {
	inner sftp.FileLister
	srv   *Server
}

func (l listHook) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	l.srv.mu.Lock()
	stall := l.srv.stallStat && r.Method == "Stat"
	l.srv.mu.Unlock()
	if stall {
		select {
		case <-l.srv.release:
		case <-time.After(10 * time.Second):
		}
		return nil, ErrInjected
	}
	return l.inner.Filelist(r)
}
