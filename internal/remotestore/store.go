// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remotestore is the SFTP client for the content store. Every
// operation runs on an explicitly acquired Session that the caller releases.
package remotestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/skyfy/skyfy/internal/config"
	"github.com/skyfy/skyfy/internal/log"
)

// Config holds SFTP connection settings.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	// KnownHostsPath enables host key verification. Empty accepts any key.
	KnownHostsPath string
	Root           string
	DialTimeout    time.Duration
	OpTimeout      time.Duration
}

// FromAppConfig maps the remote section of the application config.
func FromAppConfig(cfg config.RemoteConfig) Config {
	return Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		PrivateKeyPath: cfg.PrivateKeyPath,
		KnownHostsPath: cfg.KnownHostsPath,
		Root:           cfg.Root,
		DialTimeout:    cfg.DialTimeout,
		OpTimeout:      cfg.OpTimeout,
	}
}

// DialFunc opens an SFTP client. The returned closer releases everything the
// dial opened, including the client.
type DialFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// Store creates sessions against one SFTP server.
type Store struct {
	root      string
	opTimeout time.Duration
	dial      DialFunc
	logger    zerolog.Logger
}

// New builds a Store that dials over SSH.
func New(cfg Config) (*Store, error) {
	sshCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dialTimeout := cfg.DialTimeout

	dial := func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, err
		}
		if dialTimeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(dialTimeout))
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		_ = conn.SetDeadline(time.Time{})
		sshClient := ssh.NewClient(c, chans, reqs)
		client, err := sftp.NewClient(sshClient)
		if err != nil {
			_ = sshClient.Close()
			return nil, nil, err
		}
		return client, closerFunc(func() error {
			return errors.Join(client.Close(), sshClient.Close())
		}), nil
	}
	return NewWithDialer(cfg.Root, cfg.OpTimeout, dial), nil
}

// NewWithDialer builds a Store over a custom transport.
func NewWithDialer(root string, opTimeout time.Duration, dial DialFunc) *Store {
	if root == "" {
		root = "/"
	}
	return &Store{
		root:      root,
		opTimeout: opTimeout,
		dial:      dial,
		logger:    log.WithComponent("remotestore"),
	}
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, fmt.Errorf("remotestore: host and username are required")
	}
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		// #nosec G304 -- operator supplied key path
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("remotestore: read private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("remotestore: parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("remotestore: password or private key required")
	}

	hostKey := ssh.InsecureIgnoreHostKey() // #nosec G106 -- opt-in via empty knownHostsPath
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("remotestore: load known hosts: %w", err)
		}
		hostKey = cb
	} else {
		l := log.WithComponent("remotestore")
		l.Warn().
			Str(log.FieldEvent, "remotestore.insecure_host_key").
			Msg("host key verification disabled; set remote.knownHostsPath")
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.DialTimeout,
	}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Acquire opens one connection. The caller must Close the session.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	client, closer, err := s.dial(ctx)
	if err != nil {
		return nil, unavailable("connect", s.root, err)
	}
	return &Session{
		client:    client,
		closer:    closer,
		root:      s.root,
		opTimeout: s.opTimeout,
		logger:    s.logger,
	}, nil
}

// WithSession acquires a session, runs fn and always releases the session.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) error {
	sess, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			l := log.WithContext(ctx, s.logger)
			l.Debug().Err(cerr).
				Str(log.FieldEvent, "remotestore.close_failed").
				Msg("closing sftp session")
		}
	}()
	return fn(sess)
}

// Session is one SFTP connection. It is not safe for concurrent use.
type Session struct {
	client    *sftp.Client
	closer    io.Closer
	root      string
	opTimeout time.Duration
	logger    zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Close releases the connection. Calling it more than once is safe.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
			return
		}
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
