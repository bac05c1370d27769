// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remotestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metrics"
)

// do runs fn bounded by ctx and the session's op timeout. When the bound
// expires first the connection is torn down, fn is drained and the op
// fails with ErrUnavailable; the session is unusable afterwards.
func (s *Session) do(ctx context.Context, op, p string, fn func() error) (err error) {
	defer func() { metrics.ObserveRemoteOp(op, err) }()

	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}
	if cerr := ctx.Err(); cerr != nil {
		return unavailable(op, p, cerr)
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		_ = s.Close()
		<-done
		l := log.WithContext(ctx, s.logger)
		l.Warn().
			Err(ctx.Err()).
			Str(log.FieldEvent, "remotestore.op_aborted").
			Str(log.FieldRemoteOp, op).
			Str(log.FieldRemotePath, p).
			Msg("remote operation exceeded its deadline; connection closed")
		return unavailable(op, p, ctx.Err())
	}
}

func (s *Session) abs(p string) string {
	return path.Join(s.root, p)
}

// Exists reports whether path exists.
func (s *Session) Exists(ctx context.Context, p string) (bool, error) {
	target := s.abs(p)
	var found bool
	err := s.do(ctx, "exists", target, func() error {
		_, err := s.client.Stat(target)
		switch {
		case err == nil:
			found = true
			return nil
		case isNotExist(err):
			return nil
		default:
			return unavailable("exists", target, err)
		}
	})
	return found, err
}

// EnsureDirectory creates every missing directory from the root down to
// path, in order. Existing directories are tolerated.
func (s *Session) EnsureDirectory(ctx context.Context, p string) error {
	target := s.abs(p)
	return s.do(ctx, "mkdir", target, func() error {
		cur := ""
		if strings.HasPrefix(target, "/") {
			cur = "/"
		}
		for _, part := range strings.Split(strings.Trim(target, "/"), "/") {
			if part == "" {
				continue
			}
			cur = path.Join(cur, part)
			info, err := s.client.Stat(cur)
			if err == nil {
				if !info.IsDir() {
					return &OpError{Op: "mkdir", Path: cur, Kind: ErrConflict, Err: errors.New("not a directory")}
				}
				continue
			}
			if !isNotExist(err) {
				return unavailable("mkdir", cur, err)
			}
			if err := s.client.Mkdir(cur); err != nil {
				// a concurrent creator may have won
				if info, serr := s.client.Stat(cur); serr == nil && info.IsDir() {
					continue
				}
				return unavailable("mkdir", cur, err)
			}
		}
		return nil
	})
}

// Upload copies a local file to remotePath.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string, overwrite bool) error {
	// #nosec G304 -- local path is a staging file
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("remotestore: open local %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()
	return s.UploadReader(ctx, f, remotePath, overwrite)
}

// UploadReader streams r to remotePath. Without overwrite an existing file
// fails with ErrConflict; with overwrite it is replaced.
func (s *Session) UploadReader(ctx context.Context, r io.Reader, remotePath string, overwrite bool) error {
	target := s.abs(remotePath)
	return s.do(ctx, "upload", target, func() error {
		if _, err := s.client.Stat(target); err == nil {
			if !overwrite {
				return &OpError{Op: "upload", Path: target, Kind: ErrConflict}
			}
			if err := s.client.Remove(target); err != nil && !isNotExist(err) {
				return unavailable("upload", target, err)
			}
		} else if !isNotExist(err) {
			return unavailable("upload", target, err)
		}

		dst, err := s.client.Create(target)
		if err != nil {
			return unavailable("upload", target, err)
		}
		n, copyErr := io.Copy(dst, r)
		closeErr := dst.Close()
		metrics.AddRemoteBytes("upload", n)
		if err := errors.Join(copyErr, closeErr); err != nil {
			return unavailable("upload", target, err)
		}
		return nil
	})
}

// Download streams remotePath into w. A missing path fails with ErrNotFound.
func (s *Session) Download(ctx context.Context, remotePath string, w io.Writer) error {
	target := s.abs(remotePath)
	return s.do(ctx, "download", target, func() error {
		src, err := s.client.Open(target)
		if err != nil {
			if isNotExist(err) {
				return &OpError{Op: "download", Path: target, Kind: ErrNotFound}
			}
			return unavailable("download", target, err)
		}
		defer func() { _ = src.Close() }()

		n, err := io.Copy(w, src)
		metrics.AddRemoteBytes("download", n)
		if err != nil {
			return unavailable("download", target, err)
		}
		return nil
	})
}

// DeleteRecursive removes path and everything below it: files first, then
// subdirectories depth-first, then path itself. A missing path is a no-op.
func (s *Session) DeleteRecursive(ctx context.Context, p string) error {
	target := s.abs(p)
	if path.Clean(target) == path.Clean(s.root) {
		return &OpError{Op: "delete", Path: target, Kind: ErrConflict, Err: errors.New("refusing to delete store root")}
	}
	return s.do(ctx, "delete", target, func() error {
		return s.deleteTree(target)
	})
}

func (s *Session) deleteTree(p string) error {
	info, err := s.client.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return unavailable("delete", p, err)
	}
	if !info.IsDir() {
		return s.removeFile(p)
	}

	entries, err := s.client.ReadDir(p)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return unavailable("delete", p, err)
	}
	var dirs []string
	for _, e := range entries {
		child := path.Join(p, e.Name())
		if e.IsDir() {
			dirs = append(dirs, child)
			continue
		}
		if err := s.removeFile(child); err != nil {
			return err
		}
	}
	for _, d := range dirs {
		if err := s.deleteTree(d); err != nil {
			return err
		}
	}
	if err := s.client.RemoveDirectory(p); err != nil && !isNotExist(err) {
		return unavailable("delete", p, err)
	}
	return nil
}

func (s *Session) removeFile(p string) error {
	if err := s.client.Remove(p); err != nil && !isNotExist(err) {
		return unavailable("delete", p, err)
	}
	return nil
}
