// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package staging owns the local scratch area used between an upload and the
// remote store. Every File and Dir is owned by the operation that created it
// and must be removed by that operation on every exit path.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// ErrEmptyPayload is returned by Stage when the reader yields no bytes.
var ErrEmptyPayload = errors.New("staging: empty payload")

// Area is a directory holding per-operation staging entries.
type Area struct {
	root string
}

// New prepares root (creating it if needed) and returns an Area over it.
func New(root string) (*Area, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("staging: root is empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("staging: create root: %w", err)
	}
	return &Area{root: root}, nil
}

// Root returns the directory backing the area.
func (a *Area) Root() string { return a.root }

// File is a staged file. Remove is idempotent.
type File struct {
	Path string
	once sync.Once
	err  error
}

// Remove deletes the file. Calling it more than once is safe.
func (f *File) Remove() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			f.err = err
		}
	})
	return f.err
}

// Dir is a staged directory. Remove is idempotent.
type Dir struct {
	Path string
	once sync.Once
	err  error
}

// Remove deletes the directory tree.
func (d *Dir) Remove() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.err = os.RemoveAll(d.Path)
	})
	return d.err
}

// Files lists the regular files directly inside the directory, sorted by name.
func (d *Dir) Files() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(d.Path, e.Name()))
		}
	}
	return out, nil
}

func (a *Area) name(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(a.root, uuid.NewString()+ext)
}

// NewFile creates an empty staged file with the given extension and returns it open for writing.
func (a *Area) NewFile(ext string) (*File, *os.File, error) {
	path := a.name(ext)
	// #nosec G304 -- path is generated inside the staging root
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("staging: create file: %w", err)
	}
	return &File{Path: path}, fh, nil
}

// NewDir creates a fresh staged directory whose name starts with prefix.
func (a *Area) NewDir(prefix string) (*Dir, error) {
	if prefix == "" {
		prefix = "dir"
	}
	path := filepath.Join(a.root, prefix+"_"+uuid.NewString())
	if err := os.Mkdir(path, 0o750); err != nil {
		return nil, fmt.Errorf("staging: create dir: %w", err)
	}
	return &Dir{Path: path}, nil
}

// Stage copies r into a new staged file. An empty payload is rejected with
// ErrEmptyPayload and leaves nothing behind.
func (a *Area) Stage(r io.Reader, ext string) (*File, int64, error) {
	f, fh, err := a.NewFile(ext)
	if err != nil {
		return nil, 0, err
	}
	n, copyErr := io.Copy(fh, r)
	closeErr := fh.Close()
	switch {
	case copyErr != nil:
		_ = f.Remove()
		return nil, 0, fmt.Errorf("staging: copy payload: %w", copyErr)
	case closeErr != nil:
		_ = f.Remove()
		return nil, 0, fmt.Errorf("staging: close payload: %w", closeErr)
	case n == 0:
		_ = f.Remove()
		return nil, 0, ErrEmptyPayload
	}
	return f, n, nil
}

// WriteFile atomically writes data to a new staged file.
func (a *Area) WriteFile(ext string, data []byte) (*File, error) {
	path := a.name(ext)
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("staging: write file: %w", err)
	}
	return &File{Path: path}, nil
}

// OpenEphemeral opens f for reading. Closing the returned reader closes the
// handle and removes f, exactly once, whether or not it was fully consumed.
func (f *File) OpenEphemeral() (io.ReadCloser, int64, error) {
	// #nosec G304 -- path is generated inside the staging root
	fh, err := os.Open(f.Path)
	if err != nil {
		_ = f.Remove()
		return nil, 0, fmt.Errorf("staging: open: %w", err)
	}
	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		_ = f.Remove()
		return nil, 0, fmt.Errorf("staging: stat: %w", err)
	}
	return &ephemeralReader{File: fh, owner: f}, info.Size(), nil
}

type ephemeralReader struct {
	*os.File
	owner *File
	once  sync.Once
	err   error
}

func (r *ephemeralReader) Close() error {
	r.once.Do(func() {
		closeErr := r.File.Close()
		removeErr := r.owner.Remove()
		r.err = errors.Join(closeErr, removeErr)
	})
	return r.err
}
