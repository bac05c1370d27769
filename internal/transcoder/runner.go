// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// stderrTailBytes bounds how much diagnostic output is kept per run.
const stderrTailBytes = 4096

// Runner executes the transcoding tool once and returns the tail of its stderr.
type Runner interface {
	Run(ctx context.Context, bin string, args []string) (stderr string, err error)
}

// ExecRunner runs the tool as a subprocess. Cancelling ctx kills it.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args []string) (string, error) {
	// #nosec G204 -- bin comes from operator config; args are built by Args
	cmd := exec.CommandContext(ctx, bin, args...)
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = tail
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", bin, err)
	}
	err := cmd.Wait()
	return tail.String(), err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
