// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string

const (
	stInit   state = "init"
	stA      state = "a"
	stB      state = "b"
	stC      state = "c"
	stFailed state = "rolled_back"
)

type recorder struct {
	calls []string
}

func (r *recorder) step(name string, err error) Step[state] {
	return Step[state]{
		Name:    name,
		Reached: state(name),
		Forward: func(context.Context) error {
			r.calls = append(r.calls, "do:"+name)
			return err
		},
		Compensate: func(context.Context) error {
			r.calls = append(r.calls, "undo:"+name)
			return nil
		},
	}
}

type countingObserver struct {
	steps, comps int
}

func (c *countingObserver) StepDone(string, time.Duration, error) { c.steps++ }
func (c *countingObserver) Compensated(string, error)             { c.comps++ }

func TestRun_AllSucceed(t *testing.T) {
	rec := &recorder{}
	s, err := New(stInit, stFailed, rec.step("a", nil), rec.step("b", nil), rec.step("c", nil))
	require.NoError(t, err)
	obs := &countingObserver{}

	res := s.Observe(obs).Run(context.Background(), context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, stC, res.State)
	assert.Equal(t, stC, s.State())
	assert.Equal(t, []string{"do:a", "do:b", "do:c"}, rec.calls)
	assert.Equal(t, 3, obs.steps)
	assert.Zero(t, obs.comps)
}

func TestRun_CompensatesCompletedStepsInReverse(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	s, err := New(stInit, stFailed, rec.step("a", nil), rec.step("b", nil), rec.step("c", boom))
	require.NoError(t, err)

	res := s.Run(context.Background(), context.Background())
	require.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "c", res.FailedStep)
	assert.Equal(t, stFailed, res.State)
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, rec.calls)
	assert.Empty(t, res.CompensationErrs)
}

func TestRun_CompensationErrorsAreCollected(t *testing.T) {
	undoErr := errors.New("undo failed")
	var order []string
	steps := []Step[state]{
		{Name: "a", Reached: stA, Forward: func(context.Context) error { return nil },
			Compensate: func(context.Context) error { order = append(order, "a"); return undoErr }},
		{Name: "b", Reached: stB, Forward: func(context.Context) error { return nil }},
		{Name: "c", Reached: stC, Forward: func(context.Context) error { return errors.New("fail") }},
	}
	s, err := New(stInit, stFailed, steps...)
	require.NoError(t, err)

	res := s.Run(context.Background(), context.Background())
	require.Error(t, res.Err)
	require.Len(t, res.CompensationErrs, 1)
	assert.ErrorIs(t, res.CompensationErrs[0], undoErr)
	assert.Equal(t, []string{"a"}, order)
}

func TestRun_CanceledContextStopsBeforeNextStep(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	first := rec.step("a", nil)
	fwd := first.Forward
	first.Forward = func(c context.Context) error {
		cancel()
		return fwd(c)
	}
	s, err := New(stInit, stFailed, first, rec.step("b", nil))
	require.NoError(t, err)

	res := s.Run(ctx, context.Background())
	require.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, "b", res.FailedStep)
	assert.Equal(t, []string{"do:a", "undo:a"}, rec.calls)
}

func TestRun_CompensationUsesCompensationContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compCtxErr error
	steps := []Step[state]{
		{Name: "a", Reached: stA, Forward: func(context.Context) error { return nil },
			Compensate: func(c context.Context) error { compCtxErr = c.Err(); return nil }},
		{Name: "b", Reached: stB, Forward: func(context.Context) error { cancel(); return errors.New("x") }},
	}
	s, err := New(stInit, stFailed, steps...)
	require.NoError(t, err)

	s.Run(ctx, context.WithoutCancel(ctx))
	assert.NoError(t, compCtxErr)
}

func TestRun_OnlyOnce(t *testing.T) {
	rec := &recorder{}
	s, err := New(stInit, stFailed, rec.step("a", nil))
	require.NoError(t, err)
	s.Run(context.Background(), context.Background())

	res := s.Run(context.Background(), context.Background())
	require.Error(t, res.Err)
	assert.Len(t, rec.calls, 1)
}

func TestNew_Validation(t *testing.T) {
	_, err := New[state](stInit, stFailed, Step[state]{Name: "a"})
	require.Error(t, err)

	ok := Step[state]{Name: "a", Forward: func(context.Context) error { return nil }}
	_, err = New(stInit, stFailed, ok, ok)
	require.Error(t, err)
}
