// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package saga runs an ordered list of steps and, when one fails, runs the
// compensations of the completed steps in reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Step is one forward action. Reached is the state entered once Forward
// succeeds. Compensate is optional and only runs for completed steps.
type Step[S ~string] struct {
	Name       string
	Reached    S
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Observer is notified after every forward step and compensation.
type Observer interface {
	StepDone(name string, d time.Duration, err error)
	Compensated(name string, err error)
}

// Result is the outcome of a run.
type Result[S ~string] struct {
	State      S
	FailedStep string
	Err        error
	// CompensationErrs are reported, never returned as Err.
	CompensationErrs []error
}

// Saga is a single-use runner.
type Saga[S ~string] struct {
	mu         sync.Mutex
	state      S
	rolledBack S
	steps      []Step[S]
	observer   Observer
	ran        bool
}

// New builds a saga starting in initial; rolledBack is the terminal failure state.
func New[S ~string](initial, rolledBack S, steps ...Step[S]) (*Saga[S], error) {
	seen := make(map[string]struct{}, len(steps))
	for _, st := range steps {
		if st.Forward == nil {
			return nil, fmt.Errorf("saga: step %q has no forward action", st.Name)
		}
		if _, dup := seen[st.Name]; dup {
			return nil, fmt.Errorf("saga: duplicate step %q", st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	return &Saga[S]{state: initial, rolledBack: rolledBack, steps: steps}, nil
}

// Observe installs an observer. It must be called before Run.
func (s *Saga[S]) Observe(o Observer) *Saga[S] {
	s.observer = o
	return s
}

// State returns the current state.
func (s *Saga[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Saga[S]) setState(st S) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run executes the steps in order with ctx. On the first failure it runs the
// compensations of completed steps, last first, with compCtx, and ends in the
// rolled-back state. A canceled ctx stops the run before the next step.
func (s *Saga[S]) Run(ctx, compCtx context.Context) Result[S] {
	s.mu.Lock()
	if s.ran {
		cur := s.state
		s.mu.Unlock()
		return Result[S]{State: cur, Err: errors.New("saga: already run")}
	}
	s.ran = true
	s.mu.Unlock()

	for i, st := range s.steps {
		err := ctx.Err()
		if err == nil {
			start := time.Now()
			err = st.Forward(ctx)
			if s.observer != nil {
				s.observer.StepDone(st.Name, time.Since(start), err)
			}
		}
		if err != nil {
			res := Result[S]{FailedStep: st.Name, Err: err}
			res.CompensationErrs = s.compensate(compCtx, s.steps[:i])
			s.setState(s.rolledBack)
			res.State = s.rolledBack
			return res
		}
		s.setState(st.Reached)
	}
	return Result[S]{State: s.State()}
}

func (s *Saga[S]) compensate(ctx context.Context, done []Step[S]) []error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.Compensate == nil {
			continue
		}
		err := st.Compensate(ctx)
		if s.observer != nil {
			s.observer.Compensated(st.Name, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", st.Name, err))
		}
	}
	return errs
}
