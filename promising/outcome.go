// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package promising

import (
	"context"
	"sync"
)

// Outcome is a single-assignment promise for the result of one submitted item.
// It is resolved exactly once, either successfully or with an error. Waiting on
// an Outcome can be abandoned through a context without affecting its resolution.
type Outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewOutcome returns a pending outcome.
func NewOutcome() *Outcome {
	return &Outcome{
		done: make(chan struct{}),
	}
}

// Succeeded returns an outcome that has already completed successfully.
func Succeeded() *Outcome {
	o := NewOutcome()
	o.Complete(nil)

	return o
}

// Failed returns an outcome that has already completed with the given error.
func Failed(err error) *Outcome {
	o := NewOutcome()
	o.Complete(err)

	return o
}

// Complete resolves this outcome with the given error, nil meaning success. Only
// the first call has any effect; it returns whether this call resolved the outcome.
func (o *Outcome) Complete(err error) bool {
	completed := false
	o.once.Do(
		func() {
			o.err = err
			close(o.done)
			completed = true
		},
	)

	return completed
}

// Done returns a channel that is closed once this outcome is resolved.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// IsComplete returns whether this outcome has been resolved.
func (o *Outcome) IsComplete() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Err returns the error this outcome was resolved with. It returns nil while the
// outcome is still pending, so callers should check IsComplete or Done first.
func (o *Outcome) Err() error {
	if !o.IsComplete() {
		return nil
	}

	return o.err
}

// Wait blocks until this outcome is resolved and returns its error, or returns the
// context's error if ctx is done first.
func (o *Outcome) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return o.err
	}
}
