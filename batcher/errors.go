// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package batcher

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidConfiguration = errors.New("invalid batch processor configuration")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrFailedPrecondition   = errors.New("failed precondition")
	ErrExecution            = errors.New("batch handler failed")
	ErrCancelled            = errors.New("waiting for the submitted item was cancelled")
	ErrUnexpectedFault      = errors.New("unexpected fault while processing batch")

	ErrProcessorShutDown = errors.Wrap(ErrFailedPrecondition, "processor is shut down")
	ErrNilItem           = errors.Wrap(ErrInvalidArgument, "item must not be nil")
	ErrItemTooLarge      = errors.Wrap(ErrInvalidArgument, "item exceeds maximum batch byte size")
)

// ExecutionError is the error every item of a batch resolves with when the batch
// handler returns an error. It matches ErrExecution and unwraps to the handler's error.
type ExecutionError struct {
	Err error
}

func newExecutionError(err error) error {
	return &ExecutionError{
		Err: err,
	}
}

// Error implements error.
func (e *ExecutionError) Error() string {
	return ErrExecution.Error() + ": " + e.Err.Error()
}

// Unwrap returns the handler's error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// CancelledError is returned by Submit when the caller stops waiting before the
// item resolves. It matches ErrCancelled and unwraps to the context's error.
type CancelledError struct {
	Err error
}

// Error implements error.
func (e *CancelledError) Error() string {
	return ErrCancelled.Error() + ": " + e.Err.Error()
}

// Unwrap returns the context's error.
func (e *CancelledError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func newFaultError(cause interface{}) error {
	return errors.Wrapf(ErrUnexpectedFault, "%v", cause)
}

// isDomainError returns whether err already belongs to this package's taxonomy.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidConfiguration,
		ErrInvalidArgument,
		ErrFailedPrecondition,
		ErrExecution,
		ErrCancelled,
		ErrUnexpectedFault,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
