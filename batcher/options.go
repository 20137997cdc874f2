// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package batcher

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Options bounds how a Processor forms and dispatches batches.
type Options struct {
	// MaxHandlers is the maximum number of batches handled concurrently.
	MaxHandlers int
	// MinBatchSize is the minimum number of pending items required before a batch
	// is formed. Leftovers below it are only flushed on shutdown.
	MinBatchSize int
	// MaxBatchSize caps the number of items in a batch, 0 means unbounded.
	MaxBatchSize int
	// MaxBatchByteSize caps the total ByteSize of the items in a batch, 0 means
	// unbounded. Items that alone exceed it are rejected.
	MaxBatchByteSize int64
}

// DefaultOptions returns options with a single handler, no minimum and no upper
// bounds.
func DefaultOptions() Options {
	return Options{
		MaxHandlers:  1,
		MinBatchSize: 1,
	}
}

// Validate returns every constraint these options violate, each wrapping
// ErrInvalidConfiguration.
func (o Options) Validate() error {
	var errs error
	if o.MaxHandlers < 1 {
		errs = multierr.Append(errs, errors.Wrapf(ErrInvalidConfiguration, "max handlers must be at least 1, got %d", o.MaxHandlers))
	}

	if o.MinBatchSize < 1 {
		errs = multierr.Append(errs, errors.Wrapf(ErrInvalidConfiguration, "min batch size must be at least 1, got %d", o.MinBatchSize))
	}

	if o.MaxBatchSize < 0 {
		errs = multierr.Append(errs, errors.Wrapf(ErrInvalidConfiguration, "max batch size must not be negative, got %d", o.MaxBatchSize))
	}

	if o.MaxBatchByteSize < 0 {
		errs = multierr.Append(errs, errors.Wrapf(ErrInvalidConfiguration, "max batch byte size must not be negative, got %d", o.MaxBatchByteSize))
	}

	return errs
}

// Split returns the sizes of the batches n pending items would be dispatched as
// right now under the given options. Items that cannot be placed yet, either a
// remainder below MinBatchSize or anything beyond MaxHandlers batches, are left
// out, so the returned sizes may add up to less than n. Callers should split
// leftovers again later.
func Split(n int, opts Options) []int {
	sizes := []int{}
	if n <= 0 || n < opts.MinBatchSize {
		return sizes
	}

	if opts.MaxBatchSize == 0 {
		return append(sizes, n)
	}

	for n >= opts.MinBatchSize && n > 0 && len(sizes) < opts.MaxHandlers {
		size := opts.MaxBatchSize
		if n < size {
			size = n
		}

		sizes = append(sizes, size)
		n -= size
	}

	return sizes
}
