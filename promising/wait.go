// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package promising

import (
	"context"

	"go.uber.org/multierr"
)

// WaitAll waits for all given outcomes to resolve and returns the combined errors of
// the ones that failed. If ctx is done first, the context's error is returned along
// with whatever failures were already observed.
//
// Note: outcome cannot be nil
func WaitAll(ctx context.Context, outcomes []*Outcome) error {
	var errs error
	for _, o := range outcomes {
		select {
		case <-ctx.Done():
			return multierr.Append(errs, ctx.Err())
		case <-o.Done():
			errs = multierr.Append(errs, o.err)
		}
	}

	return errs
}

// CountFailed returns how many of the given outcomes have resolved with an error.
// Pending outcomes are not counted.
func CountFailed(outcomes []*Outcome) int {
	count := 0
	for _, o := range outcomes {
		if o.Err() != nil {
			count++
		}
	}

	return count
}
