// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package async

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Work is a unit of work that can be forked onto its own goroutine.
type Work func(ctx context.Context) error

// ForkJoinFailFast executes given works in parallel and waits for the 1st one to fail,
// cancelling the context passed to the others, or for ALL to complete successfully.
//
// Note: work cannot be nil
func ForkJoinFailFast(ctx context.Context, works []Work) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for _, w := range works {
		w := w
		g.Go(
			func() error {
				return w(groupCtx)
			},
		)
	}

	return g.Wait()
}

// ForkJoin executes given works in parallel and waits for ALL to complete before
// returning the combined errors of the ones that failed.
//
// Note: work cannot be nil
func ForkJoin(ctx context.Context, works []Work) error {
	errs := make([]error, len(works))

	var wg sync.WaitGroup
	for i, w := range works {
		wg.Add(1)
		go func(i int, w Work) {
			defer wg.Done()

			errs[i] = w(ctx)
		}(i, w)
	}

	wg.Wait()

	return multierr.Combine(errs...)
}
