// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package repeat

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Repeat executes the given action on a pre-determined interval and blocks until ctx
// is done, returning the context's error. All errors and panics must be handled inside
// the action if callers want the process to continue. Otherwise, the repeat will stop
// and return the error.
func Repeat(ctx context.Context, interval time.Duration, action func(ctx context.Context) error) error {
	safeAction := func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic repeating task: %v \n %s", r, debug.Stack())
			}
		}()

		return action(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := safeAction(ctx); err != nil {
				return err
			}
		}
	}
}
