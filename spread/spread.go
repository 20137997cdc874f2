// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package spread

import (
	"context"
	"time"
)

// Spread evenly calls fn n times within the specified duration, passing the index of
// each call. It stops early and returns the context's error if ctx is done.
func Spread(ctx context.Context, n int, within time.Duration, fn func(i int)) error {
	if n <= 0 {
		return nil
	}

	sleep := within / time.Duration(n)

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fn(i)
			if sleep > 0 {
				time.Sleep(sleep)
			}
		}
	}

	return nil
}
