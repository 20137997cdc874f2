// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate lets callers through at the specified rate. A nil Gate never blocks.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate returns a Gate letting rateLimit callers through every given duration.
// It returns nil, i.e. no throttling, if either argument is not positive.
func NewGate(rateLimit int, every time.Duration) *Gate {
	if rateLimit <= 0 || every <= 0 {
		return nil
	}

	return &Gate{
		limiter: rate.NewLimiter(rate.Every(every/time.Duration(rateLimit)), 1),
	}
}

// Wait blocks until the caller may pass or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}

	return g.limiter.Wait(ctx)
}
