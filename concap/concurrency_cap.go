// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package concap

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolClosed = errors.New("worker pool has already been closed")
)

// Pool runs functions on at most a fixed number of goroutines. Its size is set at
// construction and never grows.
type Pool struct {
	sync.RWMutex
	size     int
	isClosed bool
	group    errgroup.Group
}

// NewPool returns a Pool running up to size functions concurrently. A size
// smaller than 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		size: size,
	}

	p.group.SetLimit(size)

	return p
}

// Size returns the maximum number of functions this pool runs concurrently.
func (p *Pool) Size() int {
	return p.size
}

// Go schedules fn on this pool, blocking while all workers are busy. It returns
// ErrPoolClosed if the pool has been closed.
func (p *Pool) Go(fn func()) error {
	p.RLock()
	defer p.RUnlock()

	if p.isClosed {
		return ErrPoolClosed
	}

	p.group.Go(
		func() error {
			fn()
			return nil
		},
	)

	return nil
}

// Close stops this pool from accepting new functions and waits for the running
// ones to return. Calling Close more than once is a no-op.
func (p *Pool) Close() {
	p.Lock()
	if p.isClosed {
		p.Unlock()
		return
	}

	p.isClosed = true
	p.Unlock()

	_ = p.group.Wait()
}

// IsClosed returns whether Close has been called.
func (p *Pool) IsClosed() bool {
	p.RLock()
	defer p.RUnlock()

	return p.isClosed
}
