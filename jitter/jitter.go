// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package jitter

import (
	"math/rand"
	"sync"
	"time"
)

var (
	rndMu sync.Mutex
	rnd   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// DoJitter adds a random jitter before executing doFn, then returns the jitter duration.
func DoJitter(doFn func(), maxJitter time.Duration) time.Duration {
	randomJitterDuration := waitForRandomJitter(maxJitter)

	doFn()

	return randomJitterDuration
}

func waitForRandomJitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}

	rndMu.Lock()
	randomJitterDuration := time.Duration(rnd.Int63n(int64(maxJitter) + 1))
	rndMu.Unlock()

	<-time.After(randomJitterDuration)

	return randomJitterDuration
}
