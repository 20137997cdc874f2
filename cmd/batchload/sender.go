// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package main

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/jamestrandung/go-batch/jitter"
	"github.com/jamestrandung/go-batch/publisher"
)

// simulatedSender stands in for a remote broker: every call takes a fixed latency
// plus some jitter and fails at the configured rate.
type simulatedSender struct {
	latency     time.Duration
	jitter      time.Duration
	failureRate float64

	rndMu sync.Mutex
	rnd   *rand.Rand

	batches  int64
	messages int64
	bytes    int64
}

func newSimulatedSender(latency, maxJitter time.Duration, failureRate float64, seed int64) *simulatedSender {
	return &simulatedSender{
		latency:     latency,
		jitter:      maxJitter,
		failureRate: failureRate,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (s *simulatedSender) Send(topic string, msgs []*publisher.Message) error {
	jitter.DoJitter(
		func() {
			if s.latency > 0 {
				time.Sleep(s.latency)
			}
		}, s.jitter,
	)

	var size int64
	for _, msg := range msgs {
		size += msg.ByteSize()
	}

	atomic.AddInt64(&s.batches, 1)
	atomic.AddInt64(&s.messages, int64(len(msgs)))
	atomic.AddInt64(&s.bytes, size)

	if s.shouldFail() {
		return errors.Errorf("simulated failure sending %d messages to %s", len(msgs), topic)
	}

	return nil
}

func (s *simulatedSender) shouldFail() bool {
	if s.failureRate <= 0 {
		return false
	}

	s.rndMu.Lock()
	defer s.rndMu.Unlock()

	return s.rnd.Float64() < s.failureRate
}

// Batches returns how many batches have been sent so far.
func (s *simulatedSender) Batches() int64 {
	return atomic.LoadInt64(&s.batches)
}

// Messages returns how many messages have been sent so far.
func (s *simulatedSender) Messages() int64 {
	return atomic.LoadInt64(&s.messages)
}

// Bytes returns how many message bytes have been sent so far.
func (s *simulatedSender) Bytes() int64 {
	return atomic.LoadInt64(&s.bytes)
}
