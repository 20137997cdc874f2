// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package batcher

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jamestrandung/go-batch/promising"
)

type sizedItem struct {
	id   int
	size int64
}

func (i sizedItem) ByteSize() int64 {
	return i.size
}

// recorder is a handler that remembers every batch it was given.
type recorder[T any] struct {
	sync.Mutex
	batches [][]T
	handle  func(items []T) error
}

func (r *recorder[T]) Handle(items []T) error {
	r.Lock()
	r.batches = append(r.batches, append([]T(nil), items...))
	r.Unlock()

	if r.handle != nil {
		return r.handle(items)
	}

	return nil
}

func (r *recorder[T]) recorded() [][]T {
	r.Lock()
	defer r.Unlock()

	return append([][]T(nil), r.batches...)
}

func newTestProcessor[T any](t *testing.T, opts Options, handler BatchHandler[T], options ...ProcessorOption) Processor[T] {
	p, err := NewProcessor(opts, handler, options...)
	require.Nil(t, err)

	return p
}

func TestNewProcessor(t *testing.T) {
	var nilHandlerFunc HandlerFunc[int]

	scenarios := []struct {
		desc    string
		opts    Options
		handler BatchHandler[int]
	}{
		{
			desc:    "zero max handlers",
			opts:    Options{MaxHandlers: 0, MinBatchSize: 1},
			handler: &recorder[int]{},
		},
		{
			desc:    "zero min batch size",
			opts:    Options{MaxHandlers: 1, MinBatchSize: 0},
			handler: &recorder[int]{},
		},
		{
			desc:    "nil handler",
			opts:    DefaultOptions(),
			handler: nil,
		},
		{
			desc:    "nil handler func",
			opts:    DefaultOptions(),
			handler: nilHandlerFunc,
		},
	}

	for _, scenario := range scenarios {
		sc := scenario

		t.Run(sc.desc, func(t *testing.T) {
			p, err := NewProcessor(sc.opts, sc.handler)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	p, err := NewProcessor[int](DefaultOptions(), &recorder[int]{})
	assert.Nil(t, err)
	if assert.NotNil(t, p) {
		p.ShutdownAndDrain()
	}
}

func TestProcessor_FIFOBatchComposition(t *testing.T) {
	const itemCount = 200

	r := &recorder[int]{}
	p := newTestProcessor[int](t, Options{MaxHandlers: 1, MinBatchSize: 1}, r)

	outcomes := make([]*promising.Outcome, itemCount)
	for i := 0; i < itemCount; i++ {
		outcomes[i] = p.SubmitAsync(i)
	}

	p.ShutdownAndDrain()

	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))

	var handled []int
	for _, batch := range r.recorded() {
		handled = append(handled, batch...)
	}

	expected := make([]int, itemCount)
	for i := range expected {
		expected[i] = i
	}

	assert.Equal(t, expected, handled)
}

func TestProcessor_SubmitAsyncNilItem(t *testing.T) {
	handler := NewMockBatchHandler[*sizedItem](t)
	p := newTestProcessor[*sizedItem](t, DefaultOptions(), handler)
	defer p.ShutdownAndDrain()

	outcome := p.SubmitAsync(nil)

	assert.True(t, outcome.IsComplete())
	assert.ErrorIs(t, outcome.Err(), ErrInvalidArgument)
	assert.Equal(t, 0, p.Size())
	handler.AssertNotCalled(t, "Handle", mock.Anything)
}

func TestProcessor_ByteBoundRejection(t *testing.T) {
	r := &recorder[sizedItem]{}
	p := newTestProcessor[sizedItem](t, Options{MaxHandlers: 1, MinBatchSize: 1, MaxBatchByteSize: 10}, r)

	tooLarge := p.SubmitAsync(sizedItem{id: 1, size: 11})
	justRight := p.SubmitAsync(sizedItem{id: 2, size: 10})

	assert.True(t, tooLarge.IsComplete())
	assert.ErrorIs(t, tooLarge.Err(), ErrInvalidArgument)
	assert.Equal(t, ErrItemTooLarge, tooLarge.Err())

	p.ShutdownAndDrain()

	assert.Nil(t, justRight.Err())
	for _, batch := range r.recorded() {
		for _, item := range batch {
			assert.NotEqual(t, 1, item.id, "rejected item must never be handled")
		}
	}
}

func TestProcessor_BatchSizeBound(t *testing.T) {
	const itemCount = 100
	const maxBatchSize = 3

	r := &recorder[int]{}
	p := newTestProcessor[int](t, Options{MaxHandlers: 4, MinBatchSize: 1, MaxBatchSize: maxBatchSize}, r)

	outcomes := make([]*promising.Outcome, itemCount)
	for i := 0; i < itemCount; i++ {
		outcomes[i] = p.SubmitAsync(i)
	}

	p.ShutdownAndDrain()

	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))

	total := 0
	for _, batch := range r.recorded() {
		assert.LessOrEqual(t, len(batch), maxBatchSize)
		total += len(batch)
	}

	assert.Equal(t, itemCount, total)
}

func TestProcessor_ByteTotalBound(t *testing.T) {
	const itemCount = 200
	const maxBytes = 10

	r := &recorder[sizedItem]{}
	p := newTestProcessor[sizedItem](t, Options{MaxHandlers: 3, MinBatchSize: 2, MaxBatchByteSize: maxBytes}, r)

	rnd := rand.New(rand.NewSource(42))

	outcomes := make([]*promising.Outcome, itemCount)
	for i := 0; i < itemCount; i++ {
		outcomes[i] = p.SubmitAsync(sizedItem{id: i, size: int64(rnd.Intn(maxBytes) + 1)})
	}

	p.ShutdownAndDrain()

	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))

	total := 0
	for _, batch := range r.recorded() {
		var batchBytes int64
		for _, item := range batch {
			batchBytes += item.size
		}

		assert.LessOrEqual(t, batchBytes, int64(maxBytes))
		total += len(batch)
	}

	assert.Equal(t, itemCount, total)
}

func TestProcessor_DefersItemThatDoesNotFitCombined(t *testing.T) {
	r := &recorder[sizedItem]{}
	p := newTestProcessor[sizedItem](t, Options{MaxHandlers: 1, MinBatchSize: 3, MaxBatchByteSize: 10}, r)

	outcomes := []*promising.Outcome{
		p.SubmitAsync(sizedItem{id: 1, size: 6}),
		p.SubmitAsync(sizedItem{id: 2, size: 5}),
		p.SubmitAsync(sizedItem{id: 3, size: 4}),
	}

	p.ShutdownAndDrain()

	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))
	assert.Equal(
		t,
		[][]sizedItem{
			{{id: 1, size: 6}},
			{{id: 2, size: 5}, {id: 3, size: 4}},
		},
		r.recorded(),
	)
}

func TestProcessor_NoLossUnderConcurrency(t *testing.T) {
	const producerCount = 8
	const itemsPerProducer = 250

	handled := make(map[int]int)
	var handledMu sync.Mutex

	p := newTestProcessor[int](
		t,
		Options{MaxHandlers: 4, MinBatchSize: 1, MaxBatchSize: 16},
		HandlerFunc[int](
			func(items []int) error {
				handledMu.Lock()
				defer handledMu.Unlock()

				for _, item := range items {
					handled[item]++
				}

				if items[0]%7 == 0 {
					return assert.AnError
				}

				return nil
			},
		),
	)

	outcomes := make([]*promising.Outcome, producerCount*itemsPerProducer)

	var wg sync.WaitGroup
	for producer := 0; producer < producerCount; producer++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()

			for i := 0; i < itemsPerProducer; i++ {
				id := producer*itemsPerProducer + i
				outcomes[id] = p.SubmitAsync(id)
			}
		}(producer)
	}

	wg.Wait()
	p.ShutdownAndDrain()

	for _, o := range outcomes {
		assert.True(t, o.IsComplete())
		if err := o.Err(); err != nil {
			assert.ErrorIs(t, err, ErrExecution)
		}
	}

	assert.Len(t, handled, producerCount*itemsPerProducer)
	for id, count := range handled {
		assert.Equal(t, 1, count, fmt.Sprintf("item %d handled more than once", id))
	}
}

func TestProcessor_MinBatchSize(t *testing.T) {
	r := &recorder[int]{}
	p := newTestProcessor[int](t, Options{MaxHandlers: 1, MinBatchSize: 3}, r)

	first := p.SubmitAsync(1)
	second := p.SubmitAsync(2)

	assert.Equal(t, 2, p.Size(), "a batch must not form below the minimum size")
	assert.Empty(t, r.recorded())

	third := p.SubmitAsync(3)

	assert.Nil(t, promising.WaitAll(context.Background(), []*promising.Outcome{first, second, third}))
	assert.Equal(t, [][]int{{1, 2, 3}}, r.recorded())

	p.ShutdownAndDrain()
}

func TestProcessor_DrainCompleteness(t *testing.T) {
	r := &recorder[int]{}
	p := newTestProcessor[int](t, Options{MaxHandlers: 2, MinBatchSize: 10}, r)

	outcomes := []*promising.Outcome{
		p.SubmitAsync(1),
		p.SubmitAsync(2),
		p.SubmitAsync(3),
	}

	assert.Equal(t, 3, p.Size())
	assert.Equal(t, 0, promising.CountFailed(outcomes))

	p.ShutdownAndDrain()

	for _, o := range outcomes {
		assert.True(t, o.IsComplete())
		assert.Nil(t, o.Err())
	}

	assert.Equal(t, [][]int{{1, 2, 3}}, r.recorded(), "leftovers below the minimum must be flushed on shutdown")
	assert.Equal(t, 0, p.Size())

	late := p.SubmitAsync(4)
	assert.True(t, late.IsComplete())
	assert.ErrorIs(t, late.Err(), ErrFailedPrecondition)

	err := p.Submit(context.Background(), 5)
	assert.ErrorIs(t, err, ErrFailedPrecondition)

	assert.NotPanics(t, p.ShutdownAndDrain, "draining twice must be a no-op")
}

func TestProcessor_DrainWaitsForActiveWorkers(t *testing.T) {
	release := make(chan struct{})

	p := newTestProcessor[int](
		t,
		DefaultOptions(),
		HandlerFunc[int](
			func(items []int) error {
				<-release
				return nil
			},
		),
	)

	outcome := p.SubmitAsync(1)

	drained := make(chan struct{})
	go func() {
		p.ShutdownAndDrain()
		close(drained)
	}()

	select {
	case <-drained:
		assert.Fail(t, "drain must wait for the in-flight batch")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-drained

	assert.True(t, outcome.IsComplete())
	assert.Nil(t, outcome.Err())
}

func TestProcessor_HandlerFailureIsolation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	handlerErr := errors.New("remote call failed")

	p := newTestProcessor[string](
		t,
		Options{MaxHandlers: 2, MinBatchSize: 1, MaxBatchSize: 1},
		HandlerFunc[string](
			func(items []string) error {
				if items[0] == "bad" {
					return handlerErr
				}

				close(started)
				<-release

				return nil
			},
		),
	)

	good := p.SubmitAsync("good")
	<-started

	bad := p.SubmitAsync("bad")

	err := bad.Wait(context.Background())
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, handlerErr)
	assert.False(t, good.IsComplete(), "a failing batch must not affect a concurrent one")

	close(release)

	assert.Nil(t, good.Wait(context.Background()))

	p.ShutdownAndDrain()
}

func TestProcessor_Submit(t *testing.T) {
	handlerErr := errors.New("remote call failed")

	scenarios := []struct {
		desc string
		test func(t *testing.T)
	}{
		{
			desc: "handler succeeded",
			test: func(t *testing.T) {
				handler := NewMockBatchHandler[int](t)
				handler.On("Handle", []int{1}).Return(nil).Once()

				p := newTestProcessor[int](t, DefaultOptions(), handler)
				defer p.ShutdownAndDrain()

				assert.Nil(t, p.Submit(context.Background(), 1))
			},
		},
		{
			desc: "handler failed",
			test: func(t *testing.T) {
				handler := NewMockBatchHandler[int](t)
				handler.On("Handle", []int{1}).Return(handlerErr).Once()

				p := newTestProcessor[int](t, DefaultOptions(), handler)
				defer p.ShutdownAndDrain()

				err := p.Submit(context.Background(), 1)
				assert.ErrorIs(t, err, ErrExecution)
				assert.ErrorIs(t, err, handlerErr)

				var executionErr *ExecutionError
				if assert.True(t, errors.As(err, &executionErr)) {
					assert.Equal(t, handlerErr, executionErr.Err)
				}
			},
		},
		{
			desc: "wait was cancelled",
			test: func(t *testing.T) {
				release := make(chan struct{})
				r := &recorder[int]{
					handle: func([]int) error {
						<-release
						return nil
					},
				}

				p := newTestProcessor[int](t, DefaultOptions(), r)

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
				defer cancel()

				err := p.Submit(ctx, 1)
				assert.ErrorIs(t, err, ErrCancelled)
				assert.ErrorIs(t, err, context.DeadlineExceeded)

				// The batch carries on regardless of the abandoned wait
				close(release)
				p.ShutdownAndDrain()

				assert.Equal(t, [][]int{{1}}, r.recorded())
			},
		},
	}

	for _, scenario := range scenarios {
		sc := scenario

		t.Run(sc.desc, sc.test)
	}
}

func TestProcessor_WorkerKeepsTakingBatches(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	r := &recorder[int]{
		handle: func(items []int) error {
			if items[0] == 0 {
				started <- struct{}{}
				<-release
			}

			return nil
		},
	}

	p := newTestProcessor[int](t, Options{MaxHandlers: 1, MinBatchSize: 1}, r)

	outcomes := []*promising.Outcome{p.SubmitAsync(0)}
	<-started

	for i := 1; i <= 5; i++ {
		outcomes = append(outcomes, p.SubmitAsync(i))
	}

	assert.Equal(t, 5, p.Size(), "items must queue while the only worker is busy")

	close(release)

	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))
	assert.Equal(t, [][]int{{0}, {1, 2, 3, 4, 5}}, r.recorded())

	p.ShutdownAndDrain()
}

func TestProcessor_UnexpectedFault(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	shouldPanic := true

	r := &recorder[int]{
		handle: func(items []int) error {
			if shouldPanic {
				shouldPanic = false

				started <- struct{}{}
				<-release

				panic("handler blew up")
			}

			return nil
		},
	}

	core, logs := observer.New(zapcore.ErrorLevel)
	p := newTestProcessor[int](t, Options{MaxHandlers: 1, MinBatchSize: 1}, r, WithLogger(zap.New(core)), WithName("faulty"))

	inFlight := p.SubmitAsync(1)
	<-started

	pending := []*promising.Outcome{p.SubmitAsync(2), p.SubmitAsync(3)}

	close(release)

	assert.ErrorIs(t, inFlight.Wait(context.Background()), ErrUnexpectedFault)
	for _, o := range pending {
		assert.ErrorIs(t, o.Wait(context.Background()), ErrUnexpectedFault, "the whole backlog must fail")
	}

	assert.Equal(t, 0, p.Size())

	// The processor keeps accepting work after a fault
	assert.Nil(t, p.Submit(context.Background(), 4))

	p.ShutdownAndDrain()

	assert.Equal(t, [][]int{{1}, {4}}, r.recorded())
	assert.Equal(t, 1, logs.FilterMessage("batch handler panicked").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed all pending items after unexpected fault").Len())

	for _, entry := range logs.All() {
		assert.Equal(t, "faulty", entry.ContextMap()["processor"])
	}
}

func TestProcessor_DispatchRate(t *testing.T) {
	r := &recorder[int]{}
	p := newTestProcessor[int](
		t,
		Options{MaxHandlers: 2, MinBatchSize: 1, MaxBatchSize: 1},
		r,
		WithDispatchRate(1, 25*time.Millisecond),
	)

	t0 := time.Now()

	outcomes := make([]*promising.Outcome, 4)
	for i := range outcomes {
		outcomes[i] = p.SubmitAsync(i)
	}

	p.ShutdownAndDrain()

	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))
	assert.GreaterOrEqual(t, time.Since(t0), 70*time.Millisecond)
	assert.Len(t, r.recorded(), 4)
}

func TestProcessor_PoolClosesOnlyAfterDrain(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := &recorder[int]{}
	p := newTestProcessor[int](t, Options{MaxHandlers: 2, MinBatchSize: 5}, r, WithLogger(zap.New(core)))
	impl := p.(*processor[int])

	outcomes := []*promising.Outcome{p.SubmitAsync(1), p.SubmitAsync(2), p.SubmitAsync(3)}
	assert.False(t, impl.pool.IsClosed())

	p.ShutdownAndDrain()

	assert.True(t, impl.pool.IsClosed())
	assert.Nil(t, promising.WaitAll(context.Background(), outcomes))

	late := p.SubmitAsync(4)
	assert.Equal(t, ErrProcessorShutDown, late.Err())

	impl.Lock()
	assert.Equal(t, 0, impl.activeHandlers, "a late item must never reach the closed pool")
	assert.Equal(t, 0, impl.pending.Len())
	impl.Unlock()

	p.ShutdownAndDrain()

	drained := logs.FilterMessage("batch processor drained").All()
	if assert.Len(t, drained, 1, "a second drain must return at once") {
		assert.Equal(t, int64(2), drained[0].ContextMap()["max_handlers"])
	}

	assert.Equal(t, [][]int{{1, 2, 3}}, r.recorded())
}
