// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package batcher

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jamestrandung/go-batch/concap"
	"github.com/jamestrandung/go-batch/helper"
	"github.com/jamestrandung/go-batch/promising"
)

// BatchHandler processes one batch of items, succeeding or failing for the batch
// as a whole. It must be safe to call from up to MaxHandlers goroutines at once.
//
//go:generate mockery --name BatchHandler --case underscore --inpackage
type BatchHandler[T any] interface {
	Handle(items []T) error
}

// HandlerFunc adapts an ordinary function to a BatchHandler.
type HandlerFunc[T any] func(items []T) error

// Handle calls f(items).
func (f HandlerFunc[T]) Handle(items []T) error {
	return f(items)
}

// SizableItem is implemented by items that have a byte cost. Items that do not
// implement it cost nothing towards MaxBatchByteSize.
type SizableItem interface {
	ByteSize() int64
}

// Processor accumulates submitted items and hands them in batches to a BatchHandler
// running on a bounded pool of workers.
//
//go:generate mockery --name Processor --case underscore --inpackage
type Processor[T any] interface {
	// Size returns the number of items waiting to be put into a batch.
	Size() int
	// Submit adds an item and blocks until the batch containing it has been handled
	// or ctx is done. Giving up on the wait does not withdraw the item.
	Submit(ctx context.Context, item T) error
	// SubmitAsync adds an item and returns an outcome that resolves once the batch
	// containing it has been handled. Invalid items and items submitted after shutdown
	// get an outcome that has already failed.
	SubmitAsync(item T) *promising.Outcome
	// ShutdownAndDrain rejects further submissions, flushes every pending item
	// regardless of MinBatchSize and blocks until all workers are idle.
	ShutdownAndDrain()
}

type entry[T any] struct {
	payload  T
	byteSize int64
	outcome  *promising.Outcome
}

type processor[T any] struct {
	sync.Mutex
	*processorConfigs
	opts           Options
	handler        BatchHandler[T]
	telemetry      *processorTelemetry
	pool           *concap.Pool
	pending        *deque.Deque[*entry[T]] // FIFO queue of items not yet in a batch
	drained        *sync.Cond              // Signalled when a worker retires or the backlog is failed
	activeHandlers int
	isShutdown     bool
}

// NewProcessor returns a Processor handing batches formed under opts to handler.
func NewProcessor[T any](opts Options, handler BatchHandler[T], options ...ProcessorOption) (Processor[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if helper.IsNil(handler) {
		return nil, errors.Wrap(ErrInvalidConfiguration, "batch handler must not be nil")
	}

	configs := newProcessorConfigs(options...)
	configs.logger = configs.logger.With(zap.String("processor", configs.name))

	telemetry, err := newProcessorTelemetry(configs.meterProvider, configs.name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create batch processor telemetry")
	}

	p := &processor[T]{
		processorConfigs: configs,
		opts:             opts,
		handler:          handler,
		telemetry:        telemetry,
		pool:             concap.NewPool(opts.MaxHandlers),
		pending:          deque.New[*entry[T]](),
	}

	p.drained = sync.NewCond(&p.Mutex)

	return p, nil
}

func (p *processor[T]) Size() int {
	p.Lock()
	defer p.Unlock()

	return p.pending.Len()
}

func (p *processor[T]) Submit(ctx context.Context, item T) error {
	outcome := p.SubmitAsync(item)

	select {
	case <-outcome.Done():
		return asDomainError(outcome.Err())
	case <-ctx.Done():
		if outcome.IsComplete() {
			return asDomainError(outcome.Err())
		}

		return &CancelledError{
			Err: ctx.Err(),
		}
	}
}

func (p *processor[T]) SubmitAsync(item T) *promising.Outcome {
	if helper.IsNil(item) {
		p.telemetry.recordRejection(reasonNilItem)
		return promising.Failed(ErrNilItem)
	}

	// ByteSize is caller code, keep it outside the lock
	size := byteSizeOf(item)

	p.Lock()
	defer p.Unlock()

	if p.isShutdown {
		p.telemetry.recordRejection(reasonShutDown)
		return promising.Failed(ErrProcessorShutDown)
	}

	if p.opts.MaxBatchByteSize > 0 && size > p.opts.MaxBatchByteSize {
		p.telemetry.recordRejection(reasonItemTooLarge)
		return promising.Failed(ErrItemTooLarge)
	}

	e := &entry[T]{
		payload:  item,
		byteSize: size,
		outcome:  promising.NewOutcome(),
	}

	p.pending.PushBack(e)
	p.tryStartNewHandler(false)

	return e.outcome
}

func (p *processor[T]) ShutdownAndDrain() {
	if p.pool.IsClosed() {
		return
	}

	p.Lock()

	p.isShutdown = true
	for {
		for p.tryStartNewHandler(true) {
		}

		if p.pending.Len() == 0 && p.activeHandlers == 0 {
			break
		}

		p.drained.Wait()
	}

	p.Unlock()

	p.pool.Close()

	p.logger.Info("batch processor drained", zap.Int("max_handlers", p.pool.Size()))
}

// tryStartNewHandler hands the next batch to a new worker if the pool has room for
// one. It must be called while holding the lock.
func (p *processor[T]) tryStartNewHandler(ignoreMinBatchSize bool) bool {
	if p.activeHandlers >= p.opts.MaxHandlers {
		return false
	}

	batch := p.nextBatch(ignoreMinBatchSize)
	if len(batch) == 0 {
		return false
	}

	p.activeHandlers++
	p.telemetry.recordHandlerStarted()

	// The pool is only closed after a drain has retired every worker, by which time
	// no batch can be formed any more
	_ = p.pool.Go(
		func() {
			p.runHandler(batch)
		},
	)

	return true
}

// nextBatch removes the next batch from the pending queue, or returns nil if no
// batch should be formed yet. It must be called while holding the lock.
func (p *processor[T]) nextBatch(ignoreMinBatchSize bool) []*entry[T] {
	queued := p.pending.Len()
	if queued == 0 {
		return nil
	}

	if !ignoreMinBatchSize && queued < p.opts.MinBatchSize {
		return nil
	}

	maxItems := p.opts.MaxBatchSize
	maxBytes := p.opts.MaxBatchByteSize

	// Take the whole queue in one go when nothing can push it over a bound
	if maxBytes == 0 && (maxItems == 0 || queued <= maxItems) {
		batch := make([]*entry[T], queued)
		for i := range batch {
			batch[i] = p.pending.At(i)
		}

		p.pending.Clear()

		return batch
	}

	var batch []*entry[T]
	var batchBytes int64
	for p.pending.Len() > 0 {
		if maxItems > 0 && len(batch) >= maxItems {
			break
		}

		next := p.pending.Front()
		if maxBytes > 0 && batchBytes+next.byteSize > maxBytes {
			break
		}

		batch = append(batch, p.pending.PopFront())
		batchBytes += next.byteSize
	}

	return batch
}

// runHandler handles the given batch and then keeps taking batches off the queue
// on the same worker until none is ready.
func (p *processor[T]) runHandler(batch []*entry[T]) {
	for {
		fault := p.handle(batch)

		p.Lock()

		if fault != nil {
			p.failBacklog(batch, fault)
		}

		batch = p.nextBatch(false)
		if len(batch) == 0 {
			p.activeHandlers--
			p.telemetry.recordHandlerStopped()
			p.drained.Broadcast()

			p.Unlock()
			return
		}

		p.Unlock()
	}
}

// handle invokes the handler with the given batch and resolves every item in it.
// It only returns an error when the handler panics, leaving the items unresolved.
func (p *processor[T]) handle(batch []*entry[T]) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = newFaultError(r)

			p.telemetry.recordBatch(outcomeFault)
			p.logger.Error(
				"batch handler panicked",
				zap.Int("batch_size", len(batch)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	payloads := make([]T, len(batch))
	var batchBytes int64
	for idx, e := range batch {
		payloads[idx] = e.payload
		batchBytes += e.byteSize
	}

	if err := p.dispatchGate.Wait(context.Background()); err != nil {
		return errors.Wrap(ErrUnexpectedFault, err.Error())
	}

	p.telemetry.recordDispatch(len(batch), batchBytes)
	p.logger.Debug(
		"dispatching batch",
		zap.Int("batch_size", len(batch)),
		zap.Int64("batch_bytes", batchBytes),
	)

	var result error
	if err := p.handler.Handle(payloads); err != nil {
		result = newExecutionError(err)

		p.telemetry.recordBatch(outcomeFailure)
		p.logger.Warn("batch handler failed", zap.Int("batch_size", len(batch)), zap.Error(err))
	} else {
		p.telemetry.recordBatch(outcomeSuccess)
	}

	for _, e := range batch {
		e.outcome.Complete(result)
	}

	return nil
}

// failBacklog fails the given batch, whose handling faulted, along with every
// pending item and clears the queue. The processor keeps accepting new items
// afterwards. It must be called while holding the lock.
func (p *processor[T]) failBacklog(batch []*entry[T], fault error) {
	for _, e := range batch {
		e.outcome.Complete(fault)
	}

	failed := p.pending.Len()
	for p.pending.Len() > 0 {
		p.pending.PopFront().outcome.Complete(fault)
	}

	p.logger.Error(
		"failed all pending items after unexpected fault",
		zap.Int("batch_size", len(batch)),
		zap.Int("pending_items", failed),
		zap.Error(fault),
	)

	p.drained.Broadcast()
}

func byteSizeOf(item interface{}) int64 {
	sizable, ok := item.(SizableItem)
	if !ok {
		return 0
	}

	if size := sizable.ByteSize(); size > 0 {
		return size
	}

	return 0
}

func asDomainError(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}

	return newExecutionError(err)
}
