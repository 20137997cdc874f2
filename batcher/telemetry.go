// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package batcher

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
)

const (
	scopeName = "github.com/jamestrandung/go-batch/batcher"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeFault   = "fault"

	reasonNilItem      = "nil_item"
	reasonShutDown     = "shut_down"
	reasonItemTooLarge = "item_too_large"
)

type processorTelemetry struct {
	ctx            context.Context
	processorAttr  attribute.KeyValue
	batches        metric.Int64Counter
	batchItems     metric.Int64Histogram
	batchBytes     metric.Int64Histogram
	rejectedItems  metric.Int64Counter
	activeHandlers metric.Int64UpDownCounter
}

func newProcessorTelemetry(provider metric.MeterProvider, name string) (*processorTelemetry, error) {
	meter := provider.Meter(scopeName)

	t := &processorTelemetry{
		ctx:           context.Background(),
		processorAttr: attribute.String("processor", name),
	}

	var errs, err error

	t.batches, err = meter.Int64Counter(
		"batcher.batches",
		metric.WithDescription("Number of batches handled, by outcome"),
		metric.WithUnit("{batch}"),
	)
	errs = multierr.Append(errs, err)

	t.batchItems, err = meter.Int64Histogram(
		"batcher.batch.items",
		metric.WithDescription("Number of items in a dispatched batch"),
		metric.WithUnit("{item}"),
	)
	errs = multierr.Append(errs, err)

	t.batchBytes, err = meter.Int64Histogram(
		"batcher.batch.bytes",
		metric.WithDescription("Total byte size of the items in a dispatched batch"),
		metric.WithUnit("By"),
	)
	errs = multierr.Append(errs, err)

	t.rejectedItems, err = meter.Int64Counter(
		"batcher.items.rejected",
		metric.WithDescription("Number of items rejected before being queued, by reason"),
		metric.WithUnit("{item}"),
	)
	errs = multierr.Append(errs, err)

	t.activeHandlers, err = meter.Int64UpDownCounter(
		"batcher.handlers.active",
		metric.WithDescription("Number of workers currently handling batches"),
		metric.WithUnit("{handler}"),
	)
	errs = multierr.Append(errs, err)

	return t, errs
}

func (t *processorTelemetry) recordDispatch(items int, bytes int64) {
	attrs := metric.WithAttributes(t.processorAttr)

	t.batchItems.Record(t.ctx, int64(items), attrs)
	t.batchBytes.Record(t.ctx, bytes, attrs)
}

func (t *processorTelemetry) recordBatch(outcome string) {
	t.batches.Add(t.ctx, 1, metric.WithAttributes(t.processorAttr, attribute.String("outcome", outcome)))
}

func (t *processorTelemetry) recordRejection(reason string) {
	t.rejectedItems.Add(t.ctx, 1, metric.WithAttributes(t.processorAttr, attribute.String("reason", reason)))
}

func (t *processorTelemetry) recordHandlerStarted() {
	t.activeHandlers.Add(t.ctx, 1, metric.WithAttributes(t.processorAttr))
}

func (t *processorTelemetry) recordHandlerStopped() {
	t.activeHandlers.Add(t.ctx, -1, metric.WithAttributes(t.processorAttr))
}
