// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package batcher

import (
	"time"

	"github.com/twinj/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/jamestrandung/go-batch/throttle"
)

type processorConfigs struct {
	name          string
	logger        *zap.Logger
	meterProvider metric.MeterProvider
	dispatchGate  *throttle.Gate
}

func newProcessorConfigs(options ...ProcessorOption) *processorConfigs {
	configs := &processorConfigs{
		name:          uuid.NewV4().String(),
		logger:        zap.NewNop(),
		meterProvider: noop.NewMeterProvider(),
	}

	for _, o := range options {
		o(configs)
	}

	return configs
}

// ProcessorOption customizes the ambient behavior of a Processor.
type ProcessorOption func(*processorConfigs)

// WithName sets the name attached to the logs and metrics of a Processor. A random
// UUID is used by default.
func WithName(name string) ProcessorOption {
	return func(c *processorConfigs) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the logger of a Processor. Nothing is logged by default.
func WithLogger(logger *zap.Logger) ProcessorOption {
	return func(c *processorConfigs) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeterProvider sets the meter provider a Processor records its metrics with.
// A no-op provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) ProcessorOption {
	return func(c *processorConfigs) {
		if provider != nil {
			c.meterProvider = provider
		}
	}
}

// WithDispatchRate limits how often batches are handed to the handler across all
// workers, e.g. 10 batches every second. Non-positive values disable the limit.
func WithDispatchRate(batches int, every time.Duration) ProcessorOption {
	return func(c *processorConfigs) {
		c.dispatchGate = throttle.NewGate(batches, every)
	}
}
