// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package main

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jamestrandung/go-batch/async"
	"github.com/jamestrandung/go-batch/batcher"
	"github.com/jamestrandung/go-batch/promising"
	"github.com/jamestrandung/go-batch/publisher"
	"github.com/jamestrandung/go-batch/repeat"
	"github.com/jamestrandung/go-batch/spread"
)

// Summary describes the result of one load run.
type Summary struct {
	Submitted int
	Succeeded int
	Failed    int
	Sent      int64
	Batches   int64
	Bytes     int64
	Elapsed   time.Duration
}

// AverageBatchSize returns the mean number of messages per sent batch.
func (s Summary) AverageBatchSize() float64 {
	if s.Batches == 0 {
		return 0
	}

	return float64(s.Sent) / float64(s.Batches)
}

// runLoad publishes cfg.Items messages from cfg.Producers producers, spread over
// cfg.Within, through a publisher backed by a simulated sender.
func runLoad(ctx context.Context, cfg Config, logger *zap.Logger) (Summary, error) {
	sender := newSimulatedSender(cfg.Latency, cfg.Jitter, cfg.FailureRate, time.Now().UnixNano())

	options := []batcher.ProcessorOption{
		batcher.WithLogger(logger),
	}

	if cfg.DispatchRate > 0 {
		options = append(options, batcher.WithDispatchRate(cfg.DispatchRate, time.Second))
	}

	pub, err := publisher.New(cfg.Topic, sender, cfg.Options(), options...)
	if err != nil {
		return Summary{}, err
	}

	logger.Info("starting load", zap.Int("items", cfg.Items), zap.Ints("first_batches", pub.Plan(cfg.Items)))

	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)

		_ = repeat.Repeat(
			progressCtx, cfg.ProgressInterval, func(context.Context) error {
				logger.Info(
					"progress",
					zap.Int("pending", pub.Pending()),
					zap.Int64("batches_sent", sender.Batches()),
					zap.Int64("messages_sent", sender.Messages()),
				)

				return nil
			},
		)
	}()

	start := time.Now()
	outcomes := make([]*promising.Outcome, cfg.Items)
	payload := make([]byte, cfg.MessageSize)

	works := make([]async.Work, cfg.Producers)
	for producer := range works {
		producer := producer
		share := (cfg.Items - producer + cfg.Producers - 1) / cfg.Producers

		works[producer] = func(ctx context.Context) error {
			return spread.Spread(
				ctx, share, cfg.Within, func(i int) {
					idx := producer + i*cfg.Producers
					outcomes[idx] = pub.PublishAsync(
						&publisher.Message{
							Data:       payload,
							Attributes: map[string]string{"producer": strconv.Itoa(producer)},
						},
					)
				},
			)
		}
	}

	produceErr := async.ForkJoin(ctx, works)

	pub.Close()
	stopProgress()
	<-progressDone

	summary := Summary{
		Sent:    sender.Messages(),
		Batches: sender.Batches(),
		Bytes:   sender.Bytes(),
		Elapsed: time.Since(start),
	}

	// Producers stopped early by ctx leave their remaining slots empty
	submitted := make([]*promising.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o != nil {
			submitted = append(submitted, o)
		}
	}

	summary.Submitted = len(submitted)
	summary.Failed = promising.CountFailed(submitted)
	summary.Succeeded = summary.Submitted - summary.Failed

	return summary, produceErr
}
