// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

// Command batchload simulates producers publishing through a batch processor so
// batching options can be tuned before they reach a real broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jamestrandung/go-batch/batcher"
)

var exampleUsage = strings.TrimSpace(`
  batchload run --items 50000 --producers 8 --max-handlers 4 --max-batch-size 200
  batchload run --config $HOME/.batchload/config.toml --failure-rate 0.05
  batchload plan 1000 --max-batch-size 64 --max-handlers 8
`)

func main() {
	cfg := DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "batchload",
		Short:         "Simulate batched publishing to tune batch processor options",
		Example:       exampleUsage,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Publish simulated messages and report how they were batched",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfgPath, &cfg); err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			summary, err := runLoad(ctx, cfg, logger)
			printSummary(cmd, summary)

			if err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrap(err, "run load")
			}

			return nil
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan [items]",
		Short: "Print the batch sizes the given number of pending items would be dispatched as",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfgPath, &cfg); err != nil {
				return err
			}

			items := cfg.Items
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Wrapf(err, "parse items %q", args[0])
				}

				items = n
			}

			sizes := batcher.Split(items, cfg.Options())

			planned := 0
			for _, size := range sizes {
				planned += size
			}

			fmt.Fprintf(cmd.OutOrStdout(), "batches: %v\n", sizes)
			fmt.Fprintf(cmd.OutOrStdout(), "planned: %d of %d items (%d left for later)\n", planned, items, items-planned)

			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.batchload/config.toml)")
	flags.StringVar(&cfg.Topic, "topic", cfg.Topic, "topic name attached to logs and metrics")
	flags.IntVar(&cfg.Items, "items", cfg.Items, "number of messages to publish")
	flags.IntVar(&cfg.Producers, "producers", cfg.Producers, "number of concurrent producers")
	flags.DurationVar(&cfg.Within, "within", cfg.Within, "window each producer spreads its messages over")
	flags.IntVar(&cfg.MaxHandlers, "max-handlers", cfg.MaxHandlers, "maximum number of batches sent concurrently")
	flags.IntVar(&cfg.MinBatchSize, "min-batch-size", cfg.MinBatchSize, "minimum number of pending messages before a batch forms")
	flags.IntVar(&cfg.MaxBatchSize, "max-batch-size", cfg.MaxBatchSize, "maximum messages per batch (0 = unbounded)")
	flags.IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum message bytes per batch (0 = unbounded)")
	flags.IntVar(&cfg.DispatchRate, "dispatch-rate", cfg.DispatchRate, "maximum batches sent per second (0 = unlimited)")
	flags.IntVar(&cfg.MessageSize, "message-size", cfg.MessageSize, "payload bytes per message")
	flags.DurationVar(&cfg.Latency, "latency", cfg.Latency, "simulated send latency per batch")
	flags.DurationVar(&cfg.Jitter, "jitter", cfg.Jitter, "maximum random latency added per batch")
	flags.Float64Var(&cfg.FailureRate, "failure-rate", cfg.FailureRate, "fraction of batches the simulated broker rejects")
	flags.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "how often progress is logged")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(runCmd, planCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "batchload:", err)
		os.Exit(1)
	}
}

// loadConfig layers the config file and BATCHLOAD_* variables under the flags that
// were set explicitly, then validates the result.
func loadConfig(cmd *cobra.Command, cfgPath string, cfg *Config) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = DefaultConfigPath()
	}

	if cfgFile != "" && FileExists(cfgFile) {
		fc, err := LoadFileConfig(cfgFile)
		if err != nil {
			return errors.Wrap(err, "load config")
		}

		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}

	return cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.Encoding = "console"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}

func printSummary(cmd *cobra.Command, s Summary) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "submitted: %d\n", s.Submitted)
	fmt.Fprintf(out, "succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(out, "failed:    %d\n", s.Failed)
	fmt.Fprintf(out, "batches:   %d (avg %.1f messages, %d bytes total)\n", s.Batches, s.AverageBatchSize(), s.Bytes)
	fmt.Fprintf(out, "elapsed:   %s\n", s.Elapsed)
}
