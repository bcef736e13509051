package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"positionScope/internal/chain"
	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/indexer"
	"positionScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Uniswap V3 liquidity position indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch raw position manager and pool logs",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "RPC URL")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().StringSlice("address", []string{dex.DefaultPositionManager}, "contract addresses (comma-separated)")
	runCmd.Flags().StringSlice("topic0", nil, "topic0 signatures (comma-separated)")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("address-book", "", "pool address book written by reconcile; its pools are added to the filter")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed position events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply typed position events to positions, tokens and pools",
		RunE:  runReconcile,
	}

	reconcileCmd.Flags().String("rpc", "", "archive RPC URL for block-pinned reads")
	reconcileCmd.Flags().String("in", "", "input typed events JSONL")
	reconcileCmd.Flags().String("store", config.StoreMemory, "entity store (memory, postgres, redis)")
	reconcileCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	reconcileCmd.Flags().String("redis-addr", "", "Redis address")
	reconcileCmd.Flags().String("redis-password", "", "Redis password")
	reconcileCmd.Flags().Int("redis-db", 0, "Redis database")
	reconcileCmd.Flags().String("redis-prefix", "positionscope", "Redis key prefix")
	reconcileCmd.Flags().Int("workers", 8, "parallel position lanes")
	reconcileCmd.Flags().Int("batch-size", 500, "events per batch")
	reconcileCmd.Flags().StringSlice("excluded-pools", nil, "extra pool addresses to skip (comma-separated)")
	reconcileCmd.Flags().String("pool-deployer", dex.DefaultPoolDeployer, "pool factory address")
	reconcileCmd.Flags().String("pool-init-code-hash", dex.DefaultPoolInitCodeHash, "pool init code hash")
	reconcileCmd.Flags().Duration("call-timeout", 10*time.Second, "timeout per contract call")
	reconcileCmd.Flags().Int("max-retries", 3, "maximum retry attempts per contract call")
	reconcileCmd.Flags().Duration("retry-backoff", 250*time.Millisecond, "initial retry backoff")
	reconcileCmd.Flags().String("address-book", "", "file to record pools created during reconciliation")
	reconcileCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	reconcileCmd.Flags().String("state-name", "reconcile", "progress cursor name in the postgres or redis store")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	var book *indexer.AddressBook
	if cfg.AddressBook != "" {
		book, err = indexer.LoadAddressBook(cfg.AddressBook)
		if err != nil {
			return err
		}
	}
	if len(indexer.MergeAddresses(addresses, book)) == 0 {
		return fmt.Errorf("address list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	storageSink := storage.NewJSONLStorage(cfg.Out)

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		AddressBook:       book,
	}, chainClient, storageSink, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("book_pools", book.Len()),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
