package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"positionScope/internal/chain"
	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/indexer"
	"positionScope/internal/reconcile"
	"positionScope/internal/store"
	"positionScope/internal/store/memory"
	"positionScope/internal/store/postgres"
	"positionScope/internal/store/redis"
)

var (
	_ dex.ContractCaller    = (*chain.Client)(nil)
	_ indexer.LogSource     = (*chain.Client)(nil)
	_ reconcile.PoolTracker = (*indexer.AddressBook)(nil)
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reader := dex.NewChainReader(dex.ReaderConfig{
		CallTimeout:  cfg.CallTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, logger)

	registry, err := dex.NewCreate2Registry(cfg.PoolDeployer, cfg.PoolInitCodeHash)
	if err != nil {
		return err
	}

	repo, stateStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	book, err := indexer.LoadAddressBook(cfg.AddressBook)
	if err != nil {
		return err
	}

	engineCfg := reconcile.DefaultConfig()
	engineCfg.ExcludedPools = append(engineCfg.ExcludedPools, cfg.ExcludedPools...)

	engine, err := reconcile.NewEngine(engineCfg, repo, reader, registry, book, logger)
	if err != nil {
		return err
	}

	dispatcher := reconcile.NewDispatcher(engine, cfg.Workers, logger)
	defer dispatcher.Close()

	runner := reconcile.NewRunner(reconcile.RunnerConfig{
		BatchSize:  cfg.BatchSize,
		StateStore: stateStore,
	}, dispatcher, logger)

	logger.Info("reconcile start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("in", cfg.Input),
		zap.String("store", cfg.Store),
		zap.Int("workers", cfg.Workers),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("excluded_pools", len(engineCfg.ExcludedPools)),
		zap.String("address_book", cfg.AddressBook),
		zap.String("state_file", cfg.StateFile),
	)

	stats, err := runner.Run(ctx, cfg.Input)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int("total", stats.Total),
		zap.Int("resumed", stats.Resumed),
		zap.Int("failed", stats.Failed),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("tracked_pools", book.Len()),
	}
	for outcome, count := range stats.Outcomes {
		fields = append(fields, zap.Int("outcome_"+string(outcome), count))
	}
	if mem, ok := repo.(*memory.Store); ok {
		for kind, count := range mem.Counts() {
			fields = append(fields, zap.Int("entities_"+string(kind), count))
		}
	}
	logger.Info("reconcile complete", fields...)

	return nil
}

// openStore builds the entity repository for cfg.Store and picks the cursor
// store: the state file when set, otherwise the backend itself when it can
// keep named cursors.
func openStore(ctx context.Context, cfg config.ReconcileConfig, logger *zap.Logger) (store.Repository, reconcile.StateStore, func(), error) {
	var fileState reconcile.StateStore
	if cfg.StateFile != "" {
		fileState = &reconcile.FileStateStore{Path: cfg.StateFile}
	}

	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
		state := fileState
		if state == nil {
			state = &reconcile.NamedStateStore{Backend: pg, Name: cfg.StateName}
		}
		return pg, state, pg.Close, nil

	case config.StoreRedis:
		rs, err := redis.NewStore(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		state := fileState
		if state == nil {
			state = &reconcile.NamedStateStore{Backend: rs, Name: cfg.StateName}
		}
		closeFn := func() {
			if err := rs.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}
		return rs, state, closeFn, nil

	default:
		// A memory store starts empty, so a saved cursor would skip events it never saw.
		if fileState != nil {
			logger.Warn("state file ignored for memory store", zap.String("state_file", cfg.StateFile))
		}
		return memory.NewStore(), nil, func() {}, nil
	}
}
