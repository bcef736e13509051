package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"positionScope/internal/model"
	"positionScope/internal/retry"
	"positionScope/internal/storage"
)

// LogSource is the chain access the runner needs. *chain.Client satisfies it.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	// AddressBook adds pools registered during reconciliation to the filter.
	AddressBook *AddressBook
}

// Runner streams position-manager and tracked pool logs from the chain and
// writes them to storage.
type Runner struct {
	cfg        RunConfig
	chain      LogSource
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient LogSource, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	addresses := MergeAddresses(r.cfg.Addresses, r.cfg.AddressBook)
	if len(addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	pending := r.cfg.AddressBook.Pending()
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))

			pending, err = r.backfill(ctx, chainIDValue, pending, cp.LastProcessedBlock)
			if err != nil {
				return err
			}
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Int("addresses", len(addresses)))

		written, err := r.fetchRange(ctx, chainIDValue, blockRange, addresses)
		if err != nil {
			return err
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(blockRange.To); err != nil {
				return err
			}
		}

		// Remaining pending pools first appear at or after this run's start,
		// so the forward scan covers them.
		if len(pending) > 0 {
			if err := r.cfg.AddressBook.MarkBackfilled(pendingAddresses(pending)); err != nil {
				return err
			}
			pending = nil
		}

		r.logger.Info("batch complete", zap.Int("logs", written), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

// backfill fetches the logs of pools registered at or before the checkpoint,
// from their first block (or the configured start, if later) through the
// checkpoint, and marks them backfilled. It returns the pools it left for the
// forward scan.
func (r *Runner) backfill(ctx context.Context, chainID uint64, pending []PendingPool, checkpoint uint64) ([]PendingPool, error) {
	base := make(map[common.Address]struct{}, len(r.cfg.Addresses))
	for _, addr := range r.cfg.Addresses {
		base[addr] = struct{}{}
	}

	var (
		rest    []PendingPool
		covered []common.Address
		order   []uint64
	)
	starts := make(map[uint64][]common.Address)
	for _, pool := range pending {
		if pool.FirstBlock > checkpoint {
			rest = append(rest, pool)
			continue
		}
		if _, ok := base[pool.Address]; ok {
			covered = append(covered, pool.Address)
			continue
		}
		start := pool.FirstBlock
		if start < r.cfg.FromBlock {
			start = r.cfg.FromBlock
		}
		if _, ok := starts[start]; !ok {
			order = append(order, start)
		}
		starts[start] = append(starts[start], pool.Address)
	}
	if err := r.cfg.AddressBook.MarkBackfilled(covered); err != nil {
		return nil, err
	}

	for _, start := range order {
		pools := starts[start]
		ranges, err := SplitRange(start, checkpoint, r.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		for _, blockRange := range ranges {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.logger.Info("backfill pool logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Int("pools", len(pools)))
			if _, err := r.fetchRange(ctx, chainID, blockRange, pools); err != nil {
				return nil, err
			}
		}
		if err := r.cfg.AddressBook.MarkBackfilled(pools); err != nil {
			return nil, err
		}
	}
	return rest, nil
}

// fetchRange writes the logs of addresses in blockRange to storage and
// returns how many were written.
func (r *Runner) fetchRange(ctx context.Context, chainID uint64, blockRange BlockRange, addresses []common.Address) (int, error) {
	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, addresses)
	if err != nil {
		return 0, fmt.Errorf("filter logs: %w", err)
	}

	ingestedAt := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.Removed || r.isDuplicate(log) {
			continue
		}

		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return 0, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, logRecordFromChain(chainID, log, ts, ingestedAt))
	}

	if err := r.storage.PutLogBatch(records); err != nil {
		return 0, fmt.Errorf("store logs: %w", err)
	}
	return len(records), nil
}

func pendingAddresses(pending []PendingPool) []common.Address {
	out := make([]common.Address, len(pending))
	for i, pool := range pending {
		out[i] = pool.Address
	}
	return out
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
