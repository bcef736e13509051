package reconcile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"positionScope/internal/model"
)

// RunnerConfig controls a reconcile pass over a typed events file.
type RunnerConfig struct {
	BatchSize  int
	StateStore StateStore
}

// RunStats summarizes a pass.
type RunStats struct {
	Total    int
	Resumed  int
	Failed   int
	Applied  int
	Skipped  int
	Outcomes map[Outcome]int
}

// Runner feeds typed event records to a Dispatcher in batches and saves the
// cursor after every batch.
type Runner struct {
	cfg        RunnerConfig
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewRunner(cfg RunnerConfig, dispatcher *Dispatcher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Runner{cfg: cfg, dispatcher: dispatcher, logger: logger}
}

// Run reconciles a typed events JSONL file.
func (r *Runner) Run(ctx context.Context, inputPath string) (RunStats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return RunStats{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return r.RunReader(ctx, file)
}

// RunReader reconciles typed event records read line by line from in.
// Records at or before the saved cursor are skipped.
func (r *Runner) RunReader(ctx context.Context, in io.Reader) (RunStats, error) {
	stats := RunStats{Outcomes: map[Outcome]int{}}
	if r.dispatcher == nil {
		return stats, fmt.Errorf("dispatcher is nil")
	}

	start, resumed, err := r.loadCursor(ctx)
	if err != nil {
		return stats, err
	}
	cursor := start

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.TypedEventRecord, 0, r.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := r.dispatcher.ApplyBatch(ctx, batch)
		if err != nil {
			return err
		}
		for outcome, n := range res.Outcomes {
			stats.Outcomes[outcome] += n
		}
		stats.Applied += res.Applied()
		stats.Skipped += res.Skipped()

		last := cursor
		for _, rec := range batch {
			if c := rec.Cursor(); last.Before(c) {
				last = c
			}
		}
		if r.cfg.StateStore != nil {
			if err := r.cfg.StateStore.Save(ctx, last); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
		}
		cursor = last
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			r.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if resumed && !start.Before(record.Cursor()) {
			stats.Resumed++
			continue
		}

		batch = append(batch, record)
		if len(batch) >= r.cfg.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	r.logger.Info("reconcile complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("resumed", stats.Resumed),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (r *Runner) loadCursor(ctx context.Context) (model.Cursor, bool, error) {
	if r.cfg.StateStore == nil {
		return model.Cursor{}, false, nil
	}
	cursor, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return model.Cursor{}, false, fmt.Errorf("load state: %w", err)
	}
	if ok {
		r.logger.Info("resuming reconcile",
			zap.Uint64("block_number", cursor.BlockNumber),
			zap.Uint64("log_index", cursor.LogIndex),
		)
	}
	return cursor, ok, nil
}
