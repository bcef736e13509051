package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"positionScope/internal/model"
)

// Applier applies one event. *Engine satisfies it.
type Applier interface {
	Apply(ctx context.Context, rec model.TypedEventRecord) (Outcome, error)
}

// BatchStats counts outcomes of a batch.
type BatchStats struct {
	Events   int
	Outcomes map[Outcome]int
}

// Applied returns the number of events that changed state.
func (s BatchStats) Applied() int {
	return s.Outcomes[OutcomeApplied]
}

// Skipped returns the number of events dropped by policy or missing state.
func (s BatchStats) Skipped() int {
	return s.Events - s.Applied()
}

// Dispatcher applies batches with per-position ordering. Events of one
// position run sequentially in input order; distinct positions run in parallel.
type Dispatcher struct {
	applier Applier
	pool    pond.Pool
	logger  *zap.Logger
}

// NewDispatcher builds a Dispatcher with the given worker count.
func NewDispatcher(applier Applier, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		applier: applier,
		pool:    pond.NewPool(workers, pond.WithQueueSize(workers*4)),
		logger:  logger,
	}
}

// Close waits for running work and stops the worker pool.
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
}

// ApplyBatch applies records and returns outcome counts. The first error
// cancels the remaining work and is returned.
func (d *Dispatcher) ApplyBatch(ctx context.Context, records []model.TypedEventRecord) (BatchStats, error) {
	stats := BatchStats{Outcomes: map[Outcome]int{}}
	if len(records) == 0 {
		return stats, nil
	}

	lanes := groupByPosition(records)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
	)
	group := d.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, lane := range lanes {
		lane := lane
		group.Submit(func() {
			for _, rec := range lane {
				if groupCtx.Err() != nil {
					return
				}
				// Cancellation stops a lane between events only, so no event
				// is left half committed.
				outcome, err := d.applier.Apply(context.WithoutCancel(groupCtx), rec)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("apply %s tx %s log %d: %w", rec.EventName, rec.TxHash, rec.LogIndex, err)
						cancel()
					}
					mu.Unlock()
					return
				}
				stats.Events++
				stats.Outcomes[outcome]++
				mu.Unlock()
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		d.logger.Warn("reconcile batch tasks failed", zap.Error(err))
	}
	if firstErr != nil {
		return stats, firstErr
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	d.logger.Debug("batch applied",
		zap.Int("events", stats.Events),
		zap.Int("lanes", len(lanes)),
		zap.Int("applied", stats.Applied()),
	)
	return stats, nil
}

// groupByPosition splits records into per-position lanes, keeping input order
// within each lane and first-seen order across lanes.
func groupByPosition(records []model.TypedEventRecord) [][]model.TypedEventRecord {
	index := make(map[string]int)
	var lanes [][]model.TypedEventRecord
	for _, rec := range records {
		key, err := rec.PositionKey()
		if err != nil {
			key = ""
		}
		i, ok := index[key]
		if !ok {
			i = len(lanes)
			index[key] = i
			lanes = append(lanes, nil)
		}
		lanes[i] = append(lanes[i], rec)
	}
	return lanes
}
