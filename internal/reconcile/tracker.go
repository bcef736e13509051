package reconcile

import "context"

// PoolTracker registers a newly created pool so its own logs are picked up by
// the intake pipeline. Track is called once per pool, after the pool is stored.
type PoolTracker interface {
	Track(ctx context.Context, pool string, blockNumber uint64) error
}

type nopTracker struct{}

func (nopTracker) Track(context.Context, string, uint64) error { return nil }
