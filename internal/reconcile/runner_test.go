package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"positionScope/internal/model"
)

func typedEventsJSONL(t *testing.T, records []model.TypedEventRecord) string {
	t.Helper()
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}

func TestFileStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "reconcile.json")}

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, model.Cursor{BlockNumber: 42, LogIndex: 7}))
	cursor, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Cursor{BlockNumber: 42, LogIndex: 7}, cursor)
}

func TestRunnerResumesAfterSavedCursor(t *testing.T) {
	ctx := context.Background()
	var records []model.TypedEventRecord
	for i := 0; i < 7; i++ {
		records = append(records, record(t, model.EventCollect, uint64(10+i/3), uint64(i%3),
			model.CollectEventData{TokenID: strconv.Itoa(i % 2), Amount0: "0", Amount1: "0"}))
	}
	input := typedEventsJSONL(t, records) + "\nnot json\n"
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "reconcile.json")}

	applier := newRecordingApplier()
	d := NewDispatcher(applier, 2, zaptest.NewLogger(t))
	defer d.Close()
	runner := NewRunner(RunnerConfig{BatchSize: 3, StateStore: state}, d, zaptest.NewLogger(t))

	stats, err := runner.RunReader(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 7, stats.Applied)
	assert.Zero(t, stats.Resumed)

	cursor, ok, err := state.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Cursor{BlockNumber: 12, LogIndex: 0}, cursor)

	// A second pass over the same input applies nothing.
	stats, err = runner.RunReader(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Resumed)
	assert.Zero(t, stats.Applied)

	// New records after the cursor are applied.
	more := typedEventsJSONL(t, []model.TypedEventRecord{
		record(t, model.EventCollect, 12, 1, model.CollectEventData{TokenID: "1", Amount0: "0", Amount1: "0"}),
	})
	stats, err = runner.RunReader(ctx, strings.NewReader(input+more))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 7, stats.Resumed)
}

func TestRunnerWithoutStateAppliesEverything(t *testing.T) {
	applier := newRecordingApplier()
	d := NewDispatcher(applier, 1, nil)
	defer d.Close()
	runner := NewRunner(RunnerConfig{}, d, nil)

	input := typedEventsJSONL(t, []model.TypedEventRecord{
		record(t, model.EventCollect, 1, 0, model.CollectEventData{TokenID: "1", Amount0: "0", Amount1: "0"}),
		record(t, model.EventCollect, 1, 1, model.CollectEventData{TokenID: "1", Amount0: "0", Amount1: "0"}),
	})
	for i := 0; i < 2; i++ {
		stats, err := runner.RunReader(context.Background(), strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Applied)
	}
}

type memoryBackend struct {
	cursors map[string]model.Cursor
}

func (m *memoryBackend) LoadState(_ context.Context, name string) (model.Cursor, bool, error) {
	c, ok := m.cursors[name]
	return c, ok, nil
}

func (m *memoryBackend) SaveState(_ context.Context, name string, cursor model.Cursor) error {
	m.cursors[name] = cursor
	return nil
}

func TestNamedStateStore(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{cursors: map[string]model.Cursor{}}
	s := &NamedStateStore{Backend: backend, Name: "reconcile"}

	require.NoError(t, s.Save(ctx, model.Cursor{BlockNumber: 5, LogIndex: 1}))
	assert.Equal(t, model.Cursor{BlockNumber: 5, LogIndex: 1}, backend.cursors["reconcile"])

	cursor, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), cursor.BlockNumber)
}

// cancellingApplier cancels the run after a fixed number of applies.
type cancellingApplier struct {
	next   Applier
	after  int
	cancel context.CancelFunc
	calls  int
}

func (a *cancellingApplier) Apply(ctx context.Context, rec model.TypedEventRecord) (Outcome, error) {
	outcome, err := a.next.Apply(ctx, rec)
	a.calls++
	if a.calls == a.after {
		a.cancel()
	}
	return outcome, err
}

func TestRunnerInterruptedBatchResumesWithoutDoubleCounting(t *testing.T) {
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)
	var records []model.TypedEventRecord
	for i := 0; i < 4; i++ {
		records = append(records, record(t, model.EventIncreaseLiquidity, uint64(10+i), 0,
			model.LiquidityEventData{TokenID: "5", Liquidity: "10", Amount0: "1000000", Amount1: "0"}))
	}
	input := typedEventsJSONL(t, records)
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "reconcile.json")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted := &cancellingApplier{next: h.engine, after: 2, cancel: cancel}
	d := NewDispatcher(interrupted, 1, zaptest.NewLogger(t))
	defer d.Close()
	runner := NewRunner(RunnerConfig{BatchSize: 10, StateStore: state}, d, zaptest.NewLogger(t))

	_, err := runner.RunReader(ctx, strings.NewReader(input))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, interrupted.calls)

	_, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "cursor is not saved for an interrupted batch")

	pos, _, err := h.store.LoadPosition(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "20", pos.Liquidity.String())

	resume := NewDispatcher(h.engine, 1, zaptest.NewLogger(t))
	defer resume.Close()
	stats, err := NewRunner(RunnerConfig{BatchSize: 10, StateStore: state}, resume, zaptest.NewLogger(t)).
		RunReader(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Outcomes[OutcomeAlreadyApplied])
	assert.Equal(t, 2, stats.Applied)

	pos, _, err = h.store.LoadPosition(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "40", pos.Liquidity.String())
	requireDecimal(t, "4", pos.DepositedToken0)
}
