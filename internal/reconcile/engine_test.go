package reconcile

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positionScope/internal/chainstate"
	"positionScope/internal/model"
	"positionScope/internal/store"
)

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(DefaultConfig(), nil, newFakeReader(), fakeRegistry{}, nil, nil)
	require.Error(t, err)
}

func TestIncreaseLiquidityMaterializesGraph(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 100, 200), testPool)

	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 5, 1000, "1000000", "2000000000000000000"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	pos, ok, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1000", pos.Liquidity.String())
	requireDecimal(t, "1", pos.DepositedToken0)
	requireDecimal(t, "2", pos.DepositedToken1)
	assert.Nil(t, pos.Owner)
	assert.Equal(t, testPool, pos.Pool)
	assert.Equal(t, testUSDC, pos.Token0)
	assert.Equal(t, testWETH, pos.Token1)
	assert.Equal(t, testPool+"#-887220", pos.TickLower)
	assert.Equal(t, testPool+"#887220", pos.TickUpper)
	assert.Equal(t, "0xmint", pos.Transaction)

	snap, ok, err := h.store.LoadPositionSnapshot(ctx, "5#100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", snap.Position)
	assert.Equal(t, uint64(100), snap.BlockNumber)
	assert.Equal(t, uint64(1_700_000_100), snap.Timestamp)
	assert.Equal(t, "1000", snap.Liquidity.String())
	requireDecimal(t, "1", snap.DepositedToken0)
	requireDecimal(t, "2", snap.DepositedToken1)
	assert.Equal(t, "0xmint", snap.Transaction)
	assert.Equal(t, "", snap.Owner)

	for _, token := range []string{testUSDC, testWETH} {
		_, ok, err := h.store.LoadToken(ctx, token)
		require.NoError(t, err)
		assert.True(t, ok, token)
	}

	pool, ok, err := h.store.LoadPool(ctx, testPool)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(500), pool.FeeTier)
	assert.Equal(t, testSqrt, pool.SqrtPrice.String())
	assert.Equal(t, "123456", pool.Liquidity.String())
	assert.Equal(t, uint64(7), pool.ObservationIndex)
	assert.True(t, pool.Token0Price.IsZero())
	assert.True(t, pool.Token1Price.IsZero())
	assert.True(t, pool.TotalValueLockedUSD.IsZero())
	assert.Equal(t, []string{testPool}, h.tracker.pools())

	tx, ok, err := h.store.LoadTransaction(ctx, "0xmint")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), tx.BlockNumber)
}

func TestTransferChangesOnlyOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 100, 200), testPool)

	_, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 5, 1000, "1000000", "2000000000000000000"))
	require.NoError(t, err)
	readsBefore := h.reader.calls(h.reader.positionCalls, "5")

	outcome, err := h.engine.HandleTransfer(ctx, eventAt(101, "0xsend"), OwnershipTransfer{TokenID: big.NewInt(5), To: "0xABC"})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "0xABC", pos.OwnerOrEmpty())
	assert.Equal(t, "1000", pos.Liquidity.String())
	requireDecimal(t, "1", pos.DepositedToken0)
	requireDecimal(t, "2", pos.DepositedToken1)

	snap, ok, err := h.store.LoadPositionSnapshot(ctx, "5#101")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xABC", snap.Owner)
	assert.Equal(t, "1000", snap.Liquidity.String())
	requireDecimal(t, "1", snap.DepositedToken0)
	requireDecimal(t, "2", snap.DepositedToken1)
	assert.Equal(t, "0xsend", snap.Transaction)

	// Transfers do not refresh fee growth.
	assert.Equal(t, readsBefore, h.reader.calls(h.reader.positionCalls, "5"))
	assert.Len(t, h.store.Snapshots("5"), 2)
}

func TestExcludedPoolProducesNoWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("9", 0, 0), DefaultExcludedPool)

	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 9, 1000, "1000000", "2000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExcludedPool, outcome)

	outcome, err = h.engine.HandleTransfer(ctx, eventAt(101, "0xsend"), OwnershipTransfer{TokenID: big.NewInt(9), To: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExcludedPool, outcome)

	for kind, n := range h.store.Counts() {
		assert.Zero(t, n, kind)
	}
	assert.Empty(t, h.tracker.pools())
}

func TestExcludedPoolMatchesAnyCase(t *testing.T) {
	ctx := context.Background()
	reader := newFakeReader().withUSDCWETH(t).withPosition("9", 0, 0)
	h := newHarness(t, reader, "0x8FE8D9BB8EEBA3ED688069C3D6B556C9CA258248")

	outcome, err := h.engine.HandleCollect(ctx, eventAt(100, "0xc"), collection(t, 9, "1", "1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExcludedPool, outcome)
}

func TestCreationRaceIsSilentSkip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t), testPool)

	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 77, 1000, "1", "1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMissingPosition, outcome)

	outcome, err = h.engine.HandleTransfer(ctx, eventAt(100, "0xmint"), OwnershipTransfer{TokenID: big.NewInt(77), To: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMissingPosition, outcome)

	for kind, n := range h.store.Counts() {
		assert.Zero(t, n, kind)
	}
}

func TestLazyCreationReadsStateOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 1, 1), testPool)

	const events = 5
	for i := 0; i < events; i++ {
		outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(uint64(100+i), "0xtx"),
			liquidityChange(t, 5, 10, "1", "1"))
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, outcome)
	}

	// One materialization read plus one fee-growth refresh per event.
	assert.Equal(t, 1+events, h.reader.calls(h.reader.positionCalls, "5"))
	assert.Equal(t, 1, h.reader.calls(h.reader.tokenCalls, testUSDC))
	assert.Equal(t, 1, h.reader.calls(h.reader.tokenCalls, testWETH))
	assert.Equal(t, 1, h.reader.calls(h.reader.poolCalls, testPool))
	assert.Len(t, h.tracker.pools(), 1)

	counts := h.store.Counts()
	assert.Equal(t, 1, counts[store.KindPosition])
	assert.Equal(t, events, counts[store.KindPositionSnapshot])

	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "50", pos.Liquidity.String())
}

func TestCollectedFeesAreDerived(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	steps := []func() (Outcome, error){
		func() (Outcome, error) {
			return h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0x1"),
				liquidityChange(t, 5, 1000, "3000000", "3000000000000000000"))
		},
		func() (Outcome, error) {
			return h.engine.HandleDecreaseLiquidity(ctx, eventAt(101, "0x2"),
				liquidityChange(t, 5, 400, "500000", "1000000000000000000"))
		},
		func() (Outcome, error) {
			return h.engine.HandleCollect(ctx, eventAt(102, "0x3"),
				collection(t, 5, "700000", "1200000000000000000"))
		},
		func() (Outcome, error) {
			return h.engine.HandleCollect(ctx, eventAt(103, "0x4"), collection(t, 5, "0", "0"))
		},
	}
	for _, step := range steps {
		outcome, err := step()
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, outcome)

		pos, _, err := h.store.LoadPosition(ctx, "5")
		require.NoError(t, err)
		assert.True(t, pos.CollectedFeesToken0().Equal(pos.CollectedToken0.Sub(pos.WithdrawnToken0)))
		assert.True(t, pos.CollectedFeesToken1().Equal(pos.CollectedToken1.Sub(pos.WithdrawnToken1)))
	}

	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "600", pos.Liquidity.String())
	requireDecimal(t, "0.2", pos.CollectedFeesToken0())
	requireDecimal(t, "0.2", pos.CollectedFeesToken1())

	snap, _, err := h.store.LoadPositionSnapshot(ctx, "5#103")
	require.NoError(t, err)
	requireDecimal(t, "0.2", snap.CollectedFeesToken0)
	requireDecimal(t, "0.2", snap.CollectedFeesToken1)
}

func TestAccumulatorsNeverDecrease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	var prev model.Position
	prev.Liquidity = new(big.Int)
	for i := 0; i < 12; i++ {
		ec := eventAt(uint64(200+i), "0xtx")
		var err error
		switch i % 3 {
		case 0:
			_, err = h.engine.HandleIncreaseLiquidity(ctx, ec, liquidityChange(t, 5, 100, "1000000", "1000000000000000000"))
		case 1:
			_, err = h.engine.HandleDecreaseLiquidity(ctx, ec, liquidityChange(t, 5, 50, "400000", "300000000000000000"))
		default:
			_, err = h.engine.HandleCollect(ctx, ec, collection(t, 5, "450000", "350000000000000000"))
		}
		require.NoError(t, err)

		pos, _, err := h.store.LoadPosition(ctx, "5")
		require.NoError(t, err)
		assert.True(t, pos.DepositedToken0.GreaterThanOrEqual(prev.DepositedToken0))
		assert.True(t, pos.DepositedToken1.GreaterThanOrEqual(prev.DepositedToken1))
		assert.True(t, pos.WithdrawnToken0.GreaterThanOrEqual(prev.WithdrawnToken0))
		assert.True(t, pos.WithdrawnToken1.GreaterThanOrEqual(prev.WithdrawnToken1))
		assert.True(t, pos.CollectedToken0.GreaterThanOrEqual(prev.CollectedToken0))
		assert.True(t, pos.CollectedToken1.GreaterThanOrEqual(prev.CollectedToken1))
		prev = *pos
	}
}

func TestUnknownDecimalsAbortsBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	reader := newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0)
	reader.tokens[testWETH] = chainstate.TokenMetadata{Symbol: "WETH", Name: "Wrapped Ether", TotalSupply: big.NewInt(1)}
	h := newHarness(t, reader, testPool)

	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 5, 1000, "1000000", "2000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownToken, outcome)

	for kind, n := range h.store.Counts() {
		assert.Zero(t, n, kind)
	}
	assert.Zero(t, reader.calls(reader.poolCalls, testPool))
}

func TestPoolUnavailableSkipsEvent(t *testing.T) {
	ctx := context.Background()
	reader := newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0)
	delete(reader.pools, testPool)
	h := newHarness(t, reader, testPool)

	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 5, 1000, "1", "1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePoolUnavailable, outcome)

	counts := h.store.Counts()
	assert.Zero(t, counts[store.KindPosition])
	assert.Zero(t, counts[store.KindPool])
	assert.Zero(t, counts[store.KindPositionSnapshot])
}

func TestExistingPoolIsNotReread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)
	require.NoError(t, h.store.UpsertPool(ctx, &model.Pool{ID: testPool, Token0: testUSDC, Token1: testWETH, FeeTier: 500}))

	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0xmint"),
		liquidityChange(t, 5, 1, "1", "1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	assert.Zero(t, h.reader.calls(h.reader.poolCalls, testPool))
	assert.Empty(t, h.tracker.pools())
}

func TestFeeGrowthRefresh(t *testing.T) {
	ctx := context.Background()
	reader := newFakeReader().withUSDCWETH(t).withPosition("5", 100, 200)
	h := newHarness(t, reader, testPool)

	_, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0x1"), liquidityChange(t, 5, 1, "1", "1"))
	require.NoError(t, err)

	reader.mu.Lock()
	reader.positions["5"] = chainstate.PositionState{
		Token0: testUSDC, Token1: testWETH, Fee: 500,
		FeeGrowthInside0LastX128: big.NewInt(300),
		FeeGrowthInside1LastX128: big.NewInt(400),
	}
	reader.mu.Unlock()

	_, err = h.engine.HandleCollect(ctx, eventAt(101, "0x2"), collection(t, 5, "0", "0"))
	require.NoError(t, err)
	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "300", pos.FeeGrowthInside0LastX128.String())
	assert.Equal(t, "400", pos.FeeGrowthInside1LastX128.String())

	// A failed refresh keeps the previous checkpoints and still applies the event.
	reader.mu.Lock()
	reader.positionLimit["5"] = reader.positionCalls["5"]
	reader.mu.Unlock()

	outcome, err := h.engine.HandleDecreaseLiquidity(ctx, eventAt(102, "0x3"), liquidityChange(t, 5, 1, "0", "0"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	pos, _, err = h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "300", pos.FeeGrowthInside0LastX128.String())
	assert.Equal(t, "400", pos.FeeGrowthInside1LastX128.String())
	assert.Equal(t, "0", pos.Liquidity.String())
}

func TestDecreaseIsNotClampedAtZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	_, err := h.engine.HandleDecreaseLiquidity(ctx, eventAt(100, "0x1"), liquidityChange(t, 5, 25, "0", "0"))
	require.NoError(t, err)
	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "-25", pos.Liquidity.String())
}

func TestSameBlockMutationsShareSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	_, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0x1"), liquidityChange(t, 5, 10, "1000000", "0"))
	require.NoError(t, err)
	second := eventAt(100, "0x1")
	second.LogIndex = 1
	_, err = h.engine.HandleIncreaseLiquidity(ctx, second, liquidityChange(t, 5, 5, "1000000", "0"))
	require.NoError(t, err)

	snaps := h.store.Snapshots("5")
	require.Len(t, snaps, 1)
	assert.Equal(t, "15", snaps[0].Liquidity.String())
	requireDecimal(t, "2", snaps[0].DepositedToken0)
}

func TestReplayedEventIsAppliedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	first := eventAt(100, "0x1")
	first.LogIndex = 3
	outcome, err := h.engine.HandleIncreaseLiquidity(ctx, first, liquidityChange(t, 5, 10, "1000000", "0"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = h.engine.HandleIncreaseLiquidity(ctx, first, liquidityChange(t, 5, 10, "1000000", "0"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, outcome)

	earlier := eventAt(100, "0x1")
	earlier.LogIndex = 2
	outcome, err = h.engine.HandleTransfer(ctx, earlier, OwnershipTransfer{TokenID: big.NewInt(5), To: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, outcome)

	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "10", pos.Liquidity.String())
	requireDecimal(t, "1", pos.DepositedToken0)
	assert.Empty(t, pos.OwnerOrEmpty())
	require.NotNil(t, pos.LastApplied)
	assert.Equal(t, model.Cursor{BlockNumber: 100, LogIndex: 3}, *pos.LastApplied)

	later := eventAt(100, "0x1")
	later.LogIndex = 4
	outcome, err = h.engine.HandleCollect(ctx, later, collection(t, 5, "1", "0"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestApplyRoutesRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	outcome, err := h.engine.Apply(ctx, record(t, model.EventIncreaseLiquidity, 100, 0, model.LiquidityEventData{
		TokenID: "5", Liquidity: "1000", Amount0: "1000000", Amount1: "2000000000000000000",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = h.engine.Apply(ctx, record(t, model.EventTransfer, 100, 1, model.TransferEventData{
		From: "0x0000000000000000000000000000000000000000", To: "0xabc", TokenID: "5",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = h.engine.Apply(ctx, record(t, model.EventCollect, 101, 0, model.CollectEventData{
		TokenID: "5", Recipient: "0xabc", Amount0: "10", Amount1: "20",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", pos.OwnerOrEmpty())
	requireDecimal(t, "0.00001", pos.CollectedToken0)
}

func TestApplyRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	cases := []model.TypedEventRecord{
		record(t, "Swap", 1, 0, map[string]string{"token_id": "5"}),
		record(t, model.EventIncreaseLiquidity, 1, 1, model.LiquidityEventData{TokenID: "5", Liquidity: "x", Amount0: "1", Amount1: "1"}),
		record(t, model.EventTransfer, 1, 2, model.TransferEventData{TokenID: "5"}),
		{EventName: model.EventCollect, Decoded: []byte("{")},
	}
	for _, rec := range cases {
		outcome, err := h.engine.Apply(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidEvent, outcome, rec.EventName)
	}
	for kind, n := range h.store.Counts() {
		assert.Zero(t, n, kind)
	}
}

func TestCollectedFeesFollowLaterDecrease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeReader().withUSDCWETH(t).withPosition("5", 0, 0), testPool)

	_, err := h.engine.HandleIncreaseLiquidity(ctx, eventAt(100, "0x1"), liquidityChange(t, 5, 100, "5000000", "0"))
	require.NoError(t, err)
	_, err = h.engine.HandleCollect(ctx, eventAt(101, "0x2"), collection(t, 5, "300000", "0"))
	require.NoError(t, err)
	_, err = h.engine.HandleDecreaseLiquidity(ctx, eventAt(102, "0x3"), liquidityChange(t, 5, 50, "2000000", "0"))
	require.NoError(t, err)

	// Fees are always collected minus withdrawn, so uncollected principal shows as negative.
	pos, _, err := h.store.LoadPosition(ctx, "5")
	require.NoError(t, err)
	requireDecimal(t, "-1.7", pos.CollectedFeesToken0())

	snap, _, err := h.store.LoadPositionSnapshot(ctx, "5#101")
	require.NoError(t, err)
	requireDecimal(t, "0.3", snap.CollectedFeesToken0)
}
