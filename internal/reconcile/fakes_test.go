package reconcile

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"positionScope/internal/chainstate"
	"positionScope/internal/model"
	"positionScope/internal/store/memory"
)

const (
	testManager = "0xc36442b4a4522e871399cd717abdd847ab11fe88"
	testUSDC    = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	testWETH    = "0xc02aaa39b223fe8d0a0e5c7756cc2ad83c756cc2"
	testPool    = "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"
	testSqrt    = "1906627091097897970122208862883908"
)

type fakeReader struct {
	mu sync.Mutex

	positions map[string]chainstate.PositionState
	// positionLimit caps how many positions() reads succeed per id; 0 is unlimited.
	positionLimit map[string]int
	pools         map[string]chainstate.PoolState
	tokens        map[string]chainstate.TokenMetadata

	positionCalls map[string]int
	poolCalls     map[string]int
	tokenCalls    map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		positions:     map[string]chainstate.PositionState{},
		positionLimit: map[string]int{},
		pools:         map[string]chainstate.PoolState{},
		tokens:        map[string]chainstate.TokenMetadata{},
		positionCalls: map[string]int{},
		poolCalls:     map[string]int{},
		tokenCalls:    map[string]int{},
	}
}

// withUSDCWETH registers both tokens and the pool the registry resolves to.
func (f *fakeReader) withUSDCWETH(t *testing.T) *fakeReader {
	f.tokens[testUSDC] = chainstate.TokenMetadata{
		Symbol: "USDC", Name: "USD Coin", TotalSupply: big.NewInt(1_000_000),
		Decimals: chainstate.Available[uint8](6),
	}
	f.tokens[testWETH] = chainstate.TokenMetadata{
		Symbol: "WETH", Name: "Wrapped Ether", TotalSupply: big.NewInt(2_000_000),
		Decimals: chainstate.Available[uint8](18),
	}
	f.pools[testPool] = chainstate.PoolState{
		Fee:                  500,
		FeeGrowthGlobal0X128: big.NewInt(11),
		FeeGrowthGlobal1X128: big.NewInt(22),
		Liquidity:            big.NewInt(123456),
		SqrtPriceX96:         mustInt(t, testSqrt),
		Tick:                 200000,
		ObservationIndex:     7,
	}
	return f
}

func (f *fakeReader) withPosition(id string, growth0, growth1 int64) *fakeReader {
	f.positions[id] = chainstate.PositionState{
		Token0:                   testUSDC,
		Token1:                   testWETH,
		Fee:                      500,
		TickLower:                -887220,
		TickUpper:                887220,
		Liquidity:                big.NewInt(0),
		FeeGrowthInside0LastX128: big.NewInt(growth0),
		FeeGrowthInside1LastX128: big.NewInt(growth1),
	}
	return f
}

func (f *fakeReader) PositionState(_ context.Context, _ chainstate.BlockContext, tokenID *big.Int) chainstate.Result[chainstate.PositionState] {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := tokenID.String()
	f.positionCalls[id]++
	state, ok := f.positions[id]
	if !ok {
		return chainstate.Unavailable[chainstate.PositionState]()
	}
	if limit := f.positionLimit[id]; limit > 0 && f.positionCalls[id] > limit {
		return chainstate.Unavailable[chainstate.PositionState]()
	}
	return chainstate.Available(state)
}

func (f *fakeReader) PoolState(_ context.Context, _ chainstate.BlockContext, pool string) chainstate.Result[chainstate.PoolState] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolCalls[pool]++
	state, ok := f.pools[pool]
	if !ok {
		return chainstate.Unavailable[chainstate.PoolState]()
	}
	return chainstate.Available(state)
}

func (f *fakeReader) TokenMetadata(_ context.Context, token string) chainstate.TokenMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls[token]++
	meta, ok := f.tokens[token]
	if !ok {
		return chainstate.TokenMetadata{Symbol: "unknown", Name: "unknown", TotalSupply: new(big.Int)}
	}
	return meta
}

func (f *fakeReader) calls(kind map[string]int, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return kind[key]
}

type fakeRegistry struct {
	address string
}

func (r fakeRegistry) PoolAddress(_, _ string, _ uint32) string {
	return r.address
}

type fakeTracker struct {
	mu      sync.Mutex
	tracked []string
}

func (f *fakeTracker) Track(_ context.Context, pool string, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, pool)
	return nil
}

func (f *fakeTracker) pools() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tracked...)
}

type harness struct {
	engine  *Engine
	store   *memory.Store
	reader  *fakeReader
	tracker *fakeTracker
}

func newHarness(t *testing.T, reader *fakeReader, poolAddress string) *harness {
	t.Helper()
	repo := memory.NewStore()
	tracker := &fakeTracker{}
	engine, err := NewEngine(DefaultConfig(), repo, reader, fakeRegistry{address: poolAddress}, tracker, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &harness{engine: engine, store: repo, reader: reader, tracker: tracker}
}

func eventAt(block uint64, tx string) model.EventContext {
	return model.EventContext{
		ChainID:     1,
		BlockNumber: block,
		Timestamp:   1_700_000_000 + block,
		TxHash:      tx,
		Address:     testManager,
	}
}

func liquidityChange(t *testing.T, id int64, liquidity int64, amount0, amount1 string) LiquidityChange {
	return LiquidityChange{
		TokenID:   big.NewInt(id),
		Liquidity: big.NewInt(liquidity),
		Amount0:   mustInt(t, amount0),
		Amount1:   mustInt(t, amount1),
	}
}

func collection(t *testing.T, id int64, amount0, amount1 string) Collection {
	return Collection{TokenID: big.NewInt(id), Amount0: mustInt(t, amount0), Amount1: mustInt(t, amount1)}
}

func record(t *testing.T, name string, block, logIndex uint64, payload interface{}) model.TypedEventRecord {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return model.TypedEventRecord{
		ChainID:     1,
		BlockNumber: block,
		TxHash:      "0xtx" + big.NewInt(int64(block)).String(),
		LogIndex:    logIndex,
		Address:     testManager,
		EventName:   name,
		Timestamp:   1_700_000_000 + block,
		Decoded:     raw,
	}
}

func mustInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid integer %q", s)
	return v
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(decimal.RequireFromString(want)), "want %s got %s", want, got.String())
}
