package dex

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"positionScope/internal/chainstate"
)

type fakeCall struct {
	out []byte
	err error
}

// fakeCaller answers eth_call by target address and 4-byte selector.
type fakeCaller struct {
	mu        sync.Mutex
	responses map[string]fakeCall
	calls     map[string]int
	blocks    []*big.Int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: map[string]fakeCall{}, calls: map[string]int{}}
}

func (f *fakeCaller) key(to common.Address, selector []byte) string {
	return strings.ToLower(to.Hex()) + ":" + common.Bytes2Hex(selector)
}

func (f *fakeCaller) respond(t *testing.T, to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	f.responses[f.key(to, parsed.Methods[method].ID)] = fakeCall{out: out}
}

func (f *fakeCaller) fail(to common.Address, parsed abi.ABI, method string, err error) {
	f.responses[f.key(to, parsed.Methods[method].ID)] = fakeCall{err: err}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(*msg.To, msg.Data[:4])
	f.calls[k]++
	f.blocks = append(f.blocks, blockNumber)
	resp, ok := f.responses[k]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return resp.out, resp.err
}

func (f *fakeCaller) count(to common.Address, parsed abi.ABI, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[f.key(to, parsed.Methods[method].ID)]
}

func TestChainReaderPositionState(t *testing.T) {
	managerABI, err := PositionManagerABI()
	require.NoError(t, err)

	manager := common.HexToAddress(testManager)
	token0 := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	token1 := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	caller := newFakeCaller()
	caller.respond(t, manager, managerABI, "positions",
		big.NewInt(0),
		common.Address{},
		token0,
		token1,
		big.NewInt(500),
		big.NewInt(-887270),
		big.NewInt(887270),
		big.NewInt(1000),
		big.NewInt(11),
		big.NewInt(22),
		big.NewInt(0),
		big.NewInt(0),
	)

	reader := NewChainReader(ReaderConfig{}, caller, zaptest.NewLogger(t))
	result := reader.PositionState(context.Background(), chainstate.BlockContext{Number: 100, Manager: testManager}, big.NewInt(5))

	state, ok := result.Get()
	require.True(t, ok)
	assert.Equal(t, strings.ToLower(token0.Hex()), state.Token0)
	assert.Equal(t, strings.ToLower(token1.Hex()), state.Token1)
	assert.Equal(t, uint32(500), state.Fee)
	assert.Equal(t, int32(-887270), state.TickLower)
	assert.Equal(t, int32(887270), state.TickUpper)
	assert.Equal(t, "1000", state.Liquidity.String())
	assert.Equal(t, "11", state.FeeGrowthInside0LastX128.String())
	assert.Equal(t, "22", state.FeeGrowthInside1LastX128.String())

	require.Len(t, caller.blocks, 1)
	assert.Equal(t, uint64(100), caller.blocks[0].Uint64())
}

func TestChainReaderPositionStateRevertIsUnavailable(t *testing.T) {
	managerABI, err := PositionManagerABI()
	require.NoError(t, err)

	manager := common.HexToAddress(testManager)
	caller := newFakeCaller()

	reader := NewChainReader(ReaderConfig{MaxRetries: 3}, caller, zaptest.NewLogger(t))
	result := reader.PositionState(context.Background(), chainstate.BlockContext{Number: 100, Manager: testManager}, big.NewInt(5))

	require.False(t, result.IsAvailable())
	assert.Equal(t, 1, caller.count(manager, managerABI, "positions"), "reverts must not be retried")
}

func TestChainReaderRetriesTransientFailures(t *testing.T) {
	managerABI, err := PositionManagerABI()
	require.NoError(t, err)

	manager := common.HexToAddress(testManager)
	caller := newFakeCaller()
	caller.fail(manager, managerABI, "positions", errors.New("connection reset"))

	reader := NewChainReader(ReaderConfig{MaxRetries: 2, RetryBackoff: 1}, caller, zaptest.NewLogger(t))
	result := reader.PositionState(context.Background(), chainstate.BlockContext{Number: 7, Manager: testManager}, big.NewInt(5))

	require.False(t, result.IsAvailable())
	assert.Equal(t, 3, caller.count(manager, managerABI, "positions"))
}

func TestChainReaderPoolState(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)

	pool := common.HexToAddress("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640")
	sqrt, ok := new(big.Int).SetString("1906627091097897970122208862883908", 10)
	require.True(t, ok)

	caller := newFakeCaller()
	caller.respond(t, pool, poolABI, "fee", big.NewInt(500))
	caller.respond(t, pool, poolABI, "feeGrowthGlobal0X128", big.NewInt(101))
	caller.respond(t, pool, poolABI, "feeGrowthGlobal1X128", big.NewInt(202))
	caller.respond(t, pool, poolABI, "liquidity", big.NewInt(303))
	caller.respond(t, pool, poolABI, "slot0", sqrt, big.NewInt(-201000), uint16(9), uint16(10), uint16(10), uint8(0), true)

	reader := NewChainReader(ReaderConfig{}, caller, zaptest.NewLogger(t))
	state, ok := reader.PoolState(context.Background(), chainstate.BlockContext{Number: 1}, pool.Hex()).Get()
	require.True(t, ok)
	assert.Equal(t, uint32(500), state.Fee)
	assert.Equal(t, "101", state.FeeGrowthGlobal0X128.String())
	assert.Equal(t, "202", state.FeeGrowthGlobal1X128.String())
	assert.Equal(t, "303", state.Liquidity.String())
	assert.Equal(t, 0, state.SqrtPriceX96.Cmp(sqrt))
	assert.Equal(t, int32(-201000), state.Tick)
	assert.Equal(t, uint16(9), state.ObservationIndex)

	caller.fail(pool, poolABI, "slot0", errors.New("execution reverted"))
	reader = NewChainReader(ReaderConfig{}, caller, zaptest.NewLogger(t))
	require.False(t, reader.PoolState(context.Background(), chainstate.BlockContext{Number: 1}, pool.Hex()).IsAvailable())
}

func TestChainReaderTokenMetadata(t *testing.T) {
	stringABI, err := erc20ABIStringInstance()
	require.NoError(t, err)
	bytes32ABI, err := erc20ABIBytes32Instance()
	require.NoError(t, err)

	token := common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	caller := newFakeCaller()
	caller.respond(t, token, stringABI, "decimals", uint8(18))
	caller.respond(t, token, stringABI, "totalSupply", big.NewInt(1_000_000))
	// symbol/name only answer with bytes32, like MKR.
	var symbol [32]byte
	copy(symbol[:], "MKR")
	caller.fail(token, stringABI, "symbol", errors.New("abi mismatch"))
	caller.respond(t, token, bytes32ABI, "symbol", symbol)

	reader := NewChainReader(ReaderConfig{}, caller, zaptest.NewLogger(t))
	meta := reader.TokenMetadata(context.Background(), token.Hex())

	decimals, ok := meta.Decimals.Get()
	require.True(t, ok)
	assert.Equal(t, uint8(18), decimals)
	assert.Equal(t, "MKR", meta.Symbol)
	assert.Equal(t, unknownTokenText, meta.Name)
	assert.Equal(t, "1000000", meta.TotalSupply.String())

	// Cached after the first successful read.
	before := caller.count(token, stringABI, "decimals")
	reader.TokenMetadata(context.Background(), strings.ToLower(token.Hex()))
	assert.Equal(t, before, caller.count(token, stringABI, "decimals"))
}

func TestChainReaderTokenMetadataUnknownDecimals(t *testing.T) {
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	caller := newFakeCaller()

	reader := NewChainReader(ReaderConfig{}, caller, zaptest.NewLogger(t))
	meta := reader.TokenMetadata(context.Background(), token.Hex())

	require.False(t, meta.Decimals.IsAvailable())
	assert.Equal(t, unknownTokenText, meta.Symbol)
	assert.Equal(t, "0", meta.TotalSupply.String())
}
