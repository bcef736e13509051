package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"positionScope/internal/chainstate"
)

// Uniswap V3 mainnet position manager, factory and pool init code hash.
const (
	DefaultPositionManager  = "0xC36442b4a4522E871399CD717aBDD847Ab11FE88"
	DefaultPoolDeployer     = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	DefaultPoolInitCodeHash = "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"
)

// Create2Registry derives pool addresses the way the factory deploys them,
// so lookups never need a chain call and are defined for undeployed pools.
type Create2Registry struct {
	deployer     common.Address
	initCodeHash []byte
}

var _ chainstate.PoolRegistry = (*Create2Registry)(nil)

// NewCreate2Registry validates the deployer and init code hash.
func NewCreate2Registry(deployer, initCodeHash string) (*Create2Registry, error) {
	if !common.IsHexAddress(deployer) {
		return nil, fmt.Errorf("invalid pool deployer: %s", deployer)
	}
	hash, err := hexutil.Decode(initCodeHash)
	if err != nil {
		return nil, fmt.Errorf("invalid pool init code hash: %w", err)
	}
	if len(hash) != common.HashLength {
		return nil, fmt.Errorf("invalid pool init code hash length: %d", len(hash))
	}
	return &Create2Registry{
		deployer:     common.HexToAddress(deployer),
		initCodeHash: hash,
	}, nil
}

// PoolAddress returns the lower-case hex pool address for the pair and fee.
func (r *Create2Registry) PoolAddress(token0, token1 string, fee uint32) string {
	a := common.HexToAddress(token0)
	b := common.HexToAddress(token1)
	if strings.ToLower(a.Hex()) > strings.ToLower(b.Hex()) {
		a, b = b, a
	}

	// keccak256(abi.encode(token0, token1, fee))
	encoded := make([]byte, 0, 96)
	encoded = append(encoded, common.LeftPadBytes(a.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(b.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(new(big.Int).SetUint64(uint64(fee)).Bytes(), 32)...)

	var salt [32]byte
	copy(salt[:], crypto.Keccak256(encoded))

	return strings.ToLower(crypto.CreateAddress2(r.deployer, salt, r.initCodeHash).Hex())
}
