// Package chain provides read access to an EVM chain for gas sampling.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

var (
	// ErrBlockNotFound is returned when the node has no header at the requested height.
	ErrBlockNotFound = errors.New("chain: block not found")
	// ErrNotConfigured indicates no RPC endpoint was supplied.
	ErrNotConfigured = errors.New("chain: rpc url not configured")
)

// Accessor is the minimal chain capability the sampler depends on.
// *ethclient.Client satisfies it directly.
type Accessor interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// FeeHistoryReader is optionally implemented by accessors that expose eth_feeHistory.
type FeeHistoryReader interface {
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
}

// WeiToGwei converts a wei amount to gwei. A nil amount converts to zero.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -9).InexactFloat64()
}
