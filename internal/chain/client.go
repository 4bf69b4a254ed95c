package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Options parameterise the RPC client.
type Options struct {
	RPCURL         string
	RequestTimeout time.Duration
	DialTimeout    time.Duration
}

// Client reads chain data through go-ethereum's ethclient, dialling lazily
// and bounding every call with the configured request timeout.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewClient builds a new chain client. No connection is made until the first call.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Client{opts: opts, logger: logger.With().Str("component", "chain_client").Logger()}
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return head, nil
}

// HeaderByNumber returns the header at the given height.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	header, err := client.HeaderByNumber(ctx, number)
	if errors.Is(err, ethereum.NotFound) || (err == nil && header == nil) {
		return nil, fmt.Errorf("header %s: %w", number, ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %s: %w", number, err)
	}
	return header, nil
}

// SuggestGasPrice returns the node's current legacy gas price in wei.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	return price, nil
}

// FeeHistory proxies eth_feeHistory.
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	history, err := client.FeeHistory(ctx, blockCount, lastBlock, rewardPercentiles)
	if err != nil {
		return nil, fmt.Errorf("eth_feeHistory: %w", err)
	}
	return history, nil
}

// Close releases the underlying RPC connection, if any.
func (c *Client) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	if c.opts.RPCURL == "" {
		return nil, ErrNotConfigured
	}

	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, c.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.RPCURL, err)
	}
	c.logger.Debug().Str("rpc_url", c.opts.RPCURL).Msg("connected to rpc endpoint")
	c.client = client
	return client, nil
}

var (
	_ Accessor         = (*Client)(nil)
	_ FeeHistoryReader = (*Client)(nil)
)
