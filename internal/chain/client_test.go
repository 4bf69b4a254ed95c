package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer serves a tiny chain whose head is 0x10 and whose header 0x0f is missing.
func newRPCServer(t *testing.T) *httptest.Server {
	t.Helper()

	zeroHash := "0x" + strings.Repeat("0", 64)
	header := map[string]any{
		"parentHash":       zeroHash,
		"sha3Uncles":       zeroHash,
		"miner":            "0x" + strings.Repeat("0", 40),
		"stateRoot":        zeroHash,
		"transactionsRoot": zeroHash,
		"receiptsRoot":     zeroHash,
		"logsBloom":        "0x" + strings.Repeat("0", 512),
		"difficulty":       "0x0",
		"number":           "0x10",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0xe4e1c0",
		"timestamp":        "0x6553f100",
		"extraData":        "0x",
		"mixHash":          zeroHash,
		"nonce":            "0x0000000000000000",
		"baseFeePerGas":    "0x2540be400",
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "eth_blockNumber":
			result = "0x10"
		case "eth_gasPrice":
			result = "0x4a817c800"
		case "eth_getBlockByNumber":
			var tag string
			_ = json.Unmarshal(req.Params[0], &tag)
			if tag == "0x10" {
				result = header
			}
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
}

func TestClientMissingRPCURL(t *testing.T) {
	c := NewClient(Options{}, zerolog.Nop())
	_, err := c.BlockNumber(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientReadsHeadHeaderAndGasPrice(t *testing.T) {
	srv := newRPCServer(t)
	defer srv.Close()

	c := NewClient(Options{RPCURL: srv.URL, RequestTimeout: time.Second}, zerolog.Nop())
	defer c.Close()
	ctx := context.Background()

	head, err := c.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), head)

	header, err := c.HeaderByNumber(ctx, big.NewInt(16))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x6553f100), header.Time)
	assert.InDelta(t, 10.0, WeiToGwei(header.BaseFee), 1e-9)

	price, err := c.SuggestGasPrice(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, WeiToGwei(price), 1e-9)
}

func TestClientMissingHeader(t *testing.T) {
	srv := newRPCServer(t)
	defer srv.Close()

	c := NewClient(Options{RPCURL: srv.URL, RequestTimeout: time.Second}, zerolog.Nop())
	defer c.Close()

	_, err := c.HeaderByNumber(context.Background(), big.NewInt(15))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlockNotFound), "unexpected error: %v", err)
}

func TestClientRPCError(t *testing.T) {
	srv := newRPCServer(t)
	defer srv.Close()

	c := NewClient(Options{RPCURL: srv.URL, RequestTimeout: time.Second}, zerolog.Nop())
	defer c.Close()

	_, err := c.FeeHistory(context.Background(), 4, big.NewInt(16), []float64{50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eth_feeHistory")
}

func TestWeiToGwei(t *testing.T) {
	tests := []struct {
		name string
		wei  *big.Int
		want float64
	}{
		{name: "nil", wei: nil, want: 0},
		{name: "one gwei", wei: big.NewInt(1_000_000_000), want: 1},
		{name: "fractional", wei: big.NewInt(1_500_000_000), want: 1.5},
		{name: "sub gwei", wei: big.NewInt(7), want: 0.000000007},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WeiToGwei(tt.wei), 1e-12)
		})
	}
}
