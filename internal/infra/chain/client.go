package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client implements Reader over one or more RPC endpoints with rotation on
// provider errors. Calls retry transient errors with backoff, rotate to the
// next endpoint on quota/auth errors, and give up on request-shape errors.
type Client struct {
	chainID   uint64
	names     []string
	clients   []*ethclient.Client
	mu        sync.Mutex
	active    int
	retryWait time.Duration
	log       *logger.Logger
}

// NewClient dials every endpoint. At least one endpoint is required; dialing
// is lazy in go-ethereum so endpoints are not probed here.
func NewClient(chainID uint64, endpoints []string) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chain %d: no rpc endpoints configured", chainID)
	}

	clients := make([]*ethclient.Client, 0, len(endpoints))
	for _, url := range endpoints {
		ec, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}
		clients = append(clients, ec)
	}

	return &Client{
		chainID:   chainID,
		names:     endpoints,
		clients:   clients,
		retryWait: 500 * time.Millisecond,
		log:       logger.With("chain", chainID),
	}, nil
}

// Close closes all endpoint connections.
func (c *Client) Close() {
	for _, ec := range c.clients {
		ec.Close()
	}
}

func (c *Client) current() (*ethclient.Client, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clients[c.active], c.active
}

func (c *Client) rotate(from int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == from {
		c.active = (c.active + 1) % len(c.clients)
		c.log.Warn("rotating rpc endpoint",
			"from", c.names[from], "to", c.names[c.active])
	}
}

// do runs fn against the active endpoint, rotating through all endpoints on
// provider errors and retrying each once on transient errors.
func (c *Client) do(ctx context.Context, fn func(*ethclient.Client) error) error {
	var lastErr error

	for i := 0; i < len(c.clients); i++ {
		ec, idx := c.current()

		for attempt := 0; attempt < 2; attempt++ {
			err := fn(ec)
			if err == nil {
				return nil
			}
			if errors.Is(err, ethereum.NotFound) {
				return ErrNotFound
			}
			// Revert payloads are results, not provider failures.
			var de rpc.DataError
			if errors.As(err, &de) {
				return err
			}

			lastErr = err
			switch ClassifyError(err) {
			case ActionFatal:
				return err
			case ActionFailover:
				c.rotate(idx)
				attempt = 2 // break inner loop
			default:
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.retryWait):
				}
			}
		}
	}

	return fmt.Errorf("all endpoints failed: %w", lastErr)
}

func (c *Client) TransactionReceipt(
	ctx context.Context,
	txHash common.Hash,
) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, func(ec *ethclient.Client) error {
		r, err := ec.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var num uint64
	err := c.do(ctx, func(ec *ethclient.Client) error {
		n, err := ec.BlockNumber(ctx)
		if err != nil {
			return err
		}
		num = n
		return nil
	})
	return num, err
}

func (c *Client) FilterLogs(
	ctx context.Context,
	q ethereum.FilterQuery,
) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, func(ec *ethclient.Client) error {
		l, err := ec.FilterLogs(ctx, q)
		if err != nil {
			return err
		}
		logs = l
		return nil
	})
	return logs, err
}

func (c *Client) CallContract(
	ctx context.Context,
	msg ethereum.CallMsg,
	blockNumber *big.Int,
) ([]byte, error) {
	var out []byte
	err := c.do(ctx, func(ec *ethclient.Client) error {
		ret, err := ec.CallContract(ctx, msg, blockNumber)
		if err != nil {
			return err
		}
		out = ret
		return nil
	})
	return out, err
}
