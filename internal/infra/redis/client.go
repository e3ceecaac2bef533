package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the tracking pipeline: idempotency
// markers, retry counters, the cached price table, and the retry channel.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers. Keys must stay stable: the mined flag and retry counter are
// shared between the confirmation waiter and the retry consumer.
func MinedKey(txID string) string {
	return fmt.Sprintf("tx_mined:%s", txID)
}

func RetryCountKey(txID string, chainID uint64) string {
	return fmt.Sprintf("retry_count:%s:%d", txID, chainID)
}

func PriceTableKey() string {
	return "network_prices"
}

func queueKey(pool string) string {
	return fmt.Sprintf("retry_queue:%s", pool)
}

// minedTTL bounds how long a mined flag lives. Long enough for every replay
// of the retry channel to observe it.
const minedTTL = 24 * time.Hour

// SetMined sets the mined flag for a transaction id. Returns true when this
// call was the first to set it.
func (c *Client) SetMined(ctx context.Context, txID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, MinedKey(txID), "1", minedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// IsMined reports whether the mined flag is set for a transaction id.
func (c *Client) IsMined(ctx context.Context, txID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, MinedKey(txID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}

// IncrRetryCount increments and returns the retry counter for a transaction.
func (c *Client) IncrRetryCount(ctx context.Context, txID string, chainID uint64) (int64, error) {
	n, err := c.rdb.Incr(ctx, RetryCountKey(txID, chainID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr failed: %w", err)
	}
	return n, nil
}

// DeleteRetryCount clears the retry counter for a transaction.
func (c *Client) DeleteRetryCount(ctx context.Context, txID string, chainID uint64) error {
	return c.rdb.Del(ctx, RetryCountKey(txID, chainID)).Err()
}

// GetPriceTable returns the cached native-token USD prices keyed by chain id.
func (c *Client) GetPriceTable(ctx context.Context) (map[uint64]float64, error) {
	val, err := c.rdb.Get(ctx, PriceTableKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var table map[uint64]float64
	if err := json.Unmarshal([]byte(val), &table); err != nil {
		return nil, fmt.Errorf("invalid price table: %w", err)
	}
	return table, nil
}

// SetPriceTable stores the price table. Written by the external price feeder;
// exposed here for tooling and tests.
func (c *Client) SetPriceTable(ctx context.Context, table map[uint64]float64) error {
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, PriceTableKey(), data, 0).Err()
}

// PushMessage publishes a payload onto a pool's retry queue.
func (c *Client) PushMessage(ctx context.Context, pool string, payload []byte) error {
	if err := c.rdb.LPush(ctx, queueKey(pool), payload).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// PopMessage blocks up to timeout for the next payload on a pool's retry
// queue. Popping acknowledges the message; delivery is at-least-once only
// because publishers may re-enqueue.
func (c *Client) PopMessage(
	ctx context.Context,
	pool string,
	timeout time.Duration,
) ([]byte, bool, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queueKey(pool)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("brpop failed: %w", err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("unexpected brpop reply length: %d", len(res))
	}
	return []byte(res[1]), true, nil
}

// QueueDepth returns the number of queued messages for a pool.
func (c *Client) QueueDepth(ctx context.Context, pool string) (int64, error) {
	return c.rdb.LLen(ctx, queueKey(pool)).Result()
}
