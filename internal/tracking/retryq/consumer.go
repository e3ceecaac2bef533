package retryq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/chain"
	"github.com/vietddude/txmonitor/internal/infra/relay"
	"github.com/vietddude/txmonitor/internal/tracking/metrics"
)

// Cache is the idempotency marker store used by the consumer. The mined flag
// is the single arbiter preventing a resubmission from racing an in-flight
// confirmation; it is read before any mutating action.
type Cache interface {
	IsMined(ctx context.Context, txID string) (bool, error)
	DeleteRetryCount(ctx context.Context, txID string, chainID uint64) error
	IncrRetryCount(ctx context.Context, txID string, chainID uint64) (int64, error)
}

// Resubmitter is the external transaction-execution service that fee-bumps
// and rebroadcasts. A resubmission triggers a fresh Notify call, closing the
// tracking loop.
type Resubmitter interface {
	RetryTransaction(ctx context.Context, msg *domain.RetryMessage) error
}

// RelayStatus is the private relay's inclusion-status channel.
type RelayStatus interface {
	GetTxStatus(ctx context.Context, txHash string) (*relay.TxStatus, error)
}

// ConsumerConfig holds per-pool consumer settings.
type ConsumerConfig struct {
	Pool            string
	ChainID         uint64
	UsePrivateRelay bool
	MaxRetries      int64
	PopTimeout      time.Duration
}

// Consumer drains one pool's retry queue. Messages are handled strictly one
// at a time so two resubmissions of the same relayer account can never run
// concurrently and violate nonce ordering.
type Consumer struct {
	channel Channel
	cache   Cache
	gateway chain.Reader
	relay   RelayStatus // nil when the pool has no private relay
	resub   Resubmitter
	cfg     ConsumerConfig
	log     *logger.Logger
}

// NewConsumer creates a Consumer for one relayer pool.
func NewConsumer(
	channel Channel,
	cache Cache,
	gateway chain.Reader,
	relayStatus RelayStatus,
	resub Resubmitter,
	cfg ConsumerConfig,
) *Consumer {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if cfg.PopTimeout == 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	return &Consumer{
		channel: channel,
		cache:   cache,
		gateway: gateway,
		relay:   relayStatus,
		resub:   resub,
		cfg:     cfg,
		log:     logger.With("component", "retry-consumer", "pool", cfg.Pool),
	}
}

// Run drains the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("retry consumer started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("retry consumer stopped")
			return
		default:
		}

		payload, ok, err := c.channel.PopMessage(ctx, c.cfg.Pool, c.cfg.PopTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.log.Warn("failed to pop retry message", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}

		var msg domain.RetryMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Error("discarding malformed retry message", "error", err)
			continue
		}

		c.handle(ctx, &msg)
		if depth, err := c.channel.QueueDepth(ctx, c.cfg.Pool); err == nil {
			metrics.RetryQueueDepth.WithLabelValues(c.cfg.Pool).Set(float64(depth))
		}
	}
}

// handle processes one message. The message is already acknowledged (popped),
// so every path here must be safe under duplicate delivery. Errors are logged,
// never returned: the attempt stays PENDING and a later cycle re-evaluates it.
func (c *Consumer) handle(ctx context.Context, msg *domain.RetryMessage) {
	log := c.log.With("tx_id", msg.TransactionID, "hash", msg.TransactionHash)

	mined, err := c.cache.IsMined(ctx, msg.TransactionID)
	if err != nil {
		log.Warn("failed to read mined flag", "error", err)
		return
	}
	if mined {
		// Already confirmed by the waiter; nothing to resubmit.
		if err := c.cache.DeleteRetryCount(ctx, msg.TransactionID, c.cfg.ChainID); err != nil {
			log.Warn("failed to clear retry counter", "error", err)
		}
		return
	}

	if msg.TransactionHash != "" {
		receipt, err := c.gateway.TransactionReceipt(ctx, common.HexToHash(msg.TransactionHash))
		if err != nil && !errors.Is(err, chain.ErrNotFound) {
			log.Warn("receipt lookup failed", "error", err)
			return
		}
		if receipt != nil {
			// Mined: the confirmation path owns classification. Resubmitting
			// now would double-spend the nonce.
			return
		}
	}

	if c.cfg.UsePrivateRelay && c.relay != nil && msg.TransactionHash != "" {
		st, err := c.relay.GetTxStatus(ctx, msg.TransactionHash)
		if err != nil {
			log.Warn("relay status check failed", "error", err)
		} else {
			log.Debug("relay status before resubmission", "status", st.Status)
			if st.Status == relay.StatusIncluded {
				return
			}
		}
	}

	n, err := c.cache.IncrRetryCount(ctx, msg.TransactionID, c.cfg.ChainID)
	if err != nil {
		log.Warn("failed to bump retry counter", "error", err)
	} else if n > c.cfg.MaxRetries {
		metrics.RetriesExhausted.WithLabelValues(c.chainLabel()).Inc()
		log.Warn("retry ceiling reached, leaving attempt pending", "retries", n)
		return
	}

	if err := c.resub.RetryTransaction(ctx, msg); err != nil {
		log.Error("resubmission failed", "error", err)
		return
	}
	metrics.RetriesTriggered.WithLabelValues(c.chainLabel()).Inc()
	log.Info("resubmission triggered", "retries", n)
}

func (c *Consumer) chainLabel() string {
	return strconv.FormatUint(c.cfg.ChainID, 10)
}
