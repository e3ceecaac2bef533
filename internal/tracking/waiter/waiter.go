// Package waiter watches a broadcast transaction until it is mined, via
// standard receipt polling or a private relay's status channel, and hands the
// outcome to the classifier. The waiter never declares failure because of its
// own inability to observe the network: on timeout or RPC trouble it simply
// stops and leaves the attempt PENDING for the retry cycle.
package waiter

import (
	"context"
	"errors"
	"strconv"
	"time"

	logger "log/slog"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/chain"
	"github.com/vietddude/txmonitor/internal/infra/relay"
	"github.com/vietddude/txmonitor/internal/tracking/classifier"
	"github.com/vietddude/txmonitor/internal/tracking/metrics"
)

// Cache is the idempotency marker store used by the waiter.
type Cache interface {
	SetMined(ctx context.Context, txID string) (bool, error)
	DeleteRetryCount(ctx context.Context, txID string, chainID uint64) error
}

// Outcome receives the classified result of a mined transaction.
type Outcome interface {
	Success(ctx context.Context, req classifier.Request, receipt *types.Receipt) error
	Failure(ctx context.Context, req classifier.Request, receipt *types.Receipt) error
}

// RelayStatus is the private relay's inclusion-status channel.
type RelayStatus interface {
	GetTxStatus(ctx context.Context, txHash string) (*relay.TxStatus, error)
}

// Config holds per-chain wait settings.
type Config struct {
	ChainID           uint64
	PollInterval      time.Duration
	WaitTimeout       time.Duration
	RelayPollInterval time.Duration
	RelayPollAttempts uint
	RelayMaxBlocks    uint64
}

func (c *Config) defaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = 3 * time.Minute
	}
	if c.RelayPollInterval == 0 {
		c.RelayPollInterval = 5 * time.Second
	}
	if c.RelayPollAttempts == 0 {
		c.RelayPollAttempts = 30
	}
	if c.RelayMaxBlocks == 0 {
		c.RelayMaxBlocks = 25
	}
}

// Request describes one broadcast to wait on.
type Request struct {
	TransactionID   string
	Hash            common.Hash
	Kind            domain.TransactionKind
	RawTransaction  []byte
	UsePrivateRelay bool
}

// Waiter waits for transaction confirmations on one chain.
type Waiter struct {
	gateway chain.Reader
	relay   RelayStatus // nil when the chain has no private relay
	cache   Cache
	outcome Outcome
	cfg     Config
	log     *logger.Logger
}

// New creates a Waiter. relayStatus may be nil when no private relay is
// configured; requests asking for the relay path then fall back to standard
// polling.
func New(
	gateway chain.Reader,
	relayStatus RelayStatus,
	cache Cache,
	outcome Outcome,
	cfg Config,
) *Waiter {
	cfg.defaults()
	return &Waiter{
		gateway: gateway,
		relay:   relayStatus,
		cache:   cache,
		outcome: outcome,
		cfg:     cfg,
		log:     logger.With("component", "waiter", "chain", cfg.ChainID),
	}
}

func (w *Waiter) chainLabel() string {
	return strconv.FormatUint(w.cfg.ChainID, 10)
}

// Wait blocks until the transaction reaches a terminal observation or the
// wait gives up. Intended to run on its own goroutine; it never returns an
// error and never panics outward.
func (w *Waiter) Wait(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("confirmation wait panicked", "tx_id", req.TransactionID, "panic", r)
		}
	}()

	if req.UsePrivateRelay && w.relay != nil {
		w.waitPrivate(ctx, req)
		return
	}
	w.waitStandard(ctx, req)
}

func (w *Waiter) waitStandard(ctx context.Context, req Request) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.gateway.TransactionReceipt(ctx, req.Hash)
		switch {
		case err == nil:
			w.dispatch(ctx, req, receipt, receipt.Status == types.ReceiptStatusSuccessful)
			return
		case errors.Is(err, chain.ErrNotFound):
			// still pending, keep polling
		default:
			w.log.Debug("receipt lookup failed",
				"tx_id", req.TransactionID, "hash", req.Hash, "error", err)
		}

		select {
		case <-ctx.Done():
			// Not an error: the retry cycle takes over from here.
			metrics.WaitTimeouts.WithLabelValues(w.chainLabel(), "standard").Inc()
			w.log.Info("confirmation wait timed out",
				"tx_id", req.TransactionID, "hash", req.Hash)
			return
		case <-ticker.C:
		}
	}
}

var errStillPending = errors.New("transaction still pending on relay")

func (w *Waiter) waitPrivate(ctx context.Context, req Request) {
	head, err := w.gateway.BlockNumber(ctx)
	if err != nil {
		w.log.Warn("failed to read head for relay wait",
			"tx_id", req.TransactionID, "error", err)
		return
	}
	maxBlock := head + w.cfg.RelayMaxBlocks

	var last *relay.TxStatus
	err = retry.Do(
		func() error {
			st, err := w.relay.GetTxStatus(ctx, req.Hash.Hex())
			if err != nil {
				return err
			}
			last = st

			switch st.Status {
			case relay.StatusIncluded, relay.StatusFailed, relay.StatusCancelled:
				return nil
			}
			if h, herr := w.gateway.BlockNumber(ctx); herr == nil && h > maxBlock {
				// Past the inclusion horizon; stop with the last known status.
				return nil
			}
			return errStillPending
		},
		retry.Context(ctx),
		retry.Attempts(w.cfg.RelayPollAttempts),
		retry.Delay(w.cfg.RelayPollInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(time.Minute),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		metrics.WaitTimeouts.WithLabelValues(w.chainLabel(), "relay").Inc()
		w.log.Info("relay status wait ended without resolution",
			"tx_id", req.TransactionID, "hash", req.Hash, "error", err)
		return
	}

	receipt := w.fetchReceipt(ctx, req.Hash)
	if last != nil && last.Status == relay.StatusIncluded {
		if receipt == nil {
			w.log.Warn("relay reported inclusion but receipt missing",
				"tx_id", req.TransactionID, "hash", req.Hash)
			return
		}
		w.dispatch(ctx, req, receipt, true)
		return
	}
	w.dispatch(ctx, req, receipt, false)
}

// fetchReceipt tries a few times; the receipt may lag the relay's own view.
func (w *Waiter) fetchReceipt(ctx context.Context, hash common.Hash) *types.Receipt {
	for i := 0; i < 5; i++ {
		receipt, err := w.gateway.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt
		}
		if !errors.Is(err, chain.ErrNotFound) {
			w.log.Debug("receipt fetch failed", "hash", hash, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

// dispatch clears the retry counter, sets the mined flag, and hands the
// receipt to the classifier. Classification is idempotent, so a duplicate
// dispatch for the same (id, hash) is harmless.
func (w *Waiter) dispatch(ctx context.Context, req Request, receipt *types.Receipt, success bool) {
	if err := w.cache.DeleteRetryCount(ctx, req.TransactionID, w.cfg.ChainID); err != nil {
		w.log.Warn("failed to clear retry counter", "tx_id", req.TransactionID, "error", err)
	}
	if _, err := w.cache.SetMined(ctx, req.TransactionID); err != nil {
		w.log.Warn("failed to set mined flag", "tx_id", req.TransactionID, "error", err)
	}

	creq := classifier.Request{
		TransactionID:  req.TransactionID,
		Hash:           req.Hash,
		Kind:           req.Kind,
		RawTransaction: req.RawTransaction,
	}

	var err error
	if success {
		err = w.outcome.Success(ctx, creq, receipt)
	} else {
		err = w.outcome.Failure(ctx, creq, receipt)
	}
	if err != nil {
		w.log.Error("outcome classification failed",
			"tx_id", req.TransactionID, "hash", req.Hash, "error", err)
	}
}
