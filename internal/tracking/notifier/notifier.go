// Package notifier is the entry point invoked once per broadcast attempt. It
// records the attempt, enqueues a retry check, and starts the confirmation
// wait in the background. Callers get no synchronous success/failure signal
// for the transaction itself; outcomes are observed only through the attempt
// store's eventual state.
package notifier

import (
	"context"
	"strconv"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/storage"
	"github.com/vietddude/txmonitor/internal/tracking/metrics"
	"github.com/vietddude/txmonitor/internal/tracking/waiter"
)

// Queue publishes retry-check messages.
type Queue interface {
	Publish(ctx context.Context, msg *domain.RetryMessage) error
}

// ConfirmationWaiter runs the asynchronous confirmation wait.
type ConfirmationWaiter interface {
	Wait(ctx context.Context, req waiter.Request)
}

// Notifier records broadcast attempts for one chain.
type Notifier struct {
	attempts  storage.AttemptRepository
	userOps   storage.UserOpRepository
	queue     Queue
	waiter    ConfirmationWaiter
	chainID   uint64
	relayPool map[string]bool // pools submitting through the private relay
	log       *logger.Logger
}

// New creates a Notifier. relayPools names the relayer pools whose
// transactions are confirmed through the private relay status channel.
func New(
	attempts storage.AttemptRepository,
	userOps storage.UserOpRepository,
	queue Queue,
	confirmWaiter ConfirmationWaiter,
	chainID uint64,
	relayPools []string,
) *Notifier {
	pools := make(map[string]bool, len(relayPools))
	for _, p := range relayPools {
		pools[p] = true
	}
	return &Notifier{
		attempts:  attempts,
		userOps:   userOps,
		queue:     queue,
		waiter:    confirmWaiter,
		chainID:   chainID,
		relayPool: pools,
		log:       logger.With("component", "notifier", "chain", chainID),
	}
}

// Notify records one broadcast attempt and starts monitoring it. Returns
// whether monitoring was started. Never propagates an error to the caller:
// an uncaught error here would silently stop monitoring a real on-chain
// transaction.
func (n *Notifier) Notify(ctx context.Context, req domain.NotifyRequest) bool {
	if req.TransactionID == "" {
		n.log.Error("notify called without transaction id")
		return false
	}

	log := n.log.With("tx_id", req.TransactionID, "hash", req.TransactionHash)

	// No hash means the transaction was never broadcast (e.g. dropped before
	// a hash was assigned). Terminal drop, nothing to monitor.
	if req.TransactionHash == "" {
		n.drop(ctx, req, log)
		return false
	}

	if req.PreviousTransactionHash != "" {
		// Replacement: the prior row must be DROPPED before the new PENDING
		// row exists and before the retry message is published, so a consumer
		// never observes the id with zero PENDING rows.
		if err := n.markDropped(ctx, req.TransactionID, req.PreviousTransactionHash); err != nil {
			log.Warn("failed to drop replaced attempt",
				"previous_hash", req.PreviousTransactionHash, "error", err)
		}
	}

	if err := n.attempts.Save(ctx, &domain.TransactionAttempt{
		TransactionID:           req.TransactionID,
		TransactionHash:         req.TransactionHash,
		PreviousTransactionHash: req.PreviousTransactionHash,
		RelayerAddress:          req.RelayerAddress,
		WalletAddress:           req.WalletAddress,
		Kind:                    req.Kind,
		ChainID:                 n.chainID,
		RawTransaction:          req.RawTransaction,
		Status:                  domain.AttemptPending,
	}); err != nil {
		log.Error("failed to save attempt", "error", err)
		return false
	}

	msg := &domain.RetryMessage{
		MessageID:          uuid.NewString(),
		RelayerAddress:     req.RelayerAddress,
		TransactionType:    req.Kind,
		TransactionHash:    req.TransactionHash,
		TransactionID:      req.TransactionID,
		RawTransaction:     req.RawTransaction,
		WalletAddress:      req.WalletAddress,
		MetaData:           req.MetaData,
		RelayerManagerName: req.RelayerManagerName,
		Timestamp:          time.Now().UnixMilli(),
	}
	if err := n.queue.Publish(ctx, msg); err != nil {
		// The background wait still covers this attempt; the next replacement
		// will enqueue again.
		log.Error("failed to publish retry message", "error", err)
	}

	wreq := waiter.Request{
		TransactionID:   req.TransactionID,
		Hash:            common.HexToHash(req.TransactionHash),
		Kind:            req.Kind,
		RawTransaction:  req.RawTransaction,
		UsePrivateRelay: n.relayPool[req.RelayerManagerName],
	}
	// Fire and forget: the wait outlives the caller's request context.
	go n.waiter.Wait(context.WithoutCancel(ctx), wreq)

	metrics.AttemptsTracked.WithLabelValues(
		strconv.FormatUint(n.chainID, 10), string(req.Kind),
	).Inc()
	return true
}

func (n *Notifier) drop(ctx context.Context, req domain.NotifyRequest, log *logger.Logger) {
	if req.Kind == domain.KindBundler {
		recs, err := n.userOps.GetByTransactionID(ctx, req.TransactionID)
		if err != nil {
			log.Warn("failed to load user ops for drop", "error", err)
		}
		dropped := domain.UserOpDropped
		for _, rec := range recs {
			if err := n.userOps.UpdateByTransactionIDAndOpHash(
				ctx, req.TransactionID, rec.UserOpHash,
				storage.UserOpUpdate{State: &dropped},
			); err != nil {
				log.Warn("failed to drop user op", "op_hash", rec.UserOpHash, "error", err)
			}
		}
	}

	status := domain.AttemptDropped
	resubmitted := true
	if err := n.attempts.UpdateByTransactionID(ctx, req.TransactionID, storage.AttemptUpdate{
		Status:      &status,
		Resubmitted: &resubmitted,
	}); err != nil {
		log.Warn("failed to drop attempt", "error", err)
	}

	metrics.AttemptsDroppedNoHash.WithLabelValues(strconv.FormatUint(n.chainID, 10)).Inc()
	log.Info("attempt dropped before broadcast")
}

func (n *Notifier) markDropped(ctx context.Context, txID, hash string) error {
	status := domain.AttemptDropped
	resubmitted := true
	return n.attempts.UpdateByTransactionIDAndHash(ctx, txID, hash, storage.AttemptUpdate{
		Status:      &status,
		Resubmitted: &resubmitted,
	})
}
