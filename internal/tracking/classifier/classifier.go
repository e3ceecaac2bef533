// Package classifier turns a mined receipt into durable, correlated state:
// per-user-op outcomes, fee valuation, front-run detection, and the terminal
// status of the owning transaction attempt. All writes are keyed by
// (transaction id, transaction hash) so re-running a classification with the
// same inputs produces the same stored state.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	logger "log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/chain"
	"github.com/vietddude/txmonitor/internal/infra/chain/entrypoint"
	"github.com/vietddude/txmonitor/internal/infra/storage"
	"github.com/vietddude/txmonitor/internal/tracking/metrics"
	"github.com/vietddude/txmonitor/internal/tracking/price"
)

const defaultLogWindow = 1000

// Config holds per-chain classification settings.
type Config struct {
	ChainID      uint64
	NativeSymbol string
	// LogWindow is how many recent blocks the independent event query scans.
	LogWindow uint64
	// BlockOffset corrects the window start on chains whose log indexing lags
	// the head. Negative values widen the window.
	BlockOffset int64
}

// Request identifies the attempt being classified.
type Request struct {
	TransactionID  string
	Hash           common.Hash
	Kind           domain.TransactionKind
	RawTransaction []byte
}

// Classifier writes terminal outcomes for confirmed or failed attempts.
type Classifier struct {
	attempts storage.AttemptRepository
	userOps  storage.UserOpRepository
	gateway  chain.Reader
	price    *price.Service
	cfg      Config
	log      *logger.Logger
}

// New creates a Classifier for one chain.
func New(
	attempts storage.AttemptRepository,
	userOps storage.UserOpRepository,
	gateway chain.Reader,
	priceSvc *price.Service,
	cfg Config,
) *Classifier {
	if cfg.LogWindow == 0 {
		cfg.LogWindow = defaultLogWindow
	}
	return &Classifier{
		attempts: attempts,
		userOps:  userOps,
		gateway:  gateway,
		price:    priceSvc,
		cfg:      cfg,
		log:      logger.With("component", "classifier", "chain", cfg.ChainID),
	}
}

func (c *Classifier) chainLabel() string {
	return strconv.FormatUint(c.cfg.ChainID, 10)
}

// Success records a confirmed attempt: per-user-op event outcomes for bundler
// attempts, the fee valuation, and the SUCCESS status.
func (c *Classifier) Success(ctx context.Context, req Request, receipt *types.Receipt) error {
	if req.Kind == domain.KindBundler {
		if err := c.confirmUserOps(ctx, req, receipt); err != nil {
			// User-op correlation is degraded output, never a reason to skip
			// the terminal attempt write.
			c.log.Warn("user op confirmation incomplete",
				"tx_id", req.TransactionID, "error", err)
		}
	}

	amount, currency, usd := c.fee(ctx, receipt)
	receiptJSON, _ := json.Marshal(receipt)

	status := domain.AttemptSuccess
	patch := storage.AttemptUpdate{
		Status:      &status,
		FeeAmount:   &amount,
		FeeCurrency: &currency,
		FeeUSD:      &usd,
		Receipt:     receiptJSON,
	}
	if err := c.attempts.UpdateByTransactionIDAndHash(
		ctx, req.TransactionID, req.Hash.Hex(), patch,
	); err != nil {
		return fmt.Errorf("failed to finalize attempt: %w", err)
	}

	metrics.ClassificationsTotal.WithLabelValues(c.chainLabel(), "success").Inc()
	return nil
}

func (c *Classifier) confirmUserOps(
	ctx context.Context,
	req Request,
	receipt *types.Receipt,
) error {
	recs, err := c.userOps.GetByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to load user ops: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range recs {
		g.Go(func() error {
			return c.confirmUserOp(gctx, req.TransactionID, rec, receipt)
		})
	}
	return g.Wait()
}

// confirmUserOp locates the record's UserOperationEvent inside the receipt's
// logs and persists the decoded outcome. A missing or undecodable event still
// reaches CONFIRMED, with empty outcome fields.
func (c *Classifier) confirmUserOp(
	ctx context.Context,
	txID string,
	rec *domain.UserOpRecord,
	receipt *types.Receipt,
) error {
	confirmed := domain.UserOpConfirmed
	patch := storage.UserOpUpdate{State: &confirmed}

	if lg := findUserOpEventLog(receipt, rec); lg != nil {
		if ev, err := entrypoint.DecodeUserOpEvent(rec.EntryPointVersion, *lg); err == nil {
			cost := ev.ActualGasCost.String()
			used := ev.ActualGasUsed.String()
			logJSON, _ := json.Marshal(lg)
			patch.Success = &ev.Success
			patch.ActualGasCost = &cost
			patch.ActualGasUsed = &used
			patch.Logs = logJSON
			if !ev.Success {
				reason := revertReasonFromReceipt(receipt, rec)
				patch.RevertReason = &reason
			}
		} else {
			c.log.Warn("failed to decode user op event",
				"tx_id", txID, "op_hash", rec.UserOpHash, "error", err)
		}
	} else {
		c.log.Warn("user op event missing from receipt",
			"tx_id", txID, "op_hash", rec.UserOpHash)
	}

	return c.userOps.UpdateByTransactionIDAndOpHash(ctx, txID, rec.UserOpHash, patch)
}

// revertReasonFromReceipt resolves an unsuccessful user op's reason from the
// companion UserOperationRevertReason log, when the entry point emitted one.
func revertReasonFromReceipt(receipt *types.Receipt, rec *domain.UserOpRecord) string {
	if receipt == nil {
		return entrypoint.GenericRevertMessage
	}
	eventID := entrypoint.RevertReasonEventID(rec.EntryPointVersion)
	opHash := common.HexToHash(rec.UserOpHash)
	for _, lg := range receipt.Logs {
		if len(lg.Topics) < 2 || lg.Topics[0] != eventID || lg.Topics[1] != opHash {
			continue
		}
		if payload, err := entrypoint.DecodeRevertReasonEvent(rec.EntryPointVersion, *lg); err == nil {
			return entrypoint.DecodeRevert(rec.EntryPointVersion, payload)
		}
	}
	return entrypoint.GenericRevertMessage
}

func findUserOpEventLog(receipt *types.Receipt, rec *domain.UserOpRecord) *types.Log {
	if receipt == nil {
		return nil
	}
	eventID := entrypoint.EventID(rec.EntryPointVersion)
	opHash := common.HexToHash(rec.UserOpHash)
	for _, lg := range receipt.Logs {
		if len(lg.Topics) >= 2 && lg.Topics[0] == eventID && lg.Topics[1] == opHash {
			return lg
		}
	}
	return nil
}

// Failure records a reverted or unobservable attempt. For bundler attempts it
// first checks whether a different transaction carried each user op to chain
// (a front-run); if so the record is confirmed from that transaction's receipt
// and the attempt keeps the front-run linkage.
func (c *Classifier) Failure(ctx context.Context, req Request, receipt *types.Receipt) error {
	receiptJSON, _ := json.Marshal(receipt)

	if req.Kind != domain.KindBundler {
		return c.finalizeFailed(ctx, req, receipt != nil, storage.AttemptUpdate{
			Receipt: receiptJSON,
		})
	}

	recs, err := c.userOps.GetByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to load user ops: %w", err)
	}

	var frontRunHash common.Hash
	frontRun := false

	for _, rec := range recs {
		lg, err := c.findAuthoritativeEvent(ctx, rec)
		if err != nil {
			c.log.Warn("authoritative event query failed",
				"tx_id", req.TransactionID, "op_hash", rec.UserOpHash, "error", err)
		}

		if lg != nil && (receipt == nil || lg.TxHash != receipt.TxHash) {
			if err := c.rewriteFrontRun(ctx, req.TransactionID, rec, lg); err != nil {
				c.log.Warn("front-run rewrite failed",
					"tx_id", req.TransactionID, "op_hash", rec.UserOpHash, "error", err)
				continue
			}
			frontRun = true
			frontRunHash = lg.TxHash
			continue
		}

		failed := domain.UserOpFailed
		reason := c.revertReason(ctx, rec.EntryPointVersion, req.RawTransaction)
		if err := c.userOps.UpdateByTransactionIDAndOpHash(
			ctx, req.TransactionID, rec.UserOpHash,
			storage.UserOpUpdate{State: &failed, RevertReason: &reason},
		); err != nil {
			c.log.Warn("failed to record user op failure",
				"tx_id", req.TransactionID, "op_hash", rec.UserOpHash, "error", err)
		}
	}

	patch := storage.AttemptUpdate{Receipt: receiptJSON}
	if frontRun {
		frHex := frontRunHash.Hex()
		patch.FrontRunHash = &frHex
		if fr, err := c.gateway.TransactionReceipt(ctx, frontRunHash); err == nil {
			patch.FrontRunReceipt, _ = json.Marshal(fr)
		}
		metrics.FrontRunsDetected.WithLabelValues(c.chainLabel()).Inc()
		return c.finalizeFailed(ctx, req, true, patch)
	}
	return c.finalizeFailed(ctx, req, receipt != nil, patch)
}

// finalizeFailed writes the terminal attempt status: FAILED when a receipt
// (or front-run evidence) exists, DROPPED when the chain shows nothing.
func (c *Classifier) finalizeFailed(
	ctx context.Context,
	req Request,
	observed bool,
	patch storage.AttemptUpdate,
) error {
	status := domain.AttemptDropped
	outcome := "dropped"
	if observed {
		status = domain.AttemptFailed
		outcome = "failed"
	}
	patch.Status = &status

	if err := c.attempts.UpdateByTransactionIDAndHash(
		ctx, req.TransactionID, req.Hash.Hex(), patch,
	); err != nil {
		return fmt.Errorf("failed to finalize attempt: %w", err)
	}

	metrics.ClassificationsTotal.WithLabelValues(c.chainLabel(), outcome).Inc()
	return nil
}

// rewriteFrontRun confirms a user-op record from the front-running
// transaction's receipt instead of the tracked attempt's.
func (c *Classifier) rewriteFrontRun(
	ctx context.Context,
	txID string,
	rec *domain.UserOpRecord,
	lg *types.Log,
) error {
	confirmed := domain.UserOpConfirmed
	patch := storage.UserOpUpdate{State: &confirmed}

	if ev, err := entrypoint.DecodeUserOpEvent(rec.EntryPointVersion, *lg); err == nil {
		cost := ev.ActualGasCost.String()
		used := ev.ActualGasUsed.String()
		logJSON, _ := json.Marshal(lg)
		patch.Success = &ev.Success
		patch.ActualGasCost = &cost
		patch.ActualGasUsed = &used
		patch.Logs = logJSON
	}

	return c.userOps.UpdateByTransactionIDAndOpHash(ctx, txID, rec.UserOpHash, patch)
}

// findAuthoritativeEvent independently queries the event index for the
// record's user-op hash over the recent block window. Returns nil when the
// chain shows no event for the hash.
func (c *Classifier) findAuthoritativeEvent(
	ctx context.Context,
	rec *domain.UserOpRecord,
) (*types.Log, error) {
	head, err := c.gateway.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get head: %w", err)
	}

	from := int64(head) - int64(c.cfg.LogWindow) + c.cfg.BlockOffset
	if from < 0 {
		from = 0
	}

	logs, err := c.gateway.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{common.HexToAddress(rec.EntryPoint)},
		Topics: [][]common.Hash{
			{entrypoint.EventID(rec.EntryPointVersion)},
			{common.HexToHash(rec.UserOpHash)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[len(logs)-1], nil
}

// revertReason replays the raw transaction as a read-only call against
// current state and decodes the revert payload. Always returns a message;
// undecodable payloads fall back to a generic one.
func (c *Classifier) revertReason(
	ctx context.Context,
	v domain.EntryPointVersion,
	raw []byte,
) string {
	if len(raw) == 0 {
		return entrypoint.GenericRevertMessage
	}

	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return entrypoint.GenericRevertMessage
	}

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(c.cfg.ChainID))
	from, err := types.Sender(signer, &tx)
	if err != nil {
		from = common.Address{}
	}

	_, err = c.gateway.CallContract(ctx, ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}, nil)
	if err == nil {
		// State moved on; the call no longer reverts.
		return entrypoint.GenericRevertMessage
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if hexStr, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(hexStr); derr == nil {
				return entrypoint.DecodeRevert(v, data)
			}
		}
	}
	return entrypoint.GenericRevertMessage
}

func (c *Classifier) fee(
	ctx context.Context,
	receipt *types.Receipt,
) (amount, currency string, usd float64) {
	feeWei := new(big.Int)
	if receipt != nil && receipt.EffectiveGasPrice != nil {
		feeWei.Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	}
	return c.price.ConvertFee(ctx, c.cfg.ChainID, feeWei, c.cfg.NativeSymbol)
}
