package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/storage"
)

// AttemptRepo implements storage.AttemptRepository using PostgreSQL.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new PostgreSQL attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Save saves a transaction attempt. The (transaction_id, transaction_hash)
// pair is the conflict key so re-notifying the same broadcast is idempotent.
func (r *AttemptRepo) Save(ctx context.Context, a *domain.TransactionAttempt) error {
	query := `
		INSERT INTO transaction_attempts (
			transaction_id, transaction_hash, previous_transaction_hash,
			relayer_address, wallet_address, kind, chain_id, raw_transaction,
			status, resubmitted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (transaction_id, transaction_hash) DO UPDATE SET
			previous_transaction_hash = EXCLUDED.previous_transaction_hash,
			raw_transaction = EXCLUDED.raw_transaction,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		a.TransactionID, a.TransactionHash, a.PreviousTransactionHash,
		a.RelayerAddress, a.WalletAddress, string(a.Kind), a.ChainID,
		a.RawTransaction, string(a.Status), a.Resubmitted,
	)
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

// UpdateByTransactionID applies a patch to every attempt row of a transaction id.
func (r *AttemptRepo) UpdateByTransactionID(
	ctx context.Context,
	txID string,
	patch storage.AttemptUpdate,
) error {
	set, args := buildAttemptSet(patch)
	if len(set) == 0 {
		return nil
	}
	args = append(args, txID)
	query := fmt.Sprintf(
		"UPDATE transaction_attempts SET %s WHERE transaction_id = $%d",
		strings.Join(set, ", "), len(args),
	)
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update attempts: %w", err)
	}
	return nil
}

// UpdateByTransactionIDAndHash applies a patch to the row of one broadcast hash.
func (r *AttemptRepo) UpdateByTransactionIDAndHash(
	ctx context.Context,
	txID string,
	txHash string,
	patch storage.AttemptUpdate,
) error {
	set, args := buildAttemptSet(patch)
	if len(set) == 0 {
		return nil
	}
	args = append(args, txID, txHash)
	query := fmt.Sprintf(
		"UPDATE transaction_attempts SET %s WHERE transaction_id = $%d AND transaction_hash = $%d",
		strings.Join(set, ", "), len(args)-1, len(args),
	)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrAttemptNotFound
	}
	return nil
}

func buildAttemptSet(patch storage.AttemptUpdate) ([]string, []any) {
	var set []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Resubmitted != nil {
		add("resubmitted", *patch.Resubmitted)
	}
	if patch.FeeAmount != nil {
		add("fee_amount", *patch.FeeAmount)
	}
	if patch.FeeCurrency != nil {
		add("fee_currency", *patch.FeeCurrency)
	}
	if patch.FeeUSD != nil {
		add("fee_usd", *patch.FeeUSD)
	}
	if patch.Receipt != nil {
		add("receipt", patch.Receipt)
	}
	if patch.FrontRunHash != nil {
		add("front_run_hash", *patch.FrontRunHash)
	}
	if patch.FrontRunReceipt != nil {
		add("front_run_receipt", patch.FrontRunReceipt)
	}
	if len(set) > 0 {
		set = append(set, "updated_at = NOW()")
	}
	return set, args
}

type attemptRow struct {
	TransactionID   string    `db:"transaction_id"`
	TransactionHash string    `db:"transaction_hash"`
	PreviousHash    *string   `db:"previous_transaction_hash"`
	RelayerAddress  string    `db:"relayer_address"`
	WalletAddress   string    `db:"wallet_address"`
	Kind            string    `db:"kind"`
	ChainID         uint64    `db:"chain_id"`
	RawTransaction  []byte    `db:"raw_transaction"`
	Status          string    `db:"status"`
	Resubmitted     bool      `db:"resubmitted"`
	FeeAmount       *string   `db:"fee_amount"`
	FeeCurrency     *string   `db:"fee_currency"`
	FeeUSD          *float64  `db:"fee_usd"`
	Receipt         []byte    `db:"receipt"`
	FrontRunHash    *string   `db:"front_run_hash"`
	FrontRunReceipt []byte    `db:"front_run_receipt"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row *attemptRow) toDomain() *domain.TransactionAttempt {
	a := &domain.TransactionAttempt{
		TransactionID:   row.TransactionID,
		TransactionHash: row.TransactionHash,
		RelayerAddress:  row.RelayerAddress,
		WalletAddress:   row.WalletAddress,
		Kind:            domain.TransactionKind(row.Kind),
		ChainID:         row.ChainID,
		RawTransaction:  row.RawTransaction,
		Status:          domain.AttemptStatus(row.Status),
		Resubmitted:     row.Resubmitted,
		Receipt:         row.Receipt,
		FrontRunReceipt: row.FrontRunReceipt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.PreviousHash != nil {
		a.PreviousTransactionHash = *row.PreviousHash
	}
	if row.FeeAmount != nil {
		a.FeeAmount = *row.FeeAmount
	}
	if row.FeeCurrency != nil {
		a.FeeCurrency = *row.FeeCurrency
	}
	if row.FeeUSD != nil {
		a.FeeUSD = *row.FeeUSD
	}
	if row.FrontRunHash != nil {
		a.FrontRunHash = *row.FrontRunHash
	}
	return a
}

// GetByTransactionID retrieves all attempt rows of a transaction id, newest first.
func (r *AttemptRepo) GetByTransactionID(
	ctx context.Context,
	txID string,
) ([]*domain.TransactionAttempt, error) {
	query := `
		SELECT transaction_id, transaction_hash, previous_transaction_hash,
			relayer_address, wallet_address, kind, chain_id, raw_transaction,
			status, resubmitted, fee_amount, fee_currency, fee_usd, receipt,
			front_run_hash, front_run_receipt, created_at, updated_at
		FROM transaction_attempts
		WHERE transaction_id = $1
		ORDER BY created_at DESC
	`

	var rows []attemptRow
	if err := r.db.SelectContext(ctx, &rows, query, txID); err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}

	attempts := make([]*domain.TransactionAttempt, 0, len(rows))
	for i := range rows {
		attempts = append(attempts, rows[i].toDomain())
	}
	return attempts, nil
}

// DeleteTerminalOlderThan deletes terminal attempt rows past the retention
// threshold. PENDING rows always survive.
func (r *AttemptRepo) DeleteTerminalOlderThan(
	ctx context.Context,
	chainID uint64,
	threshold int64,
) error {
	query := `
		DELETE FROM transaction_attempts
		WHERE chain_id = $1 AND status <> 'PENDING' AND updated_at < to_timestamp($2)
	`
	_, err := r.db.ExecContext(ctx, query, chainID, threshold)
	return err
}
