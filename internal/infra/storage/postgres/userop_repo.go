package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/storage"
)

// UserOpRepo implements storage.UserOpRepository using PostgreSQL.
type UserOpRepo struct {
	db *DB
}

// NewUserOpRepo creates a new PostgreSQL user-op repository.
func NewUserOpRepo(db *DB) *UserOpRepo {
	return &UserOpRepo{db: db}
}

// Save saves a user-op record.
func (r *UserOpRepo) Save(ctx context.Context, rec *domain.UserOpRecord) error {
	query := `
		INSERT INTO user_op_records (
			user_op_hash, entry_point, entry_point_version, transaction_id,
			state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (transaction_id, user_op_hash) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.UserOpHash, rec.EntryPoint, string(rec.EntryPointVersion),
		rec.TransactionID, string(rec.State),
	)
	if err != nil {
		return fmt.Errorf("failed to save user op: %w", err)
	}
	return nil
}

type userOpRow struct {
	UserOpHash        string    `db:"user_op_hash"`
	EntryPoint        string    `db:"entry_point"`
	EntryPointVersion string    `db:"entry_point_version"`
	TransactionID     string    `db:"transaction_id"`
	State             string    `db:"state"`
	Success           bool      `db:"success"`
	ActualGasCost     *string   `db:"actual_gas_cost"`
	ActualGasUsed     *string   `db:"actual_gas_used"`
	RevertReason      *string   `db:"revert_reason"`
	Logs              []byte    `db:"logs"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (row *userOpRow) toDomain() *domain.UserOpRecord {
	rec := &domain.UserOpRecord{
		UserOpHash:        row.UserOpHash,
		EntryPoint:        row.EntryPoint,
		EntryPointVersion: domain.EntryPointVersion(row.EntryPointVersion),
		TransactionID:     row.TransactionID,
		State:             domain.UserOpState(row.State),
		Success:           row.Success,
		Logs:              row.Logs,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.ActualGasCost != nil {
		rec.ActualGasCost = *row.ActualGasCost
	}
	if row.ActualGasUsed != nil {
		rec.ActualGasUsed = *row.ActualGasUsed
	}
	if row.RevertReason != nil {
		rec.RevertReason = *row.RevertReason
	}
	return rec
}

// GetByTransactionID retrieves all user-op records of a transaction id.
func (r *UserOpRepo) GetByTransactionID(
	ctx context.Context,
	txID string,
) ([]*domain.UserOpRecord, error) {
	query := `
		SELECT user_op_hash, entry_point, entry_point_version, transaction_id,
			state, success, actual_gas_cost, actual_gas_used, revert_reason,
			logs, created_at, updated_at
		FROM user_op_records
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`

	var rows []userOpRow
	if err := r.db.SelectContext(ctx, &rows, query, txID); err != nil {
		return nil, fmt.Errorf("failed to get user ops: %w", err)
	}

	recs := make([]*domain.UserOpRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].toDomain())
	}
	return recs, nil
}

// UpdateByTransactionIDAndOpHash applies a patch to one record.
func (r *UserOpRepo) UpdateByTransactionIDAndOpHash(
	ctx context.Context,
	txID string,
	opHash string,
	patch storage.UserOpUpdate,
) error {
	var set []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.State != nil {
		add("state", string(*patch.State))
	}
	if patch.Success != nil {
		add("success", *patch.Success)
	}
	if patch.ActualGasCost != nil {
		add("actual_gas_cost", *patch.ActualGasCost)
	}
	if patch.ActualGasUsed != nil {
		add("actual_gas_used", *patch.ActualGasUsed)
	}
	if patch.RevertReason != nil {
		add("revert_reason", *patch.RevertReason)
	}
	if patch.Logs != nil {
		add("logs", patch.Logs)
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = NOW()")

	args = append(args, txID, opHash)
	query := fmt.Sprintf(
		"UPDATE user_op_records SET %s WHERE transaction_id = $%d AND user_op_hash = $%d",
		strings.Join(set, ", "), len(args)-1, len(args),
	)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user op: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrUserOpNotFound
	}
	return nil
}
