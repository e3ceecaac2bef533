package storage

import (
	"context"
	"errors"

	"github.com/vietddude/txmonitor/internal/core/domain"
)

var (
	// ErrAttemptNotFound is returned when no attempt row matches the update key
	ErrAttemptNotFound = errors.New("transaction attempt not found")

	// ErrUserOpNotFound is returned when no user-op record matches the update key
	ErrUserOpNotFound = errors.New("user operation record not found")
)

// AttemptUpdate is a partial update of a TransactionAttempt. Nil fields are
// left untouched.
type AttemptUpdate struct {
	Status          *domain.AttemptStatus
	Resubmitted     *bool
	FeeAmount       *string
	FeeCurrency     *string
	FeeUSD          *float64
	Receipt         []byte
	FrontRunHash    *string
	FrontRunReceipt []byte
}

// UserOpUpdate is a partial update of a UserOpRecord. Nil fields are left
// untouched.
type UserOpUpdate struct {
	State         *domain.UserOpState
	Success       *bool
	ActualGasCost *string
	ActualGasUsed *string
	RevertReason  *string
	Logs          []byte
}

// AttemptRepository handles transaction attempt storage operations
type AttemptRepository interface {
	// Save inserts an attempt row, or refreshes it when the
	// (transaction id, hash) pair already exists
	Save(ctx context.Context, attempt *domain.TransactionAttempt) error

	// UpdateByTransactionID applies a patch to every row of a transaction id
	UpdateByTransactionID(ctx context.Context, txID string, patch AttemptUpdate) error

	// UpdateByTransactionIDAndHash applies a patch to the row for one hash
	UpdateByTransactionIDAndHash(
		ctx context.Context,
		txID string,
		txHash string,
		patch AttemptUpdate,
	) error

	// GetByTransactionID retrieves all attempt rows of a transaction id,
	// newest first
	GetByTransactionID(ctx context.Context, txID string) ([]*domain.TransactionAttempt, error)

	// DeleteTerminalOlderThan deletes terminal rows past the retention
	// threshold (unix seconds). PENDING rows are never deleted.
	DeleteTerminalOlderThan(ctx context.Context, chainID uint64, threshold int64) error
}

// UserOpRepository handles bundled user-operation storage operations
type UserOpRepository interface {
	// Save inserts a user-op record
	Save(ctx context.Context, rec *domain.UserOpRecord) error

	// GetByTransactionID retrieves all user-op records of a transaction id
	GetByTransactionID(ctx context.Context, txID string) ([]*domain.UserOpRecord, error)

	// UpdateByTransactionIDAndOpHash applies a patch to one record
	UpdateByTransactionIDAndOpHash(
		ctx context.Context,
		txID string,
		opHash string,
		patch UserOpUpdate,
	) error
}
