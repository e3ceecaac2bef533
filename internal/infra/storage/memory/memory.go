package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/storage"
)

// MemoryStorage backs the in-memory repositories. Used in tests and when no
// database is configured.
type MemoryStorage struct {
	attempts map[string]*domain.TransactionAttempt // key: txID + "/" + hash
	userOps  map[string]*domain.UserOpRecord       // key: txID + "/" + opHash
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		attempts: make(map[string]*domain.TransactionAttempt),
		userOps:  make(map[string]*domain.UserOpRecord),
	}
}

func key(id, hash string) string {
	return id + "/" + hash
}

// -----------------------------------------------------------------------------
// Attempt Repository
// -----------------------------------------------------------------------------

type AttemptRepo struct {
	store *MemoryStorage
}

func NewAttemptRepo(store *MemoryStorage) *AttemptRepo {
	return &AttemptRepo{store: store}
}

func (r *AttemptRepo) Save(ctx context.Context, a *domain.TransactionAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cp := *a
	now := time.Now()
	if existing, ok := r.store.attempts[key(a.TransactionID, a.TransactionHash)]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.store.attempts[key(a.TransactionID, a.TransactionHash)] = &cp
	return nil
}

func (r *AttemptRepo) UpdateByTransactionID(
	ctx context.Context,
	txID string,
	patch storage.AttemptUpdate,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, a := range r.store.attempts {
		if a.TransactionID == txID {
			applyAttemptPatch(a, patch)
		}
	}
	return nil
}

func (r *AttemptRepo) UpdateByTransactionIDAndHash(
	ctx context.Context,
	txID string,
	txHash string,
	patch storage.AttemptUpdate,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	a, ok := r.store.attempts[key(txID, txHash)]
	if !ok {
		return storage.ErrAttemptNotFound
	}
	applyAttemptPatch(a, patch)
	return nil
}

func (r *AttemptRepo) GetByTransactionID(
	ctx context.Context,
	txID string,
) ([]*domain.TransactionAttempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.TransactionAttempt
	for _, a := range r.store.attempts {
		if a.TransactionID == txID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *AttemptRepo) DeleteTerminalOlderThan(
	ctx context.Context,
	chainID uint64,
	threshold int64,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for k, a := range r.store.attempts {
		if a.ChainID == chainID && a.Terminal() && a.UpdatedAt.Unix() < threshold {
			delete(r.store.attempts, k)
		}
	}
	return nil
}

func applyAttemptPatch(a *domain.TransactionAttempt, patch storage.AttemptUpdate) {
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Resubmitted != nil {
		a.Resubmitted = *patch.Resubmitted
	}
	if patch.FeeAmount != nil {
		a.FeeAmount = *patch.FeeAmount
	}
	if patch.FeeCurrency != nil {
		a.FeeCurrency = *patch.FeeCurrency
	}
	if patch.FeeUSD != nil {
		a.FeeUSD = *patch.FeeUSD
	}
	if patch.Receipt != nil {
		a.Receipt = patch.Receipt
	}
	if patch.FrontRunHash != nil {
		a.FrontRunHash = *patch.FrontRunHash
	}
	if patch.FrontRunReceipt != nil {
		a.FrontRunReceipt = patch.FrontRunReceipt
	}
	a.UpdatedAt = time.Now()
}

// -----------------------------------------------------------------------------
// UserOp Repository
// -----------------------------------------------------------------------------

type UserOpRepo struct {
	store *MemoryStorage
}

func NewUserOpRepo(store *MemoryStorage) *UserOpRepo {
	return &UserOpRepo{store: store}
}

func (r *UserOpRepo) Save(ctx context.Context, rec *domain.UserOpRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(rec.TransactionID, rec.UserOpHash)
	if _, ok := r.store.userOps[k]; ok {
		return nil
	}
	cp := *rec
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.store.userOps[k] = &cp
	return nil
}

func (r *UserOpRepo) GetByTransactionID(
	ctx context.Context,
	txID string,
) ([]*domain.UserOpRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.UserOpRecord
	for _, rec := range r.store.userOps {
		if rec.TransactionID == txID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *UserOpRepo) UpdateByTransactionIDAndOpHash(
	ctx context.Context,
	txID string,
	opHash string,
	patch storage.UserOpUpdate,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.userOps[key(txID, opHash)]
	if !ok {
		return storage.ErrUserOpNotFound
	}
	if patch.State != nil {
		rec.State = *patch.State
	}
	if patch.Success != nil {
		rec.Success = *patch.Success
	}
	if patch.ActualGasCost != nil {
		rec.ActualGasCost = *patch.ActualGasCost
	}
	if patch.ActualGasUsed != nil {
		rec.ActualGasUsed = *patch.ActualGasUsed
	}
	if patch.RevertReason != nil {
		rec.RevertReason = *patch.RevertReason
	}
	if patch.Logs != nil {
		rec.Logs = patch.Logs
	}
	rec.UpdatedAt = time.Now()
	return nil
}
