package classifier

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/chain"
	"github.com/vietddude/txmonitor/internal/infra/chain/entrypoint"
	"github.com/vietddude/txmonitor/internal/infra/storage/memory"
	"github.com/vietddude/txmonitor/internal/tracking/price"
)

type fakeReader struct {
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	head     uint64
	callErr  error
}

func (f *fakeReader) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return nil, chain.ErrNotFound
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeReader) CallContract(ctx context.Context, msg ethereum.CallMsg, bn *big.Int) ([]byte, error) {
	return nil, f.callErr
}

type fakeTable struct {
	prices map[uint64]float64
}

func (f *fakeTable) GetPriceTable(ctx context.Context) (map[uint64]float64, error) {
	return f.prices, nil
}

const opHashHex = "0x1111111111111111111111111111111111111111111111111111111111111111"

func userOpEventLog(t *testing.T, txHash common.Hash, success bool) types.Log {
	t.Helper()
	data, err := entrypoint.ABI(domain.EntryPointV06).
		Events["UserOperationEvent"].Inputs.NonIndexed().
		Pack(big.NewInt(7), success, big.NewInt(420000), big.NewInt(21000))
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}
	sender := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	paymaster := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	return types.Log{
		Topics: []common.Hash{
			entrypoint.EventID(domain.EntryPointV06),
			common.HexToHash(opHashHex),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(paymaster.Bytes()),
		},
		Data:   data,
		TxHash: txHash,
	}
}

func newTestClassifier(
	t *testing.T,
	reader *fakeReader,
) (*Classifier, *memory.MemoryStorage) {
	t.Helper()
	store := memory.NewMemoryStorage()
	priceSvc := price.NewService(&fakeTable{prices: map[uint64]float64{1: 2000}})
	c := New(
		memory.NewAttemptRepo(store),
		memory.NewUserOpRepo(store),
		reader,
		priceSvc,
		Config{ChainID: 1, NativeSymbol: "ETH"},
	)
	return c, store
}

func seedAttempt(t *testing.T, store *memory.MemoryStorage, txID string, hash common.Hash, kind domain.TransactionKind) {
	t.Helper()
	err := memory.NewAttemptRepo(store).Save(context.Background(), &domain.TransactionAttempt{
		TransactionID:   txID,
		TransactionHash: hash.Hex(),
		Kind:            kind,
		ChainID:         1,
		Status:          domain.AttemptPending,
	})
	if err != nil {
		t.Fatalf("failed to seed attempt: %v", err)
	}
}

func seedUserOp(t *testing.T, store *memory.MemoryStorage, txID string) {
	t.Helper()
	err := memory.NewUserOpRepo(store).Save(context.Background(), &domain.UserOpRecord{
		TransactionID:     txID,
		UserOpHash:        opHashHex,
		EntryPoint:        "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
		EntryPointVersion: domain.EntryPointV06,
		State:             domain.UserOpPendingProcessing,
	})
	if err != nil {
		t.Fatalf("failed to seed user op: %v", err)
	}
}

func TestSuccess_FundingAttempt(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc1")
	receipt := &types.Receipt{
		TxHash:            hash,
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1e9),
	}

	c, store := newTestClassifier(t, &fakeReader{})
	seedAttempt(t, store, "tx-1", hash, domain.KindFunding)

	if err := c.Success(ctx, Request{TransactionID: "tx-1", Hash: hash, Kind: domain.KindFunding}, receipt); err != nil {
		t.Fatalf("Success failed: %v", err)
	}

	attempts, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-1")
	a := attempts[0]
	if a.Status != domain.AttemptSuccess {
		t.Errorf("expected SUCCESS, got %s", a.Status)
	}
	// 21000 * 1 gwei = 21000000000000 wei, at $2000/ETH
	if a.FeeAmount != "21000000000000" || a.FeeCurrency != "ETH" {
		t.Errorf("unexpected fee: %s %s", a.FeeAmount, a.FeeCurrency)
	}
	if a.FeeUSD < 0.041 || a.FeeUSD > 0.043 {
		t.Errorf("unexpected fee usd: %f", a.FeeUSD)
	}
	if len(a.Receipt) == 0 {
		t.Error("expected stored receipt")
	}

	// Re-classifying the same (id, hash) must not change the stored state.
	if err := c.Success(ctx, Request{TransactionID: "tx-1", Hash: hash, Kind: domain.KindFunding}, receipt); err != nil {
		t.Fatalf("second Success failed: %v", err)
	}
	again, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-1")
	if len(again) != 1 || again[0].FeeAmount != a.FeeAmount || again[0].Status != a.Status {
		t.Error("re-classification changed stored state")
	}
}

func TestSuccess_BundlerConfirmsUserOps(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc2")
	lg := userOpEventLog(t, hash, true)
	receipt := &types.Receipt{
		TxHash:            hash,
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           100000,
		EffectiveGasPrice: big.NewInt(1e9),
		Logs:              []*types.Log{&lg},
	}

	c, store := newTestClassifier(t, &fakeReader{})
	seedAttempt(t, store, "tx-2", hash, domain.KindBundler)
	seedUserOp(t, store, "tx-2")

	req := Request{TransactionID: "tx-2", Hash: hash, Kind: domain.KindBundler}
	if err := c.Success(ctx, req, receipt); err != nil {
		t.Fatalf("Success failed: %v", err)
	}

	recs, _ := memory.NewUserOpRepo(store).GetByTransactionID(ctx, "tx-2")
	rec := recs[0]
	if rec.State != domain.UserOpConfirmed {
		t.Errorf("expected CONFIRMED, got %s", rec.State)
	}
	if !rec.Success {
		t.Error("expected user op success flag")
	}
	if rec.ActualGasCost != "420000" || rec.ActualGasUsed != "21000" {
		t.Errorf("unexpected gas fields: %s/%s", rec.ActualGasCost, rec.ActualGasUsed)
	}
	if len(rec.Logs) == 0 {
		t.Error("expected stored event log")
	}
}

func TestFailure_NonBundler(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc3")

	c, store := newTestClassifier(t, &fakeReader{})
	seedAttempt(t, store, "tx-3", hash, domain.KindFunding)

	// Receipt present: the revert was observed on chain.
	receipt := &types.Receipt{TxHash: hash, Status: types.ReceiptStatusFailed}
	req := Request{TransactionID: "tx-3", Hash: hash, Kind: domain.KindFunding}
	if err := c.Failure(ctx, req, receipt); err != nil {
		t.Fatalf("Failure failed: %v", err)
	}
	attempts, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-3")
	if attempts[0].Status != domain.AttemptFailed {
		t.Errorf("expected FAILED, got %s", attempts[0].Status)
	}
}

func TestFailure_NonBundlerNoReceipt(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc4")

	c, store := newTestClassifier(t, &fakeReader{})
	seedAttempt(t, store, "tx-4", hash, domain.KindFunding)

	req := Request{TransactionID: "tx-4", Hash: hash, Kind: domain.KindFunding}
	if err := c.Failure(ctx, req, nil); err != nil {
		t.Fatalf("Failure failed: %v", err)
	}
	attempts, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-4")
	if attempts[0].Status != domain.AttemptDropped {
		t.Errorf("expected DROPPED, got %s", attempts[0].Status)
	}
}

func TestFailure_BundlerFrontRun(t *testing.T) {
	ctx := context.Background()
	ourHash := common.HexToHash("0xabc5")
	frontHash := common.HexToHash("0xdef5")

	frontLog := userOpEventLog(t, frontHash, true)
	reader := &fakeReader{
		head: 5000,
		logs: []types.Log{frontLog},
		receipts: map[common.Hash]*types.Receipt{
			frontHash: {TxHash: frontHash, Status: types.ReceiptStatusSuccessful},
		},
	}

	c, store := newTestClassifier(t, reader)
	seedAttempt(t, store, "tx-5", ourHash, domain.KindBundler)
	seedUserOp(t, store, "tx-5")

	req := Request{TransactionID: "tx-5", Hash: ourHash, Kind: domain.KindBundler}
	if err := c.Failure(ctx, req, nil); err != nil {
		t.Fatalf("Failure failed: %v", err)
	}

	recs, _ := memory.NewUserOpRepo(store).GetByTransactionID(ctx, "tx-5")
	if recs[0].State != domain.UserOpConfirmed {
		t.Errorf("expected CONFIRMED from front-run event, got %s", recs[0].State)
	}
	if !recs[0].Success {
		t.Error("expected success flag from front-run event")
	}

	attempts, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-5")
	a := attempts[0]
	if a.Status != domain.AttemptFailed {
		t.Errorf("expected FAILED attempt, got %s", a.Status)
	}
	if a.FrontRunHash != frontHash.Hex() {
		t.Errorf("expected front-run hash %s, got %s", frontHash.Hex(), a.FrontRunHash)
	}
	if len(a.FrontRunReceipt) == 0 {
		t.Error("expected stored front-run receipt")
	}
}

func TestFailure_BundlerNoEventAnywhere(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc6")

	c, store := newTestClassifier(t, &fakeReader{head: 5000})
	seedAttempt(t, store, "tx-6", hash, domain.KindBundler)
	seedUserOp(t, store, "tx-6")

	req := Request{TransactionID: "tx-6", Hash: hash, Kind: domain.KindBundler}
	if err := c.Failure(ctx, req, nil); err != nil {
		t.Fatalf("Failure failed: %v", err)
	}

	recs, _ := memory.NewUserOpRepo(store).GetByTransactionID(ctx, "tx-6")
	if recs[0].State != domain.UserOpFailed {
		t.Errorf("expected FAILED user op, got %s", recs[0].State)
	}
	if recs[0].RevertReason == "" {
		t.Error("expected a revert reason, even a generic one")
	}

	attempts, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-6")
	if attempts[0].Status != domain.AttemptDropped {
		t.Errorf("expected DROPPED attempt, got %s", attempts[0].Status)
	}
	if attempts[0].FrontRunHash != "" {
		t.Error("expected no front-run linkage")
	}
}

func TestFailure_BundlerEventFromOwnTx(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc7")

	// The independent query returns our own transaction's event: not a
	// front-run, just a reverted bundle.
	ownLog := userOpEventLog(t, hash, false)
	reader := &fakeReader{head: 5000, logs: []types.Log{ownLog}}

	c, store := newTestClassifier(t, reader)
	seedAttempt(t, store, "tx-7", hash, domain.KindBundler)
	seedUserOp(t, store, "tx-7")

	receipt := &types.Receipt{TxHash: hash, Status: types.ReceiptStatusFailed}
	req := Request{TransactionID: "tx-7", Hash: hash, Kind: domain.KindBundler}
	if err := c.Failure(ctx, req, receipt); err != nil {
		t.Fatalf("Failure failed: %v", err)
	}

	attempts, _ := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-7")
	a := attempts[0]
	if a.Status != domain.AttemptFailed {
		t.Errorf("expected FAILED, got %s", a.Status)
	}
	if a.FrontRunHash != "" {
		t.Error("own transaction's event must not count as a front-run")
	}
}
