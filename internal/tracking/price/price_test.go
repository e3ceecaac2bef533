package price

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

type fakeTable struct {
	prices map[uint64]float64
	err    error
	calls  int
}

func (f *fakeTable) GetPriceTable(ctx context.Context) (map[uint64]float64, error) {
	f.calls++
	return f.prices, f.err
}

func TestConvertFee(t *testing.T) {
	svc := NewService(&fakeTable{prices: map[uint64]float64{1: 2000}})

	// 0.01 ETH at $2000
	amount, cur, usd := svc.ConvertFee(context.Background(), 1, big.NewInt(1e16), "ETH")
	if amount != "10000000000000000" || cur != "ETH" {
		t.Errorf("unexpected amount/currency: %s %s", amount, cur)
	}
	if usd < 19.99 || usd > 20.01 {
		t.Errorf("expected ~20 usd, got %f", usd)
	}
}

func TestConvertFee_MissingPrice(t *testing.T) {
	svc := NewService(&fakeTable{prices: map[uint64]float64{1: 2000}})

	amount, _, usd := svc.ConvertFee(context.Background(), 999, big.NewInt(1e16), "XYZ")
	if amount != "10000000000000000" {
		t.Errorf("wei amount must survive a missing price: %s", amount)
	}
	if usd != 0 {
		t.Errorf("expected zero usd for unknown chain, got %f", usd)
	}
}

func TestConvertFee_NilFee(t *testing.T) {
	svc := NewService(&fakeTable{})
	amount, cur, usd := svc.ConvertFee(context.Background(), 1, nil, "ETH")
	if amount != "0" || cur != "ETH" || usd != 0 {
		t.Errorf("unexpected zero-fee result: %s %s %f", amount, cur, usd)
	}
}

func TestPrices_Memoized(t *testing.T) {
	table := &fakeTable{prices: map[uint64]float64{1: 2000}}
	svc := NewService(table)

	for i := 0; i < 5; i++ {
		svc.ConvertFee(context.Background(), 1, big.NewInt(1), "ETH")
	}
	if table.calls != 1 {
		t.Errorf("expected 1 table fetch within the ttl, got %d", table.calls)
	}
}

func TestPrices_TableErrorKeepsStale(t *testing.T) {
	table := &fakeTable{prices: map[uint64]float64{1: 2000}}
	svc := NewService(table)

	_, _, usd := svc.ConvertFee(context.Background(), 1, big.NewInt(1e18), "ETH")
	if usd != 2000 {
		t.Fatalf("expected 2000 usd, got %f", usd)
	}

	// Fail subsequent fetches after expiring the memo; the stale table remains.
	table.err = errors.New("redis down")
	svc.mu.Lock()
	svc.fetchedAt = svc.fetchedAt.Add(-2 * svc.ttl)
	svc.mu.Unlock()

	_, _, usd = svc.ConvertFee(context.Background(), 1, big.NewInt(1e18), "ETH")
	if usd != 2000 {
		t.Errorf("expected stale price to carry over, got %f", usd)
	}
}
