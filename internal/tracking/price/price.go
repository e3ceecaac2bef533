// Package price converts native-token transaction fees into a reference
// currency using a cached price table maintained by an external feeder.
package price

import (
	"context"
	"math/big"
	"sync"
	"time"

	logger "log/slog"
)

// Table is the source of native-token USD prices keyed by chain id.
type Table interface {
	GetPriceTable(ctx context.Context) (map[uint64]float64, error)
}

var weiPerEther = new(big.Float).SetFloat64(1e18)

// Service resolves fee USD values from the cached price table. Prices are
// memoized briefly to keep classification off the cache's hot path.
type Service struct {
	table Table
	log   *logger.Logger

	mu        sync.Mutex
	cached    map[uint64]float64
	fetchedAt time.Time
	ttl       time.Duration
}

// NewService creates a price service over the given table.
func NewService(table Table) *Service {
	return &Service{
		table: table,
		log:   logger.With("component", "price"),
		ttl:   time.Minute,
	}
}

func (s *Service) prices(ctx context.Context) map[uint64]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		return s.cached
	}

	table, err := s.table.GetPriceTable(ctx)
	if err != nil {
		s.log.Warn("failed to load price table", "error", err)
		return s.cached // possibly stale, better than nothing
	}
	s.cached = table
	s.fetchedAt = time.Now()
	return s.cached
}

// ConvertFee turns a wei fee into (amount, currency, usd). A missing price
// yields a zero USD value, never an error: fee valuation is best effort.
func (s *Service) ConvertFee(
	ctx context.Context,
	chainID uint64,
	feeWei *big.Int,
	currency string,
) (amount string, cur string, usd float64) {
	if feeWei == nil {
		return "0", currency, 0
	}

	table := s.prices(ctx)
	native, _ := new(big.Float).Quo(new(big.Float).SetInt(feeWei), weiPerEther).Float64()

	p, ok := table[chainID]
	if !ok {
		s.log.Debug("no price for chain", "chain", chainID)
		return feeWei.String(), currency, 0
	}
	return feeWei.String(), currency, native * p
}
