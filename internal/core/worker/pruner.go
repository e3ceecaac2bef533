package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/txmonitor/internal/core/config"
	"github.com/vietddude/txmonitor/internal/infra/storage"
)

// Pruner deletes terminal attempts past the retention period. PENDING rows
// are never touched.
type Pruner struct {
	cfg      config.ChainConfig
	attempts storage.AttemptRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.ChainConfig, attempts storage.AttemptRepository) *Pruner {
	return &Pruner{cfg: cfg, attempts: attempts}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.RetentionPeriod <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention period, clamped to [1m, 1h]
	interval := min(p.cfg.RetentionPeriod/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := time.Now().Add(-p.cfg.RetentionPeriod).Unix()

	if err := p.attempts.DeleteTerminalOlderThan(ctx, p.cfg.ChainID, threshold); err != nil {
		slog.Error("failed to prune attempts", "chain", p.cfg.ChainID, "error", err)
	}
}
