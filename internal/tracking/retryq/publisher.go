// Package retryq carries retry-check messages between the notifier and the
// retry consumer over a per-pool Redis list. Delivery is at-least-once;
// consumers must tolerate duplicates.
package retryq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "log/slog"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/tracking/metrics"
)

// Channel is the Redis operations the queue needs.
type Channel interface {
	PushMessage(ctx context.Context, pool string, payload []byte) error
	PopMessage(ctx context.Context, pool string, timeout time.Duration) ([]byte, bool, error)
	QueueDepth(ctx context.Context, pool string) (int64, error)
}

// Publisher enqueues retry messages onto their pool's queue.
type Publisher struct {
	channel Channel
	log     *logger.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(channel Channel) *Publisher {
	return &Publisher{
		channel: channel,
		log:     logger.With("component", "retry-publisher"),
	}
}

// Publish enqueues one message. Must be called only after the attempt store
// reflects the broadcast, so consumers always observe a PENDING row.
func (p *Publisher) Publish(ctx context.Context, msg *domain.RetryMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal retry message: %w", err)
	}
	if err := p.channel.PushMessage(ctx, msg.RelayerManagerName, payload); err != nil {
		return fmt.Errorf("failed to enqueue retry message: %w", err)
	}

	if depth, err := p.channel.QueueDepth(ctx, msg.RelayerManagerName); err == nil {
		metrics.RetryQueueDepth.WithLabelValues(msg.RelayerManagerName).Set(float64(depth))
	}
	return nil
}
