package retryq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/txmonitor/internal/core/domain"
)

// HTTPResubmitter delegates resubmission to the transaction-execution
// service's retry endpoint. The execution service fee-bumps, rebroadcasts,
// and calls back into Notify with the replacement hash.
type HTTPResubmitter struct {
	url   string
	httpc *http.Client
}

// NewHTTPResubmitter creates a resubmitter targeting the execution service.
func NewHTTPResubmitter(url string) *HTTPResubmitter {
	return &HTTPResubmitter{
		url:   url,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

// RetryTransaction implements Resubmitter.
func (r *HTTPResubmitter) RetryTransaction(ctx context.Context, msg *domain.RetryMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal retry request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("retry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("execution service returned %d: %s", resp.StatusCode, b)
	}
	return nil
}
