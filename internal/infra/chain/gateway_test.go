package chain

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorAction
	}{
		{"nil error", nil, ActionRetry},
		{"parse error", errors.New("rpc error -32700: parse error"), ActionFatal},
		{"invalid request", errors.New("code -32600"), ActionFatal},
		{"method not found", errors.New("-32601 method not found"), ActionFatal},
		{"invalid params", errors.New("-32602 invalid params"), ActionFatal},
		{"rate limited 429", errors.New("HTTP 429"), ActionFailover},
		{"too many requests", errors.New("Too Many Requests"), ActionFailover},
		{"forbidden", errors.New("403 Forbidden"), ActionFailover},
		{"quota", errors.New("daily quota exceeded"), ActionFailover},
		{"plan limit", errors.New("plan limit reached"), ActionFailover},
		{"unauthorized", errors.New("Unauthorized request"), ActionFailover},
		{"rate limit text", errors.New("rate limit hit"), ActionFailover},
		{"network timeout", errors.New("dial tcp: i/o timeout"), ActionRetry},
		{"internal error", errors.New("HTTP 503 service unavailable"), ActionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}
