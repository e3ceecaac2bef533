package redis

import "testing"

// The waiter and the retry consumer share these keys; a format change silently
// breaks the idempotency handshake between them.
func TestKeyFormatsAreStable(t *testing.T) {
	if got := MinedKey("tx-1"); got != "tx_mined:tx-1" {
		t.Errorf("MinedKey changed: %s", got)
	}
	if got := RetryCountKey("tx-1", 137); got != "retry_count:tx-1:137" {
		t.Errorf("RetryCountKey changed: %s", got)
	}
	if got := PriceTableKey(); got != "network_prices" {
		t.Errorf("PriceTableKey changed: %s", got)
	}
	if got := queueKey("pool-a"); got != "retry_queue:pool-a" {
		t.Errorf("queueKey changed: %s", got)
	}
}
