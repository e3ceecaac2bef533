// Package relay talks to a Flashbots-style private relay: transactions sent
// through it never appear in the public mempool, so inclusion is observed via
// the relay's own status API instead of standard broadcast visibility.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Status is the relay's view of a submitted transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusIncluded  Status = "INCLUDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// TxStatus is the relay status endpoint response.
type TxStatus struct {
	Status         Status          `json:"status"`
	Hash           string          `json:"hash"`
	MaxBlockNumber uint64          `json:"maxBlockNumber"`
	Transaction    json.RawMessage `json:"transaction"`
	FastMode       bool            `json:"fastMode"`
	SeenInMempool  bool            `json:"seenInMempool"`
}

// Config holds private relay settings for one chain.
type Config struct {
	StatusURL  string `yaml:"status_url"`
	RPCURL     string `yaml:"rpc_url"`
	AuthKeyEnv string `yaml:"auth_key_env"` // env var holding the signing key hex
}

// Client queries a private relay's status and JSON-RPC endpoints. RPC requests
// are authenticated with a signature header over the request body.
type Client struct {
	statusURL string
	rpcURL    string
	authPK    *ecdsa.PrivateKey
	address   common.Address
	httpc     *http.Client
}

// NewClient creates a relay client. authPrivHex signs RPC request bodies.
func NewClient(statusURL, rpcURL, authPrivHex string) (*Client, error) {
	h := strings.TrimPrefix(strings.TrimSpace(authPrivHex), "0x")
	if h == "" {
		return nil, fmt.Errorf("relay auth private key is empty")
	}
	pk, err := crypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relay auth key: %w", err)
	}

	return &Client{
		statusURL: strings.TrimRight(strings.TrimSpace(statusURL), "/"),
		rpcURL:    strings.TrimSpace(rpcURL),
		authPK:    pk,
		address:   crypto.PubkeyToAddress(pk.PublicKey),
		httpc:     &http.Client{Timeout: 12 * time.Second},
	}, nil
}

// GetTxStatus fetches the relay's status for a transaction hash.
func (c *Client) GetTxStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	url := fmt.Sprintf("%s/%s", c.statusURL, txHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay status returned %d: %s", resp.StatusCode, body)
	}

	var st TxStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("invalid relay status payload: %w", err)
	}
	if st.Status == "" {
		st.Status = StatusUnknown
	}
	return &st, nil
}

// PendingNonce queries the relay for an address's next nonce via a signed
// eth_getTransactionCount call.
func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var result string
	err := c.rpc(ctx, "eth_getTransactionCount", []any{addr.Hex(), "pending"}, &result)
	if err != nil {
		return 0, err
	}

	nonce, err := hexutil.DecodeUint64(result)
	if err != nil {
		return 0, fmt.Errorf("invalid nonce payload %q: %w", result, err)
	}
	return nonce, nil
}

func (c *Client) rpc(ctx context.Context, method string, params any, result any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", c.signBody(b))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("relay rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("invalid relay rpc payload: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("relay rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return json.Unmarshal(envelope.Result, result)
}

func (c *Client) signBody(b []byte) string {
	hash := crypto.Keccak256(b)
	sig, err := crypto.Sign(hash, c.authPK)
	if err != nil {
		return ""
	}
	return c.address.Hex() + ":" + "0x" + hex.EncodeToString(sig)
}
