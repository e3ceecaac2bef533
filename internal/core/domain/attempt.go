package domain

import "time"

// TransactionKind classifies what a broadcast transaction carries.
type TransactionKind string

const (
	KindFunding     TransactionKind = "FUNDING"
	KindSmartWallet TransactionKind = "SMART_WALLET"
	KindBundler     TransactionKind = "BUNDLER_USEROP"
	KindOther       TransactionKind = "OTHER"
)

// AttemptStatus is the lifecycle status of one broadcast attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "PENDING"
	AttemptSuccess AttemptStatus = "SUCCESS"
	AttemptFailed  AttemptStatus = "FAILED"
	AttemptDropped AttemptStatus = "DROPPED"
)

// TransactionAttempt is one broadcast (hash) of a transaction. A transaction id
// may own several attempts over its lineage due to fee-bump replacement; at most
// one of them is PENDING at any time.
type TransactionAttempt struct {
	TransactionID           string          `json:"transaction_id"`
	TransactionHash         string          `json:"transaction_hash"`
	PreviousTransactionHash string          `json:"previous_transaction_hash"`
	RelayerAddress          string          `json:"relayer_address"`
	WalletAddress           string          `json:"wallet_address"`
	Kind                    TransactionKind `json:"kind"`
	ChainID                 uint64          `json:"chain_id"`
	RawTransaction          []byte          `json:"raw_transaction"`
	Status                  AttemptStatus   `json:"status"`
	Resubmitted             bool            `json:"resubmitted"`
	FeeAmount               string          `json:"fee_amount"`
	FeeCurrency             string          `json:"fee_currency"`
	FeeUSD                  float64         `json:"fee_usd"`
	Receipt                 []byte          `json:"receipt"`
	FrontRunHash            string          `json:"front_run_hash"`
	FrontRunReceipt         []byte          `json:"front_run_receipt"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Terminal reports whether the attempt reached a final status.
func (a *TransactionAttempt) Terminal() bool {
	return a.Status != AttemptPending
}
