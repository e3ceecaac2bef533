package domain

import "time"

// UserOpState is the lifecycle state of a bundled user operation.
type UserOpState string

const (
	UserOpPendingProcessing UserOpState = "PENDING_PROCESSING"
	UserOpConfirmed         UserOpState = "CONFIRMED"
	UserOpFailed            UserOpState = "FAILED"
	UserOpDropped           UserOpState = "DROPPED"
)

// EntryPointVersion tags which entry-point contract a user operation was
// submitted through. Event and error shapes are decoded against the matching ABI.
type EntryPointVersion string

const (
	EntryPointV06 EntryPointVersion = "v0.6"
	EntryPointV07 EntryPointVersion = "v0.7"
)

// UserOpRecord is one user-submitted operation bundled into a broadcast
// transaction. Only attempts of KindBundler own these.
type UserOpRecord struct {
	UserOpHash        string            `json:"user_op_hash"`
	EntryPoint        string            `json:"entry_point"`
	EntryPointVersion EntryPointVersion `json:"entry_point_version"`
	TransactionID     string            `json:"transaction_id"`
	State             UserOpState       `json:"state"`
	Success           bool              `json:"success"`
	ActualGasCost     string            `json:"actual_gas_cost"`
	ActualGasUsed     string            `json:"actual_gas_used"`
	RevertReason      string            `json:"revert_reason"`
	Logs              []byte            `json:"logs"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
