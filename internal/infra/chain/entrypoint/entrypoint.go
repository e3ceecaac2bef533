// Package entrypoint holds the account-abstraction entry-point contract ABIs
// and the decoding of their events and revert errors. Decoding is kept pure so
// a failure here can never abort the surrounding classification.
package entrypoint

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/txmonitor/internal/core/domain"
)

// Fragments of the canonical entry-point ABIs, reduced to the shapes this
// service decodes. The UserOperationEvent signature is identical across
// versions but the topic hash is always derived from the ABI here, never
// hard-coded.
const abiJSONV06 = `[
	{"type":"event","name":"UserOperationEvent","inputs":[
		{"name":"userOpHash","type":"bytes32","indexed":true},
		{"name":"sender","type":"address","indexed":true},
		{"name":"paymaster","type":"address","indexed":true},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"success","type":"bool","indexed":false},
		{"name":"actualGasCost","type":"uint256","indexed":false},
		{"name":"actualGasUsed","type":"uint256","indexed":false}]},
	{"type":"event","name":"UserOperationRevertReason","inputs":[
		{"name":"userOpHash","type":"bytes32","indexed":true},
		{"name":"sender","type":"address","indexed":true},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"revertReason","type":"bytes","indexed":false}]},
	{"type":"error","name":"FailedOp","inputs":[
		{"name":"opIndex","type":"uint256"},
		{"name":"reason","type":"string"}]}
]`

const abiJSONV07 = `[
	{"type":"event","name":"UserOperationEvent","inputs":[
		{"name":"userOpHash","type":"bytes32","indexed":true},
		{"name":"sender","type":"address","indexed":true},
		{"name":"paymaster","type":"address","indexed":true},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"success","type":"bool","indexed":false},
		{"name":"actualGasCost","type":"uint256","indexed":false},
		{"name":"actualGasUsed","type":"uint256","indexed":false}]},
	{"type":"event","name":"UserOperationRevertReason","inputs":[
		{"name":"userOpHash","type":"bytes32","indexed":true},
		{"name":"sender","type":"address","indexed":true},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"revertReason","type":"bytes","indexed":false}]},
	{"type":"error","name":"FailedOp","inputs":[
		{"name":"opIndex","type":"uint256"},
		{"name":"reason","type":"string"}]},
	{"type":"error","name":"FailedOpWithRevert","inputs":[
		{"name":"opIndex","type":"uint256"},
		{"name":"reason","type":"string"},
		{"name":"inner","type":"bytes"}]}
]`

// GenericRevertMessage is the fallback when a revert payload cannot be
// decoded against any known error shape.
const GenericRevertMessage = "transaction reverted; check the block explorer for details"

var parsed = map[domain.EntryPointVersion]abi.ABI{
	domain.EntryPointV06: mustParse(abiJSONV06),
	domain.EntryPointV07: mustParse(abiJSONV07),
}

func mustParse(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

// ABI returns the parsed entry-point ABI for a version. Unknown versions fall
// back to v0.6.
func ABI(v domain.EntryPointVersion) abi.ABI {
	if a, ok := parsed[v]; ok {
		return a
	}
	return parsed[domain.EntryPointV06]
}

// EventID returns the UserOperationEvent topic hash for a version, derived
// from the ABI.
func EventID(v domain.EntryPointVersion) common.Hash {
	return ABI(v).Events["UserOperationEvent"].ID
}

// UserOpEvent is the decoded UserOperationEvent log.
type UserOpEvent struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
}

// DecodeUserOpEvent decodes a UserOperationEvent log against the versioned ABI.
func DecodeUserOpEvent(v domain.EntryPointVersion, lg types.Log) (*UserOpEvent, error) {
	a := ABI(v)
	ev := a.Events["UserOperationEvent"]

	if len(lg.Topics) != 4 || lg.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a UserOperationEvent")
	}

	values, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected event field count: %d", len(values))
	}

	nonce, ok0 := values[0].(*big.Int)
	success, ok1 := values[1].(bool)
	gasCost, ok2 := values[2].(*big.Int)
	gasUsed, ok3 := values[3].(*big.Int)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected event field types")
	}

	return &UserOpEvent{
		UserOpHash:    lg.Topics[1],
		Sender:        common.BytesToAddress(lg.Topics[2].Bytes()),
		Paymaster:     common.BytesToAddress(lg.Topics[3].Bytes()),
		Nonce:         nonce,
		Success:       success,
		ActualGasCost: gasCost,
		ActualGasUsed: gasUsed,
	}, nil
}

// RevertReasonEventID returns the UserOperationRevertReason topic hash for a
// version, derived from the ABI.
func RevertReasonEventID(v domain.EntryPointVersion) common.Hash {
	return ABI(v).Events["UserOperationRevertReason"].ID
}

// DecodeRevertReasonEvent extracts the raw revert payload carried by a
// UserOperationRevertReason log.
func DecodeRevertReasonEvent(v domain.EntryPointVersion, lg types.Log) ([]byte, error) {
	ev := ABI(v).Events["UserOperationRevertReason"]
	if len(lg.Topics) < 2 || lg.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a UserOperationRevertReason")
	}

	values, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected event field count: %d", len(values))
	}
	payload, ok := values[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected revert payload type")
	}
	return payload, nil
}

// DecodeRevert extracts a human-readable message from a revert payload. It
// tries the entry point's custom errors first, then the standard
// Error(string) shape. It never fails: undecodable payloads yield
// GenericRevertMessage.
func DecodeRevert(v domain.EntryPointVersion, data []byte) string {
	if len(data) < 4 {
		return GenericRevertMessage
	}

	a := ABI(v)
	for name, abiErr := range a.Errors {
		if [4]byte(abiErr.ID[:4]) != [4]byte(data[:4]) {
			continue
		}
		values, err := abiErr.Unpack(data)
		if err != nil {
			break
		}
		if vals, ok := values.([]any); ok {
			for _, field := range vals {
				if s, ok := field.(string); ok && s != "" {
					return fmt.Sprintf("%s: %s", name, s)
				}
			}
		}
		return name
	}

	if reason, err := abi.UnpackRevert(data); err == nil && reason != "" {
		return reason
	}
	return GenericRevertMessage
}
