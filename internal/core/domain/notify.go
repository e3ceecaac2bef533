package domain

// NotifyRequest describes one broadcast attempt reported to the tracking engine.
// TransactionID is required; TransactionHash is empty when the transaction was
// never broadcast. PreviousTransactionHash is set when this attempt replaces an
// earlier one.
type NotifyRequest struct {
	TransactionID           string
	TransactionHash         string
	PreviousTransactionHash string
	RawTransaction          []byte
	RelayerAddress          string
	WalletAddress           string
	Kind                    TransactionKind
	RelayerManagerName      string
	MetaData                map[string]any
}
