package domain

// RetryMessage is the wire payload carried by the retry channel. It is created
// once per Notify call and consumed at-least-once, so handlers must tolerate
// duplicate delivery.
type RetryMessage struct {
	MessageID          string          `json:"messageId,omitempty"`
	RelayerAddress     string          `json:"relayerAddress"`
	TransactionType    TransactionKind `json:"transactionType"`
	TransactionHash    string          `json:"transactionHash,omitempty"`
	TransactionID      string          `json:"transactionId"`
	RawTransaction     []byte          `json:"rawTransaction"`
	WalletAddress      string          `json:"walletAddress"`
	MetaData           map[string]any  `json:"metaData,omitempty"`
	RelayerManagerName string          `json:"relayerManagerName"`
	Timestamp          int64           `json:"timestamp,omitempty"`
}
