package domain

// TransferRecord is one entry of an account's transfer history as returned
// by the upstream history API.
type TransferRecord struct {
	TxHash      string       `json:"tx_hash"`
	BlockNumber uint64       `json:"block_number"`
	From        string       `json:"from_address"`
	To          string       `json:"to_address"`
	Value       string       `json:"value"`
	Asset       string       `json:"asset"`
	Kind        TransferKind `json:"kind"`
	Timestamp   uint64       `json:"timestamp"` // unix seconds
}

type TransferKind string

const (
	TransferKindNative   TransferKind = "native"
	TransferKindToken    TransferKind = "token"
	TransferKindContract TransferKind = "contract_call"
	TransferKindStaking  TransferKind = "staking"
)
