package entities

import "math/big"

type Withdrawal struct {
	Index          uint64
	ValidatorIndex uint64
	Address        string
	Amount         uint64
}

type BlsToExecutionChange struct {
	ValidatorIndex     uint64
	FromBlsPubkey      string
	ToExecutionAddress string
	Signature          string
}

type ExecutionPayload struct {
	ParentHash    string
	FeeRecipient  string
	StateRoot     string
	ReceiptsRoot  string
	LogsBloom     string
	PrevRandao    string
	BlockNumber   uint64
	GasLimit      uint64
	GasUsed       uint64
	Timestamp     uint64
	ExtraData     string
	BaseFeePerGas *big.Int
	BlockHash     string
	Transactions  []string
	Withdrawals   []Withdrawal
}

type BeaconBlock struct {
	Slot                  uint64
	ProposerIndex         uint64
	ParentRoot            string
	StateRoot             string
	ExecutionPayload      *ExecutionPayload
	BlsToExecutionChanges []BlsToExecutionChange
}

// BlockResponse is a validated /eth/v2/beacon/blocks response. Message is nil when the node returned no block body.
type BlockResponse struct {
	Version             string
	ExecutionOptimistic bool
	Finalized           bool
	Message             *BeaconBlock
	Signature           string
}

// ErrorEnvelope is the {code, message} body the beacon API returns instead of a payload.
type ErrorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
