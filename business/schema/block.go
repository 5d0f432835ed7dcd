package schema

import (
	"encoding/json"

	"github.com/prysmaticlabs/prysm/v5/api/server/structs"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

// Limits bounds the list fields of a block body. Exceeding a bound fails validation.
type Limits struct {
	MaxWithdrawalsPerPayload  int `conf:"default:16"`
	MaxTransactionsPerPayload int `conf:"default:1048576"`
	MaxBlsToExecutionChanges  int `conf:"default:16"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxWithdrawalsPerPayload:  16,
		MaxTransactionsPerPayload: 1048576,
		MaxBlsToExecutionChanges:  16,
	}
}

var knownVersions = map[string]struct{}{
	"phase0":    {},
	"altair":    {},
	"bellatrix": {},
	"capella":   {},
	"deneb":     {},
	"electra":   {},
}

type rawWithdrawal struct {
	Index          json.RawMessage `json:"index"`
	ValidatorIndex json.RawMessage `json:"validator_index"`
	Address        *string         `json:"address"`
	Amount         json.RawMessage `json:"amount"`
}

type rawBlsToExecutionChange struct {
	ValidatorIndex     json.RawMessage `json:"validator_index"`
	FromBlsPubkey      *string         `json:"from_bls_pubkey"`
	ToExecutionAddress *string         `json:"to_execution_address"`
}

type rawSignedBlsToExecutionChange struct {
	Message   *rawBlsToExecutionChange `json:"message"`
	Signature *string                  `json:"signature"`
}

type rawExecutionPayload struct {
	ParentHash    *string         `json:"parent_hash"`
	FeeRecipient  *string         `json:"fee_recipient"`
	StateRoot     *string         `json:"state_root"`
	ReceiptsRoot  *string         `json:"receipts_root"`
	LogsBloom     *string         `json:"logs_bloom"`
	PrevRandao    *string         `json:"prev_randao"`
	BlockNumber   json.RawMessage `json:"block_number"`
	GasLimit      json.RawMessage `json:"gas_limit"`
	GasUsed       json.RawMessage `json:"gas_used"`
	Timestamp     json.RawMessage `json:"timestamp"`
	ExtraData     *string         `json:"extra_data"`
	BaseFeePerGas json.RawMessage `json:"base_fee_per_gas"`
	BlockHash     *string         `json:"block_hash"`
	Transactions  *[]*string      `json:"transactions"`
	Withdrawals   []rawWithdrawal `json:"withdrawals"`
}

type rawBlockBody struct {
	ExecutionPayload      *rawExecutionPayload            `json:"execution_payload"`
	BlsToExecutionChanges []rawSignedBlsToExecutionChange `json:"bls_to_execution_changes"`
}

type rawBlock struct {
	Slot          json.RawMessage `json:"slot"`
	ProposerIndex json.RawMessage `json:"proposer_index"`
	ParentRoot    *string         `json:"parent_root"`
	StateRoot     *string         `json:"state_root"`
	Body          *rawBlockBody   `json:"body"`
}

type rawFlags struct {
	ExecutionOptimistic *bool `json:"execution_optimistic"`
}

// ParseBlock validates a /eth/v2/beacon/blocks/{block_id} response.
// A missing data.message or execution_payload is not an error, the returned block simply has no payload.
func ParseBlock(body []byte, limits Limits) (*entities.BlockResponse, error) {
	v := &checker{body: body}

	var resp structs.GetBlockV2Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, v.decodeFailure("", err)
	}
	var flags rawFlags
	if err := json.Unmarshal(body, &flags); err != nil {
		return nil, v.decodeFailure("", err)
	}

	if _, ok := knownVersions[resp.Version]; !ok {
		return nil, v.fail("version", "unknown version [%s]", resp.Version)
	}
	optimistic, err := v.required("execution_optimistic", flags.ExecutionOptimistic)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, v.fail("data", "field required")
	}

	block := entities.BlockResponse{
		Version:             resp.Version,
		ExecutionOptimistic: optimistic,
		Finalized:           resp.Finalized,
	}

	if isAbsent(resp.Data.Message) {
		return &block, nil
	}

	block.Signature, err = v.hexExact("data.signature", &resp.Data.Signature, signatureLength)
	if err != nil {
		return nil, err
	}

	var raw rawBlock
	if err := json.Unmarshal(resp.Data.Message, &raw); err != nil {
		return nil, v.decodeFailure("data.message", err)
	}
	block.Message, err = v.beaconBlock("data.message", &raw, limits)
	if err != nil {
		return nil, err
	}

	return &block, nil
}

func (v *checker) beaconBlock(path string, raw *rawBlock, limits Limits) (*entities.BeaconBlock, error) {
	var (
		block entities.BeaconBlock
		err   error
	)
	if block.Slot, err = v.unsigned(join(path, "slot"), raw.Slot); err != nil {
		return nil, err
	}
	if block.ProposerIndex, err = v.unsigned(join(path, "proposer_index"), raw.ProposerIndex); err != nil {
		return nil, err
	}
	if block.ParentRoot, err = v.hexExact(join(path, "parent_root"), raw.ParentRoot, hashLength); err != nil {
		return nil, err
	}
	if block.StateRoot, err = v.hexExact(join(path, "state_root"), raw.StateRoot, hashLength); err != nil {
		return nil, err
	}

	bodyPath := join(path, "body")
	if raw.Body == nil {
		return nil, v.fail(bodyPath, "field required")
	}

	changesPath := join(bodyPath, "bls_to_execution_changes")
	if err = v.bounded(changesPath, len(raw.Body.BlsToExecutionChanges), limits.MaxBlsToExecutionChanges); err != nil {
		return nil, err
	}
	for i := range raw.Body.BlsToExecutionChanges {
		change, err := v.blsToExecutionChange(index(changesPath, i), &raw.Body.BlsToExecutionChanges[i])
		if err != nil {
			return nil, err
		}
		block.BlsToExecutionChanges = append(block.BlsToExecutionChanges, change)
	}

	if raw.Body.ExecutionPayload != nil {
		block.ExecutionPayload, err = v.executionPayload(join(bodyPath, "execution_payload"), raw.Body.ExecutionPayload, limits)
		if err != nil {
			return nil, err
		}
	}

	return &block, nil
}

func (v *checker) blsToExecutionChange(path string, raw *rawSignedBlsToExecutionChange) (entities.BlsToExecutionChange, error) {
	var (
		change entities.BlsToExecutionChange
		err    error
	)
	messagePath := join(path, "message")
	if raw.Message == nil {
		return change, v.fail(messagePath, "field required")
	}
	if change.ValidatorIndex, err = v.unsigned(join(messagePath, "validator_index"), raw.Message.ValidatorIndex); err != nil {
		return change, err
	}
	if change.FromBlsPubkey, err = v.hexExact(join(messagePath, "from_bls_pubkey"), raw.Message.FromBlsPubkey, pubkeyLength); err != nil {
		return change, err
	}
	if change.ToExecutionAddress, err = v.hexExact(join(messagePath, "to_execution_address"), raw.Message.ToExecutionAddress, addressLength); err != nil {
		return change, err
	}
	if change.Signature, err = v.hexExact(join(path, "signature"), raw.Signature, signatureLength); err != nil {
		return change, err
	}
	return change, nil
}

func (v *checker) executionPayload(path string, raw *rawExecutionPayload, limits Limits) (*entities.ExecutionPayload, error) {
	var (
		payload entities.ExecutionPayload
		err     error
	)

	hashes := []struct {
		name   string
		value  *string
		size   int
		target *string
	}{
		{"parent_hash", raw.ParentHash, hashLength, &payload.ParentHash},
		{"fee_recipient", raw.FeeRecipient, addressLength, &payload.FeeRecipient},
		{"state_root", raw.StateRoot, hashLength, &payload.StateRoot},
		{"receipts_root", raw.ReceiptsRoot, hashLength, &payload.ReceiptsRoot},
		{"logs_bloom", raw.LogsBloom, bloomLength, &payload.LogsBloom},
		{"prev_randao", raw.PrevRandao, hashLength, &payload.PrevRandao},
		{"block_hash", raw.BlockHash, hashLength, &payload.BlockHash},
	}
	for _, h := range hashes {
		if *h.target, err = v.hexExact(join(path, h.name), h.value, h.size); err != nil {
			return nil, err
		}
	}

	numbers := []struct {
		name   string
		value  json.RawMessage
		target *uint64
	}{
		{"block_number", raw.BlockNumber, &payload.BlockNumber},
		{"gas_limit", raw.GasLimit, &payload.GasLimit},
		{"gas_used", raw.GasUsed, &payload.GasUsed},
		{"timestamp", raw.Timestamp, &payload.Timestamp},
	}
	for _, n := range numbers {
		if *n.target, err = v.unsigned(join(path, n.name), n.value); err != nil {
			return nil, err
		}
	}

	if payload.ExtraData, err = v.hexMax(join(path, "extra_data"), raw.ExtraData, maxExtraData); err != nil {
		return nil, err
	}
	if payload.BaseFeePerGas, err = v.unsignedBig(join(path, "base_fee_per_gas"), raw.BaseFeePerGas); err != nil {
		return nil, err
	}

	txPath := join(path, "transactions")
	if raw.Transactions == nil {
		return nil, v.fail(txPath, "field required")
	}
	if err = v.bounded(txPath, len(*raw.Transactions), limits.MaxTransactionsPerPayload); err != nil {
		return nil, err
	}
	payload.Transactions = make([]string, 0, len(*raw.Transactions))
	for i, tx := range *raw.Transactions {
		value, err := v.hexMax(index(txPath, i), tx, -1)
		if err != nil {
			return nil, err
		}
		payload.Transactions = append(payload.Transactions, value)
	}

	withdrawalsPath := join(path, "withdrawals")
	if err = v.bounded(withdrawalsPath, len(raw.Withdrawals), limits.MaxWithdrawalsPerPayload); err != nil {
		return nil, err
	}
	for i := range raw.Withdrawals {
		withdrawal, err := v.withdrawal(index(withdrawalsPath, i), &raw.Withdrawals[i])
		if err != nil {
			return nil, err
		}
		payload.Withdrawals = append(payload.Withdrawals, withdrawal)
	}

	return &payload, nil
}

func (v *checker) withdrawal(path string, raw *rawWithdrawal) (entities.Withdrawal, error) {
	var (
		withdrawal entities.Withdrawal
		err        error
	)
	if withdrawal.Index, err = v.indexValue(join(path, "index"), raw.Index); err != nil {
		return withdrawal, err
	}
	if withdrawal.ValidatorIndex, err = v.indexValue(join(path, "validator_index"), raw.ValidatorIndex); err != nil {
		return withdrawal, err
	}
	if withdrawal.Address, err = v.hexExact(join(path, "address"), raw.Address, addressLength); err != nil {
		return withdrawal, err
	}
	if withdrawal.Amount, err = v.unsigned(join(path, "amount"), raw.Amount); err != nil {
		return withdrawal, err
	}
	return withdrawal, nil
}
