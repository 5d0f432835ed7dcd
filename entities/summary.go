package entities

import (
	"fmt"
	"math/big"
)

const (
	DataTypeExecutionPayload = "execution_payload"
	DataTypeWithdrawals      = "withdrawals_data"
	DataTypeValidatorStatus  = "validator_status"
)

// WithdrawalStats summarizes the withdrawals of one payload. The latest indexes are -1 when there are no withdrawals.
type WithdrawalStats struct {
	Count                 int
	Amount                uint64
	LatestSweepIndex      int64
	LatestValidatorIndex  int64
	UniqueValidatorCount  int
	UniqueWithdrawalCount int
}

type ExecutionPayloadSummary struct {
	Tag
	ProposerIndex   uint64
	ParentHash      string
	FeeRecipient    string
	StateRoot       string
	ReceiptsRoot    string
	LogsBloom       string
	PrevRandao      string
	BlockNumber     uint64
	GasLimit        uint64
	GasUsed         uint64
	BlockTimestamp  uint64
	ExtraData       string
	BaseFeePerGas   *big.Int
	BlockHash       string
	BlsChangesCount int
	TxCount         int
	Withdrawals     WithdrawalStats
}

func (s *ExecutionPayloadSummary) Stream() Stream { return StreamExecutionPayload }

func (s *ExecutionPayloadSummary) Key() string { return fmt.Sprintf("%d", s.Slot) }

func (s *ExecutionPayloadSummary) Fields() []Field {
	fields := s.Tag.fields(DataTypeExecutionPayload)
	return append(fields,
		Field{Name: "proposer_index", Value: s.ProposerIndex},
		Field{Name: "parent_hash", Value: s.ParentHash},
		Field{Name: "fee_recipient", Value: s.FeeRecipient},
		Field{Name: "state_root", Value: s.StateRoot},
		Field{Name: "receipts_root", Value: s.ReceiptsRoot},
		Field{Name: "logs_bloom", Value: s.LogsBloom},
		Field{Name: "prev_randao", Value: s.PrevRandao},
		Field{Name: "block_number", Value: s.BlockNumber},
		Field{Name: "gas_limit", Value: s.GasLimit},
		Field{Name: "gas_used", Value: s.GasUsed},
		Field{Name: "block_timestamp", Value: s.BlockTimestamp},
		Field{Name: "extra_data", Value: s.ExtraData},
		Field{Name: "base_fee_per_gas", Value: s.BaseFeePerGas},
		Field{Name: "block_hash", Value: s.BlockHash},
		Field{Name: "bls_changes_count", Value: s.BlsChangesCount},
		Field{Name: "transaction_count", Value: s.TxCount},
		Field{Name: "withdrawals_count", Value: s.Withdrawals.Count},
		Field{Name: "withdrawals_amount", Value: s.Withdrawals.Amount},
		Field{Name: "withdrawals_latest_sweep_index", Value: s.Withdrawals.LatestSweepIndex},
		Field{Name: "withdrawals_latest_validator_index", Value: s.Withdrawals.LatestValidatorIndex},
		Field{Name: "withdrawals_unique_validator_count", Value: s.Withdrawals.UniqueValidatorCount},
		Field{Name: "withdrawals_unique_withdrawal_count", Value: s.Withdrawals.UniqueWithdrawalCount},
	)
}

func (s *ExecutionPayloadSummary) MarshalJSON() ([]byte, error) {
	return MarshalFields(s.Fields())
}

type WithdrawalRecord struct {
	Tag
	WithdrawalIndex   uint64
	ValidatorIndex    uint64
	WithdrawalAddress string
	WithdrawalAmount  uint64
}

func (r *WithdrawalRecord) Stream() Stream { return StreamWithdrawals }

func (r *WithdrawalRecord) Key() string {
	return fmt.Sprintf("%d-%d", r.Slot, r.WithdrawalIndex)
}

func (r *WithdrawalRecord) Fields() []Field {
	fields := r.Tag.fields(DataTypeWithdrawals)
	return append(fields,
		Field{Name: "withdrawal_index", Value: r.WithdrawalIndex},
		Field{Name: "validator_index", Value: r.ValidatorIndex},
		Field{Name: "withdrawal_address", Value: r.WithdrawalAddress},
		Field{Name: "withdrawal_amount", Value: r.WithdrawalAmount},
	)
}

func (r *WithdrawalRecord) MarshalJSON() ([]byte, error) {
	return MarshalFields(r.Fields())
}

type StatusTotals struct {
	Count   uint64
	Balance uint64
}

type ValidatorStatusSummary struct {
	Tag
	TotalCount     uint64
	TotalBalance   uint64
	Type1AddrCount uint64
	SlashedCount   uint64
	ExitedCount    uint64
	PerStatus      map[ValidatorStatus]StatusTotals
}

func (s *ValidatorStatusSummary) Stream() Stream { return StreamValidatorStatus }

func (s *ValidatorStatusSummary) Key() string { return fmt.Sprintf("%d", s.Slot) }

// Fields always emits all canonical status columns so every row of the stream has the same shape.
func (s *ValidatorStatusSummary) Fields() []Field {
	fields := s.Tag.fields(DataTypeValidatorStatus)
	fields = append(fields,
		Field{Name: "total_count", Value: s.TotalCount},
		Field{Name: "total_balance", Value: s.TotalBalance},
		Field{Name: "type_1_addr_count", Value: s.Type1AddrCount},
		Field{Name: "slashed_count", Value: s.SlashedCount},
		Field{Name: "exited_count", Value: s.ExitedCount},
	)
	for _, status := range CanonicalStatuses {
		totals := s.PerStatus[status]
		fields = append(fields,
			Field{Name: string(status) + "_count", Value: totals.Count},
			Field{Name: string(status) + "_balance", Value: totals.Balance},
		)
	}
	return fields
}

func (s *ValidatorStatusSummary) MarshalJSON() ([]byte, error) {
	return MarshalFields(s.Fields())
}

// SupplyRecord holds the circulating supply figures in wei for one minute.
type SupplyRecord struct {
	Timestamp           string
	ElSupply            *big.Int
	BurntFees           *big.Int
	StakingRewards      *big.Int
	StakingWithdrawals  *big.Int
	BeaconChainDeposits *big.Int
	EvmBalances         *big.Int
	CurrentSupply       *big.Int
	BeaconChainBalances *big.Int
	CirculatingSupply   *big.Int
}

func (r *SupplyRecord) Stream() Stream { return StreamSupply }

func (r *SupplyRecord) Key() string { return r.Timestamp }

func (r *SupplyRecord) Fields() []Field {
	return []Field{
		{Name: "timestamp", Value: r.Timestamp},
		{Name: "el_supply", Value: r.ElSupply},
		{Name: "burnt_fees", Value: r.BurntFees},
		{Name: "staking_rewards", Value: r.StakingRewards},
		{Name: "staking_withdrawals", Value: r.StakingWithdrawals},
		{Name: "beacon_chain_deposits", Value: r.BeaconChainDeposits},
		{Name: "evm_balances", Value: r.EvmBalances},
		{Name: "current_supply", Value: r.CurrentSupply},
		{Name: "beacon_chain_balances", Value: r.BeaconChainBalances},
		{Name: "circulating_supply", Value: r.CirculatingSupply},
	}
}

func (r *SupplyRecord) MarshalJSON() ([]byte, error) {
	return MarshalFields(r.Fields())
}
