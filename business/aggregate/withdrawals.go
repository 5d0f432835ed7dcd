package aggregate

import (
	"iter"

	"github.com/eth-withdrawals/withdrawals-publisher/business/chain"
	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

// WithdrawalStats reduces the withdrawals of one payload. An empty list yields -1 for the latest indexes.
// The unique withdrawal count counts distinct recipient addresses, not distinct withdrawals.
func WithdrawalStats(withdrawals []entities.Withdrawal) entities.WithdrawalStats {
	stats := entities.WithdrawalStats{
		Count:                len(withdrawals),
		LatestSweepIndex:     -1,
		LatestValidatorIndex: -1,
	}

	validators := make(map[uint64]struct{}, len(withdrawals))
	addresses := make(map[string]struct{}, len(withdrawals))
	for _, w := range withdrawals {
		stats.Amount += w.Amount
		stats.LatestSweepIndex = max(stats.LatestSweepIndex, int64(w.Index))
		stats.LatestValidatorIndex = max(stats.LatestValidatorIndex, int64(w.ValidatorIndex))
		validators[w.ValidatorIndex] = struct{}{}
		addresses[w.Address] = struct{}{}
	}
	stats.UniqueValidatorCount = len(validators)
	stats.UniqueWithdrawalCount = len(addresses)

	return stats
}

func payloadOf(block *entities.BlockResponse) (*entities.BeaconBlock, *entities.ExecutionPayload, bool) {
	if block == nil || block.Message == nil || block.Message.ExecutionPayload == nil {
		return nil, nil, false
	}
	return block.Message, block.Message.ExecutionPayload, true
}

func tag(clock *chain.Clock, slot uint64) entities.Tag {
	return entities.Tag{
		Slot:      slot,
		Epoch:     clock.EpochOf(slot),
		Timestamp: clock.Timestamp(slot),
	}
}

// ExecutionPayloadSummary returns false for blocks without a message or an execution payload.
func ExecutionPayloadSummary(clock *chain.Clock, block *entities.BlockResponse) (*entities.ExecutionPayloadSummary, bool) {
	message, payload, ok := payloadOf(block)
	if !ok {
		return nil, false
	}

	return &entities.ExecutionPayloadSummary{
		Tag:             tag(clock, message.Slot),
		ProposerIndex:   message.ProposerIndex,
		ParentHash:      payload.ParentHash,
		FeeRecipient:    payload.FeeRecipient,
		StateRoot:       payload.StateRoot,
		ReceiptsRoot:    payload.ReceiptsRoot,
		LogsBloom:       payload.LogsBloom,
		PrevRandao:      payload.PrevRandao,
		BlockNumber:     payload.BlockNumber,
		GasLimit:        payload.GasLimit,
		GasUsed:         payload.GasUsed,
		BlockTimestamp:  payload.Timestamp,
		ExtraData:       payload.ExtraData,
		BaseFeePerGas:   payload.BaseFeePerGas,
		BlockHash:       payload.BlockHash,
		BlsChangesCount: len(message.BlsToExecutionChanges),
		TxCount:         len(payload.Transactions),
		Withdrawals:     WithdrawalStats(payload.Withdrawals),
	}, true
}

// WithdrawalRecords yields one record per withdrawal. The sequence can be ranged over more than once.
func WithdrawalRecords(clock *chain.Clock, block *entities.BlockResponse) iter.Seq[*entities.WithdrawalRecord] {
	return func(yield func(*entities.WithdrawalRecord) bool) {
		message, payload, ok := payloadOf(block)
		if !ok {
			return
		}
		slotTag := tag(clock, message.Slot)
		for _, w := range payload.Withdrawals {
			record := &entities.WithdrawalRecord{
				Tag:               slotTag,
				WithdrawalIndex:   w.Index,
				ValidatorIndex:    w.ValidatorIndex,
				WithdrawalAddress: w.Address,
				WithdrawalAmount:  w.Amount,
			}
			if !yield(record) {
				return
			}
		}
	}
}
