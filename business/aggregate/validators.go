package aggregate

import (
	"strings"

	"github.com/eth-withdrawals/withdrawals-publisher/business/chain"
	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

const executionCredentialsPrefix = "0x01"

var (
	slashedExitStatuses = map[entities.ValidatorStatus]bool{
		entities.StatusExitedSlashed:      true,
		entities.StatusWithdrawalPossible: true,
		entities.StatusWithdrawalDone:     true,
	}
	// active_exiting is left out, those validators still perform duties
	unslashedExitStatuses = map[entities.ValidatorStatus]bool{
		entities.StatusExitedUnslashed:    true,
		entities.StatusWithdrawalPossible: true,
		entities.StatusWithdrawalDone:     true,
	}
)

// ValidatorStatusSummary aggregates one validator set snapshot in a single pass. An empty set yields no record.
// Legacy statuses only count towards the totals.
func ValidatorStatusSummary(clock *chain.Clock, validators []entities.Validator, slot uint64) (*entities.ValidatorStatusSummary, bool) {
	if len(validators) == 0 {
		return nil, false
	}

	summary := entities.ValidatorStatusSummary{
		Tag:       tag(clock, slot),
		PerStatus: make(map[entities.ValidatorStatus]entities.StatusTotals, len(entities.CanonicalStatuses)),
	}

	for _, v := range validators {
		summary.TotalCount++
		summary.TotalBalance += v.Balance

		if v.Status.IsCanonical() {
			totals := summary.PerStatus[v.Status]
			totals.Count++
			totals.Balance += v.Balance
			summary.PerStatus[v.Status] = totals
		}

		if strings.HasPrefix(v.Validator.WithdrawalCredentials, executionCredentialsPrefix) {
			summary.Type1AddrCount++
		}
		if v.Validator.Slashed && slashedExitStatuses[v.Status] {
			summary.SlashedCount++
		}
		if !v.Validator.Slashed && unslashedExitStatuses[v.Status] {
			summary.ExitedCount++
		}
	}

	return &summary, true
}
