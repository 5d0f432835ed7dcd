package entities

type ValidatorStatus string

const (
	StatusPendingInitialized ValidatorStatus = "pending_initialized"
	StatusPendingQueued      ValidatorStatus = "pending_queued"
	StatusActiveOngoing      ValidatorStatus = "active_ongoing"
	StatusActiveExiting      ValidatorStatus = "active_exiting"
	StatusActiveSlashed      ValidatorStatus = "active_slashed"
	StatusExitedUnslashed    ValidatorStatus = "exited_unslashed"
	StatusExitedSlashed      ValidatorStatus = "exited_slashed"
	StatusWithdrawalPossible ValidatorStatus = "withdrawal_possible"
	StatusWithdrawalDone     ValidatorStatus = "withdrawal_done"

	// legacy aliases, accepted but only counted in the totals
	StatusActive     ValidatorStatus = "active"
	StatusPending    ValidatorStatus = "pending"
	StatusExited     ValidatorStatus = "exited"
	StatusWithdrawal ValidatorStatus = "withdrawal"
)

// CanonicalStatuses lists the statuses that get their own count and balance columns, in output order.
var CanonicalStatuses = []ValidatorStatus{
	StatusPendingInitialized,
	StatusPendingQueued,
	StatusActiveOngoing,
	StatusActiveExiting,
	StatusActiveSlashed,
	StatusExitedUnslashed,
	StatusExitedSlashed,
	StatusWithdrawalPossible,
	StatusWithdrawalDone,
}

func (s ValidatorStatus) IsCanonical() bool {
	for _, status := range CanonicalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s ValidatorStatus) IsLegacy() bool {
	switch s {
	case StatusActive, StatusPending, StatusExited, StatusWithdrawal:
		return true
	default:
		return false
	}
}

func (s ValidatorStatus) IsKnown() bool {
	return s.IsCanonical() || s.IsLegacy()
}

type ValidatorData struct {
	Pubkey                     string
	WithdrawalCredentials      string
	EffectiveBalance           uint64
	Slashed                    bool
	ActivationEligibilityEpoch uint64
	ActivationEpoch            uint64
	ExitEpoch                  uint64
	WithdrawableEpoch          uint64
}

type Validator struct {
	Index     uint64
	Balance   uint64
	Status    ValidatorStatus
	Validator ValidatorData
}

// ValidatorsResponse is a validated /eth/v1/beacon/states/{state_id}/validators response.
// A single object in data is normalized to a one element list.
type ValidatorsResponse struct {
	ExecutionOptimistic bool
	Finalized           bool
	Validators          []Validator
}
