package schema

import (
	"bytes"
	"encoding/json"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type rawValidatorData struct {
	Pubkey                     *string         `json:"pubkey"`
	WithdrawalCredentials      *string         `json:"withdrawal_credentials"`
	EffectiveBalance           json.RawMessage `json:"effective_balance"`
	Slashed                    *bool           `json:"slashed"`
	ActivationEligibilityEpoch json.RawMessage `json:"activation_eligibility_epoch"`
	ActivationEpoch            json.RawMessage `json:"activation_epoch"`
	ExitEpoch                  json.RawMessage `json:"exit_epoch"`
	WithdrawableEpoch          json.RawMessage `json:"withdrawable_epoch"`
}

type rawValidator struct {
	Index     json.RawMessage   `json:"index"`
	Balance   json.RawMessage   `json:"balance"`
	Status    *string           `json:"status"`
	Validator *rawValidatorData `json:"validator"`
}

type rawValidatorsResponse struct {
	ExecutionOptimistic *bool           `json:"execution_optimistic"`
	Finalized           bool            `json:"finalized"`
	Data                json.RawMessage `json:"data"`
}

// ParseValidators validates a /eth/v1/beacon/states/{state_id}/validators response.
// data may be a single validator object or a list of them.
func ParseValidators(body []byte) (*entities.ValidatorsResponse, error) {
	v := &checker{body: body}

	var resp rawValidatorsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, v.decodeFailure("", err)
	}

	optimistic, err := v.required("execution_optimistic", resp.ExecutionOptimistic)
	if err != nil {
		return nil, err
	}
	if isAbsent(resp.Data) {
		return nil, v.fail("data", "field required")
	}

	var raws []rawValidator
	data := bytes.TrimSpace(resp.Data)
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, v.decodeFailure("data", err)
		}
	case '{':
		var single rawValidator
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, v.decodeFailure("data", err)
		}
		raws = []rawValidator{single}
	default:
		return nil, v.fail("data", "expected a validator object or a list of validators")
	}

	validators := make([]entities.Validator, 0, len(raws))
	for i := range raws {
		validator, err := v.validator(index("data", i), &raws[i])
		if err != nil {
			return nil, err
		}
		validators = append(validators, validator)
	}

	return &entities.ValidatorsResponse{
		ExecutionOptimistic: optimistic,
		Finalized:           resp.Finalized,
		Validators:          validators,
	}, nil
}

func (v *checker) validator(path string, raw *rawValidator) (entities.Validator, error) {
	var (
		validator entities.Validator
		err       error
	)
	if validator.Index, err = v.unsigned(join(path, "index"), raw.Index); err != nil {
		return validator, err
	}
	if validator.Balance, err = v.unsigned(join(path, "balance"), raw.Balance); err != nil {
		return validator, err
	}

	statusPath := join(path, "status")
	if raw.Status == nil {
		return validator, v.fail(statusPath, "field required")
	}
	validator.Status = entities.ValidatorStatus(*raw.Status)
	if !validator.Status.IsKnown() {
		return validator, v.fail(statusPath, "unknown validator status [%s]", *raw.Status)
	}

	dataPath := join(path, "validator")
	if raw.Validator == nil {
		return validator, v.fail(dataPath, "field required")
	}
	data := raw.Validator
	if validator.Validator.Pubkey, err = v.hexExact(join(dataPath, "pubkey"), data.Pubkey, pubkeyLength); err != nil {
		return validator, err
	}
	if validator.Validator.WithdrawalCredentials, err = v.hexExact(join(dataPath, "withdrawal_credentials"), data.WithdrawalCredentials, hashLength); err != nil {
		return validator, err
	}
	if validator.Validator.Slashed, err = v.required(join(dataPath, "slashed"), data.Slashed); err != nil {
		return validator, err
	}

	numbers := []struct {
		name   string
		value  json.RawMessage
		target *uint64
	}{
		{"effective_balance", data.EffectiveBalance, &validator.Validator.EffectiveBalance},
		{"activation_eligibility_epoch", data.ActivationEligibilityEpoch, &validator.Validator.ActivationEligibilityEpoch},
		{"activation_epoch", data.ActivationEpoch, &validator.Validator.ActivationEpoch},
		{"exit_epoch", data.ExitEpoch, &validator.Validator.ExitEpoch},
		{"withdrawable_epoch", data.WithdrawableEpoch, &validator.Validator.WithdrawableEpoch},
	}
	for _, n := range numbers {
		if *n.target, err = v.unsigned(join(dataPath, n.name), n.value); err != nil {
			return validator, err
		}
	}

	return validator, nil
}
