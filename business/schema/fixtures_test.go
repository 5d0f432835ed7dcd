package schema

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func hexOf(nrBytes int, digit string) string {
	return "0x" + strings.Repeat(digit, nrBytes*2)
}

func testWithdrawal(index, validatorIndex int, address string, amount string) map[string]any {
	return map[string]any{
		"index":           json.Number(strconv.Itoa(index)),
		"validator_index": strconv.Itoa(validatorIndex),
		"address":         address,
		"amount":          amount,
	}
}

func testPayload(withdrawals ...map[string]any) map[string]any {
	list := make([]any, 0, len(withdrawals))
	for _, w := range withdrawals {
		list = append(list, w)
	}
	return map[string]any{
		"parent_hash":      hexOf(32, "a"),
		"fee_recipient":    hexOf(20, "b"),
		"state_root":       hexOf(32, "c"),
		"receipts_root":    hexOf(32, "d"),
		"logs_bloom":       hexOf(256, "0"),
		"prev_randao":      hexOf(32, "e"),
		"block_number":     "17034870",
		"gas_limit":        "30000000",
		"gas_used":         "12345678",
		"timestamp":        "1681338479",
		"extra_data":       "0x6265617665726275696c642e6f7267",
		"base_fee_per_gas": "115792089237316195423570985008687907853269984665640564039457584007913129639935",
		"block_hash":       hexOf(32, "f"),
		"transactions":     []any{"0x02f8b1", "0x"},
		"withdrawals":      list,
	}
}

func testBlsChange(validatorIndex int) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"validator_index":      strconv.Itoa(validatorIndex),
			"from_bls_pubkey":      hexOf(48, "2"),
			"to_execution_address": hexOf(20, "3"),
		},
		"signature": hexOf(96, "4"),
	}
}

func testBlock(payload map[string]any) map[string]any {
	body := map[string]any{
		"randao_reveal": hexOf(96, "1"),
		"bls_to_execution_changes": []any{testBlsChange(42)},
	}
	if payload != nil {
		body["execution_payload"] = payload
	}
	return map[string]any{
		"version":              "capella",
		"execution_optimistic": false,
		"finalized":            true,
		"data": map[string]any{
			"message": map[string]any{
				"slot":           "6209538",
				"proposer_index": "12345",
				"parent_root":    hexOf(32, "5"),
				"state_root":     hexOf(32, "6"),
				"body":           body,
			},
			"signature": hexOf(96, "7"),
		},
	}
}

func testValidator(index int, status string, credentials string, slashed bool) map[string]any {
	return map[string]any{
		"index":   strconv.Itoa(index),
		"balance": "32000000000",
		"status":  status,
		"validator": map[string]any{
			"pubkey":                       hexOf(48, "8"),
			"withdrawal_credentials":       credentials,
			"effective_balance":            "32000000000",
			"slashed":                      slashed,
			"activation_eligibility_epoch": "0",
			"activation_epoch":             "0",
			"exit_epoch":                   "18446744073709551615",
			"withdrawable_epoch":           "18446744073709551615",
		},
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// path walks nested maps and lists, the last element is the key to set or delete.
func set(v map[string]any, value any, path ...any) {
	var current any = v
	for _, p := range path[:len(path)-1] {
		switch key := p.(type) {
		case string:
			current = current.(map[string]any)[key]
		case int:
			current = current.([]any)[key]
		}
	}
	last := path[len(path)-1].(string)
	if value == nil {
		delete(current.(map[string]any), last)
		return
	}
	current.(map[string]any)[last] = value
}
