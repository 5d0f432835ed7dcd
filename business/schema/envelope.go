package schema

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type rawEnvelope struct {
	Code    json.RawMessage `json:"code"`
	Message *string         `json:"message"`
}

// DecodeEnvelope reports whether body is a {code, message} error envelope. Both fields must be set and non empty,
// a zero code or an empty message is treated as a regular payload.
func DecodeEnvelope(body []byte) (*entities.ErrorEnvelope, bool) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	if isAbsent(raw.Code) || raw.Message == nil || *raw.Message == "" {
		return nil, false
	}

	codeText := strings.Trim(string(raw.Code), `" `)
	code, err := strconv.Atoi(codeText)
	if err != nil || code == 0 {
		return nil, false
	}

	return &entities.ErrorEnvelope{Code: code, Message: *raw.Message}, true
}
