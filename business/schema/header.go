package schema

import (
	"encoding/json"
	"strconv"

	"github.com/prysmaticlabs/prysm/v5/api/server/structs"
)

// ParseFinalizedHeader validates a /eth/v1/beacon/headers/finalized response and returns its slot.
func ParseFinalizedHeader(body []byte) (uint64, error) {
	v := &checker{body: body}

	var resp structs.GetBlockHeaderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, v.decodeFailure("", err)
	}
	if resp.Data == nil {
		return 0, v.fail("data", "field required")
	}
	if resp.Data.Header == nil {
		return 0, v.fail("data.header", "field required")
	}
	if resp.Data.Header.Message == nil {
		return 0, v.fail("data.header.message", "field required")
	}

	slot := resp.Data.Header.Message.Slot
	if slot == "" {
		return 0, v.fail("data.header.message.slot", "field required")
	}
	return v.unsigned("data.header.message.slot", json.RawMessage(strconv.Quote(slot)))
}
