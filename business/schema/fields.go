package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

const (
	addressLength   = 20
	hashLength      = 32
	pubkeyLength    = 48
	signatureLength = 96
	bloomLength     = 256
	maxExtraData    = 32
)

// checker collects the raw body so every failure can carry it for diagnostics.
type checker struct {
	body []byte
}

func (v *checker) fail(path, format string, args ...any) error {
	return &entities.SchemaValidationError{
		Path:   path,
		Reason: fmt.Sprintf(format, args...),
		Body:   v.body,
	}
}

// decodeFailure maps a json decoding error to a schema error, keeping the field path when the decoder reports one.
func (v *checker) decodeFailure(root string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return v.fail(join(root, typeErr.Field), "expected %s, got %s", typeErr.Type, typeErr.Value)
	}
	return v.fail(root, "malformed json: %v", err)
}

func join(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}

func index(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// numberText accepts both quoted and bare json integers.
func (v *checker) numberText(path string, raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", v.fail(path, "field required")
	}
	trimmed := bytes.TrimSpace(raw)
	text := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", v.fail(path, "invalid string: %v", err)
		}
		text = strings.TrimSpace(s)
	}
	if strings.HasPrefix(text, "-") {
		return "", v.fail(path, "value must be greater than or equal to 0, got %s", text)
	}
	return text, nil
}

func (v *checker) unsigned(path string, raw json.RawMessage) (uint64, error) {
	text, err := v.numberText(path, raw)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, v.fail(path, "value is not a valid non negative integer: %s", text)
	}
	return value, nil
}

// indexValue parses sweep and validator indexes, which are published as signed 64 bit values.
func (v *checker) indexValue(path string, raw json.RawMessage) (uint64, error) {
	value, err := v.unsigned(path, raw)
	if err != nil {
		return 0, err
	}
	if value > math.MaxInt64 {
		return 0, v.fail(path, "value exceeds %d: %d", int64(math.MaxInt64), value)
	}
	return value, nil
}

func (v *checker) unsignedBig(path string, raw json.RawMessage) (*big.Int, error) {
	text, err := v.numberText(path, raw)
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, v.fail(path, "value is not a valid non negative integer: %s", text)
	}
	if value.Sign() < 0 || value.BitLen() > 256 {
		return nil, v.fail(path, "value out of uint256 range: %s", text)
	}
	return value, nil
}

func (v *checker) hexBytes(path string, value *string) ([]byte, error) {
	if value == nil {
		return nil, v.fail(path, "field required")
	}
	decoded, err := hexutil.Decode(*value)
	if err != nil {
		return nil, v.fail(path, "invalid hex string: %v", err)
	}
	return decoded, nil
}

// hexExact checks a 0x prefixed hex string that decodes to exactly size bytes.
func (v *checker) hexExact(path string, value *string, size int) (string, error) {
	decoded, err := v.hexBytes(path, value)
	if err != nil {
		return "", err
	}
	if len(decoded) != size {
		return "", v.fail(path, "expected %d bytes, got %d", size, len(decoded))
	}
	return *value, nil
}

func (v *checker) hexMax(path string, value *string, max int) (string, error) {
	decoded, err := v.hexBytes(path, value)
	if err != nil {
		return "", err
	}
	if max >= 0 && len(decoded) > max {
		return "", v.fail(path, "expected at most %d bytes, got %d", max, len(decoded))
	}
	return *value, nil
}

func (v *checker) required(path string, value *bool) (bool, error) {
	if value == nil {
		return false, v.fail(path, "field required")
	}
	return *value, nil
}

func (v *checker) bounded(path string, length, max int) error {
	if length > max {
		return v.fail(path, "ensure this list has at most %d items, got %d", max, length)
	}
	return nil
}
