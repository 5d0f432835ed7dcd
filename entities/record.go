package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

// Stream identifies one logical output (file, topic or index).
type Stream string

const (
	StreamExecutionPayload Stream = "execution_payload"
	StreamWithdrawals      Stream = "withdrawals_data"
	StreamValidatorStatus  Stream = "validator_status"
	StreamSupply           Stream = "circulating_supply"
)

type Field struct {
	Name  string
	Value any
}

// Record is a row handed to a sink. Fields are ordered and every record of a stream has the same field names.
type Record interface {
	Stream() Stream
	Key() string
	Fields() []Field
}

// Tag is the slot stamp shared by all slot based records.
type Tag struct {
	Slot      uint64 `json:"slot"`
	Epoch     uint64 `json:"epoch"`
	Timestamp string `json:"timestamp"`
}

func (t Tag) fields(dataType string) []Field {
	return []Field{
		{Name: "slot", Value: t.Slot},
		{Name: "epoch", Value: t.Epoch},
		{Name: "timestamp", Value: t.Timestamp},
		{Name: "data_type", Value: dataType},
	}
}

// MarshalFields encodes fields as a JSON object keeping the field order.
func MarshalFields(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "marshalling field name [%s]", f.Name)
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "marshalling field [%s]", f.Name)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormatValue renders a field value for text based formats like csv.
func FormatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case uint64:
		return strconv.FormatUint(value, 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	case bool:
		return strconv.FormatBool(value)
	case *big.Int:
		if value == nil {
			return ""
		}
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
