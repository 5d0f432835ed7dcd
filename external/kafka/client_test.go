package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type MockKafkaClient struct {
	shouldError bool
	mutex       sync.Mutex
	produced    []*kgo.Record
}

func (mkc *MockKafkaClient) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	if mkc.shouldError {
		go promise(nil, errors.New("dummy error"))
		return
	}

	mkc.mutex.Lock()
	mkc.produced = append(mkc.produced, r)
	mkc.mutex.Unlock()
	go promise(r, nil)
}

func testRecords() []entities.Record {
	tag := entities.Tag{Slot: 6209538, Epoch: 194048, Timestamp: "2023-04-12T22:27:59.000Z"}
	return []entities.Record{
		&entities.ExecutionPayloadSummary{Tag: tag, Withdrawals: entities.WithdrawalStats{LatestSweepIndex: -1, LatestValidatorIndex: -1}},
		&entities.WithdrawalRecord{Tag: tag, WithdrawalIndex: 1, ValidatorIndex: 2, WithdrawalAddress: "0x8626f6940e2eb28930efb4cef49b2d1f2c9c1199", WithdrawalAmount: 3},
		&entities.WithdrawalRecord{Tag: tag, WithdrawalIndex: 2, ValidatorIndex: 3, WithdrawalAddress: "0x8626f6940e2eb28930efb4cef49b2d1f2c9c1199", WithdrawalAmount: 4},
	}
}

func TestClient_Publish(t *testing.T) {
	testData := []struct {
		name        string
		shouldError bool
	}{
		{name: "TestPublish_1", shouldError: false},
		{name: "TestPublish_2", shouldError: true},
	}

	for _, testRun := range testData {
		t.Run(testRun.name, func(t *testing.T) {
			mock := &MockKafkaClient{shouldError: testRun.shouldError}
			kc := NewClient(mock, "eth-", zap.NewNop().Sugar())

			err := kc.Publish(context.Background(), testRecords())

			if testRun.shouldError {
				assert.Error(t, err)
				t.Logf("Err: %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, mock.produced, 3)

			topics := map[string][]string{}
			for _, r := range mock.produced {
				topics[r.Topic] = append(topics[r.Topic], string(r.Key))
			}
			assert.Equal(t, []string{"6209538"}, topics["eth-execution_payload"])
			assert.ElementsMatch(t, []string{"6209538-1", "6209538-2"}, topics["eth-withdrawals_data"])
		})
	}
}

func TestClient_CreateRecord(t *testing.T) {
	kc := NewClient(&MockKafkaClient{}, "", zap.NewNop().Sugar())

	record, err := kc.createRecord(testRecords()[1])
	require.NoError(t, err)
	assert.Equal(t, "withdrawals_data", record.Topic)
	assert.JSONEq(t, `{"slot":6209538,"epoch":194048,"timestamp":"2023-04-12T22:27:59.000Z","data_type":"withdrawals_data","withdrawal_index":1,"validator_index":2,"withdrawal_address":"0x8626f6940e2eb28930efb4cef49b2d1f2c9c1199","withdrawal_amount":3}`, string(record.Value))
}
