package supply

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
	"github.com/eth-withdrawals/withdrawals-publisher/metrics"
)

var ErrMock = errors.New("mock error")

var m = metrics.NewProcessingMetrics("test", "supply")

type FakeFetcher struct {
	supplyErr  error
	balanceErr error
	calls      []string
}

func (ff *FakeFetcher) GetEthSupply(_ context.Context) (*entities.EthSupply, error) {
	ff.calls = append(ff.calls, "ethsupply2")
	if ff.supplyErr != nil {
		return nil, ff.supplyErr
	}
	return &entities.EthSupply{
		ElSupply:           big.NewInt(1000),
		BurntFees:          big.NewInt(100),
		StakingRewards:     big.NewInt(30),
		StakingWithdrawals: big.NewInt(20),
	}, nil
}

func (ff *FakeFetcher) GetDepositContractBalance(_ context.Context) (*big.Int, error) {
	ff.calls = append(ff.calls, "balance")
	if ff.balanceErr != nil {
		return nil, ff.balanceErr
	}
	return big.NewInt(500), nil
}

type MockPublisher struct {
	published   []entities.Record
	shouldError bool
}

func (mp *MockPublisher) Publish(_ context.Context, records []entities.Record) error {
	if mp.shouldError {
		return ErrMock
	}
	mp.published = append(mp.published, records...)
	return nil
}

// fakeClock advances its time by every sleep.
type fakeClock struct {
	current time.Time
	sleeps  []time.Duration
	limit   int
	cancel  context.CancelFunc
}

func (fc *fakeClock) now() time.Time { return fc.current }

func (fc *fakeClock) sleep(_ context.Context, d time.Duration) error {
	fc.sleeps = append(fc.sleeps, d)
	if len(fc.sleeps) > fc.limit {
		fc.cancel()
		return context.Canceled
	}
	if d > 0 {
		fc.current = fc.current.Add(d)
	}
	return nil
}

func newTestProcessor(fetcher Fetcher, publisher Publisher) *Processor {
	logger, _ := zap.NewDevelopment()
	return NewProcessor(fetcher, publisher, Config{RequestGap: 6 * time.Second}, m, logger.Sugar())
}

func TestSupplyProcessor_Start_AlignsToWholeMinutes(t *testing.T) {
	publisher := &MockPublisher{}
	processor := newTestProcessor(&FakeFetcher{}, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{current: time.Date(2023, 4, 12, 22, 26, 45, 0, time.UTC), limit: 4, cancel: cancel}
	processor.now = clock.now
	processor.sleep = clock.sleep

	require.NoError(t, processor.Start(ctx))

	// wait for the minute, request gap, wait for the next minute, request gap, then stop
	assert.Equal(t, []time.Duration{15 * time.Second, 6 * time.Second, 54 * time.Second, 6 * time.Second, 54 * time.Second}, clock.sleeps)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, "2023-04-12T22:27:00Z", publisher.published[0].Key())
	assert.Equal(t, "2023-04-12T22:28:00Z", publisher.published[1].Key())

	record := publisher.published[0].(*entities.SupplyRecord)
	assert.Equal(t, int64(420), record.CirculatingSupply.Int64())
}

func TestSupplyProcessor_Start_SkipsOverrunMinutes(t *testing.T) {
	publisher := &MockPublisher{}
	processor := newTestProcessor(&FakeFetcher{}, publisher)
	processor.requestGap = 150 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{current: time.Date(2023, 4, 12, 22, 26, 45, 0, time.UTC), limit: 6, cancel: cancel}
	processor.now = clock.now
	processor.sleep = clock.sleep

	require.NoError(t, processor.Start(ctx))

	// every round takes two and a half minutes, the minutes passed in between are not published late
	assert.Equal(t, []time.Duration{
		15 * time.Second, 150 * time.Second,
		30 * time.Second, 150 * time.Second,
		30 * time.Second, 150 * time.Second,
		30 * time.Second,
	}, clock.sleeps)
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}

	var keys []string
	for _, record := range publisher.published {
		keys = append(keys, record.Key())
	}
	assert.Equal(t, []string{"2023-04-12T22:27:00Z", "2023-04-12T22:30:00Z", "2023-04-12T22:33:00Z"}, keys)
}

func TestSupplyProcessor_ProcessMinute_SkipsOnFetchError(t *testing.T) {
	minute := time.Date(2023, 4, 12, 22, 27, 0, 0, time.UTC)

	fetcher := &FakeFetcher{supplyErr: &entities.RemoteAPIError{Message: "NOTOK"}}
	publisher := &MockPublisher{}
	processor := newTestProcessor(fetcher, publisher)
	processor.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	require.NoError(t, processor.processMinute(context.Background(), minute))
	assert.Equal(t, []string{"ethsupply2"}, fetcher.calls)
	assert.Empty(t, publisher.published)

	fetcher = &FakeFetcher{balanceErr: &entities.NetworkError{Err: ErrMock}}
	processor = newTestProcessor(fetcher, publisher)
	processor.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	require.NoError(t, processor.processMinute(context.Background(), minute))
	assert.Equal(t, []string{"ethsupply2", "balance"}, fetcher.calls)
	assert.Empty(t, publisher.published)
}

func TestSupplyProcessor_Start_ReturnsPublishError(t *testing.T) {
	processor := newTestProcessor(&FakeFetcher{}, &MockPublisher{shouldError: true})
	processor.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	err := processor.Start(context.Background())
	require.ErrorIs(t, err, ErrMock)
}
