package blocks

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/business/chain"
	"github.com/eth-withdrawals/withdrawals-publisher/entities"
	"github.com/eth-withdrawals/withdrawals-publisher/metrics"
)

var ErrMock = errors.New("mock error")

var m = metrics.NewProcessingMetrics("test", "blocks")

type MockFetcher struct {
	finalizedSlots []uint64
	finalizedCalls int
	failingSlots   map[uint64]error
	fetchedSlots   []uint64
	noPayload      bool
}

func (mf *MockFetcher) GetFinalizedSlot(_ context.Context) (uint64, error) {
	if mf.finalizedCalls >= len(mf.finalizedSlots) {
		return 0, &entities.NetworkError{Path: "/eth/v1/beacon/headers/finalized", Err: ErrMock}
	}
	slot := mf.finalizedSlots[mf.finalizedCalls]
	mf.finalizedCalls++
	return slot, nil
}

func (mf *MockFetcher) GetBlock(_ context.Context, slot uint64) (*entities.BlockResponse, error) {
	mf.fetchedSlots = append(mf.fetchedSlots, slot)
	if err, ok := mf.failingSlots[slot]; ok {
		return nil, err
	}

	block := &entities.BlockResponse{Version: "capella", Message: &entities.BeaconBlock{Slot: slot}}
	if mf.noPayload {
		return block, nil
	}
	block.Message.ExecutionPayload = &entities.ExecutionPayload{
		BaseFeePerGas: big.NewInt(1),
		Transactions:  []string{"0x01"},
		Withdrawals: []entities.Withdrawal{
			{Index: slot * 2, ValidatorIndex: 1, Address: "0xA", Amount: 10},
			{Index: slot*2 + 1, ValidatorIndex: 2, Address: "0xB", Amount: 20},
		},
	}
	return block, nil
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

func (mp *MockPublisher) slots(stream entities.Stream) []uint64 {
	var slots []uint64
	for _, r := range mp.published {
		if r.Stream() != stream {
			continue
		}
		switch rec := r.(type) {
		case *entities.ExecutionPayloadSummary:
			slots = append(slots, rec.Slot)
		case *entities.WithdrawalRecord:
			slots = append(slots, rec.Slot)
		}
	}
	return slots
}

type FakeStatusStore struct {
	lastProcessed map[string]uint64
	skipped       map[string][]entities.SkippedSlot
}

func NewFakeStatusStore() *FakeStatusStore {
	return &FakeStatusStore{
		lastProcessed: make(map[string]uint64),
		skipped:       make(map[string][]entities.SkippedSlot),
	}
}

func (fs *FakeStatusStore) SetLastProcessedSlot(pipeline string, slot uint64) error {
	fs.lastProcessed[pipeline] = slot
	return nil
}

func (fs *FakeStatusStore) AddSkippedSlot(pipeline string, slot uint64, reason string) error {
	fs.skipped[pipeline] = append(fs.skipped[pipeline], entities.SkippedSlot{Slot: slot, Reason: reason})
	return nil
}

func newTestProcessor(fetcher Fetcher, publisher Publisher, store statusStore) *Processor {
	logger, _ := zap.NewDevelopment()
	clock := chain.NewClock(chain.Mainnet())
	return NewProcessor(fetcher, publisher, store, clock, Config{RetryDelay: time.Minute, PollInterval: time.Minute}, m, logger.Sugar())
}

func slotRange(from, to uint64) []uint64 {
	var slots []uint64
	for s := from; s < to; s++ {
		slots = append(slots, s)
	}
	return slots
}

func TestBlocksProcessor_RunCycle_FinalizedSequence(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{100, 100, 105}}
	publisher := &MockPublisher{}
	processor := newTestProcessor(fetcher, publisher, NewFakeStatusStore())

	// first poll initializes the checkpoint one epoch behind and catches up
	wait, err := processor.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)
	assert.Equal(t, slotRange(68, 100), fetcher.fetchedSlots)
	assert.Equal(t, uint64(100), processor.checkpoint)

	// second poll sees no new finality
	fetcher.fetchedSlots = nil
	wait, err = processor.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)
	assert.Empty(t, fetcher.fetchedSlots)
	assert.Equal(t, uint64(100), processor.checkpoint)

	// third poll processes exactly the new slots in order
	publisher.published = nil
	wait, err = processor.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)
	assert.Equal(t, []uint64{100, 101, 102, 103, 104}, fetcher.fetchedSlots)
	assert.Equal(t, []uint64{100, 101, 102, 103, 104}, publisher.slots(entities.StreamExecutionPayload))
	assert.Equal(t, []uint64{100, 100, 101, 101, 102, 102, 103, 103, 104, 104}, publisher.slots(entities.StreamWithdrawals))
	assert.Equal(t, uint64(105), processor.checkpoint)
}

func TestBlocksProcessor_RunCycle_CheckpointClampsAtZero(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{10}}
	processor := newTestProcessor(fetcher, &MockPublisher{}, NewFakeStatusStore())

	_, err := processor.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, slotRange(0, 10), fetcher.fetchedSlots)
	assert.Equal(t, uint64(10), processor.checkpoint)
}

func TestBlocksProcessor_RunCycle_FinalizedSlotError(t *testing.T) {
	fetcher := &MockFetcher{}
	processor := newTestProcessor(fetcher, &MockPublisher{}, NewFakeStatusStore())

	wait, err := processor.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)
	assert.False(t, processor.initialized)
	assert.Empty(t, fetcher.fetchedSlots)
}

func TestBlocksProcessor_RunCycle_SkipsFailingSlots(t *testing.T) {
	fetcher := &MockFetcher{
		finalizedSlots: []uint64{100, 105},
		failingSlots: map[uint64]error{
			101: &entities.NetworkError{Err: ErrMock},
			102: &entities.MissingDataError{Message: "could not find requested block"},
			103: &entities.SchemaValidationError{Path: "data.message.slot", Reason: "field required"},
			104: &entities.RemoteAPIError{Code: 500, Message: "boom"},
		},
	}
	publisher := &MockPublisher{}
	store := NewFakeStatusStore()
	processor := newTestProcessor(fetcher, publisher, store)

	_, err := processor.runCycle(context.Background())
	require.NoError(t, err)
	publisher.published = nil
	fetcher.fetchedSlots = nil

	_, err = processor.runCycle(context.Background())
	require.NoError(t, err)

	// every slot is attempted once, failed ones are not retried
	assert.Equal(t, []uint64{100, 101, 102, 103, 104}, fetcher.fetchedSlots)
	assert.Equal(t, []uint64{100}, publisher.slots(entities.StreamExecutionPayload))
	assert.Equal(t, uint64(105), processor.checkpoint)
	assert.Equal(t, []entities.SkippedSlot{
		{Slot: 101, Reason: "network"},
		{Slot: 102, Reason: "missing_data"},
		{Slot: 103, Reason: "schema"},
		{Slot: 104, Reason: "remote_api"},
	}, store.skipped["blocks"])
	assert.Equal(t, uint64(100), store.lastProcessed["blocks"])
}

func TestBlocksProcessor_RunCycle_BlockWithoutPayload(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{32}, noPayload: true}
	publisher := &MockPublisher{}
	processor := newTestProcessor(fetcher, publisher, NewFakeStatusStore())

	_, err := processor.runCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, publisher.published)
	assert.Equal(t, uint64(32), processor.checkpoint)
}

func TestBlocksProcessor_RunCycle_PublishErrorIsFatal(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{100}}
	processor := newTestProcessor(fetcher, &MockPublisher{shouldError: true}, NewFakeStatusStore())

	_, err := processor.runCycle(context.Background())
	require.ErrorIs(t, err, ErrMock)
	assert.Equal(t, []uint64{68}, fetcher.fetchedSlots)
	assert.Equal(t, uint64(68), processor.checkpoint)
}

func TestBlocksProcessor_Start_StopsOnCancel(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{100, 100}}
	processor := newTestProcessor(fetcher, &MockPublisher{}, NewFakeStatusStore())

	ctx, cancel := context.WithCancel(context.Background())
	var waits []time.Duration
	processor.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	err := processor.Start(ctx)
	require.NoError(t, err)
	// catch up, no new finality, finalized slot unavailable
	assert.Equal(t, []time.Duration{0, time.Minute, time.Minute}, waits)
}

func TestBlocksProcessor_Start_ReturnsPublishError(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{100}}
	processor := newTestProcessor(fetcher, &MockPublisher{shouldError: true}, NewFakeStatusStore())
	processor.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	err := processor.Start(context.Background())
	require.ErrorIs(t, err, ErrMock)
}

func TestBlocksProcessor_RunCycle_CancelledMidRange(t *testing.T) {
	fetcher := &MockFetcher{finalizedSlots: []uint64{100}}
	ctx, cancel := context.WithCancel(context.Background())
	publisher := &cancellingPublisher{cancelAfter: 3, cancel: cancel}
	processor := newTestProcessor(fetcher, publisher, NewFakeStatusStore())

	_, err := processor.runCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []uint64{68, 69, 70}, fetcher.fetchedSlots)
	assert.Equal(t, uint64(68), processor.checkpoint)
}

type cancellingPublisher struct {
	calls       int
	cancelAfter int
	cancel      context.CancelFunc
}

func (cp *cancellingPublisher) Publish(_ context.Context, _ []entities.Record) error {
	cp.calls++
	if cp.calls == cp.cancelAfter {
		cp.cancel()
	}
	return nil
}

func TestRecords(t *testing.T) {
	fetcher := &MockFetcher{}
	block, err := fetcher.GetBlock(context.Background(), 64)
	require.NoError(t, err)

	records := Records(chain.NewClock(chain.Mainnet()), block)
	require.Len(t, records, 3)

	streams := make([]entities.Stream, 0, len(records))
	for _, r := range records {
		streams = append(streams, r.Stream())
	}
	assert.Equal(t, []entities.Stream{entities.StreamExecutionPayload, entities.StreamWithdrawals, entities.StreamWithdrawals}, streams)
	assert.True(t, slices.IsSortedFunc(records[1:], func(a, b entities.Record) int {
		return int(a.(*entities.WithdrawalRecord).WithdrawalIndex) - int(b.(*entities.WithdrawalRecord).WithdrawalIndex)
	}))
}
