package blocks

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/business/aggregate"
	"github.com/eth-withdrawals/withdrawals-publisher/business/chain"
	"github.com/eth-withdrawals/withdrawals-publisher/business/domain"
	"github.com/eth-withdrawals/withdrawals-publisher/entities"
	"github.com/eth-withdrawals/withdrawals-publisher/metrics"
)

type Fetcher interface {
	GetFinalizedSlot(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, slot uint64) (*entities.BlockResponse, error)
}

type Publisher interface {
	Publish(ctx context.Context, records []entities.Record) error
}

type statusStore interface {
	SetLastProcessedSlot(pipeline string, slot uint64) error
	AddSkippedSlot(pipeline string, slot uint64, reason string) error
}

type Config struct {
	RetryDelay   time.Duration `conf:"default:60s"`
	PollInterval time.Duration `conf:"default:60s"`
}

// Processor walks finalized slots in order and publishes the execution payload summary and the withdrawals
// of every block. The checkpoint only lives in memory, after a restart it starts one epoch behind finality.
type Processor struct {
	fetcher      Fetcher
	publisher    Publisher
	statusStore  statusStore
	clock        *chain.Clock
	retryDelay   time.Duration
	pollInterval time.Duration
	metrics      *metrics.ProcessingMetrics
	logger       *zap.SugaredLogger
	sleep        func(ctx context.Context, d time.Duration) error

	checkpoint  uint64
	initialized bool
}

func NewProcessor(
	fetcher Fetcher,
	publisher Publisher,
	statusStore statusStore,
	clock *chain.Clock,
	cfg Config,
	metrics *metrics.ProcessingMetrics,
	logger *zap.SugaredLogger,
) *Processor {
	return &Processor{
		fetcher:      fetcher,
		publisher:    publisher,
		statusStore:  statusStore,
		clock:        clock,
		retryDelay:   cfg.RetryDelay,
		pollInterval: cfg.PollInterval,
		metrics:      metrics,
		logger:       logger,
		sleep:        domain.Sleep,
	}
}

// Start runs until ctx is cancelled or publishing fails. Failures of single slots never stop it.
func (p *Processor) Start(ctx context.Context) error {
	for {
		wait, err := p.runCycle(ctx)
		if ctx.Err() != nil {
			p.logger.Infow("Stopping blocks processor", "checkpoint", p.checkpoint)
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "running blocks cycle")
		}

		if err := p.sleep(ctx, wait); err != nil {
			p.logger.Infow("Stopping blocks processor", "checkpoint", p.checkpoint)
			return nil
		}
	}
}

// runCycle returns how long to wait before the next cycle.
func (p *Processor) runCycle(ctx context.Context) (time.Duration, error) {
	finalized, err := p.fetcher.GetFinalizedSlot(ctx)
	if err != nil {
		p.logger.Warnw("Could not get finalized slot, trying again", "retryIn", p.retryDelay, "error", err)
		return p.retryDelay, nil
	}
	p.metrics.SetSourceSlot(finalized)

	if !p.initialized {
		p.checkpoint = finalized - min(finalized, p.clock.SlotsPerEpoch())
		p.initialized = true
		p.logger.Infow("Initialized checkpoint", "finalized", finalized, "checkpoint", p.checkpoint)
	}

	if finalized <= p.checkpoint {
		p.logger.Debugw("No new finalized slot", "finalized", finalized, "checkpoint", p.checkpoint)
		return p.pollInterval, nil
	}

	p.logger.Infow("Processing slots", "from", p.checkpoint, "to", finalized-1)
	for slot := p.checkpoint; slot < finalized; slot++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := p.processSlot(ctx, slot); err != nil {
			return 0, errors.Wrapf(err, "processing slot [%d]", slot)
		}
	}
	p.checkpoint = finalized
	p.logger.Infow("Processing complete", "checkpoint", p.checkpoint)

	return 0, nil
}

func (p *Processor) processSlot(ctx context.Context, slot uint64) error {
	block, err := p.fetcher.GetBlock(ctx, slot)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.skip(slot, err)
		return nil
	}

	records := Records(p.clock, block)
	err = p.publisher.Publish(ctx, records)
	if err != nil {
		return errors.Wrap(err, "publishing records")
	}
	countByStream(records, p.metrics)

	p.metrics.SetProcessedSlot(p.clock.EpochOf(slot), slot)
	if err := p.statusStore.SetLastProcessedSlot(domain.PipelineBlocks, slot); err != nil {
		p.logger.Warnw("Could not store last processed slot", "slot", slot, "error", err)
	}
	return nil
}

func (p *Processor) skip(slot uint64, err error) {
	reason := entities.ErrorKind(err)
	if reason == "schema" {
		p.logger.Errorw("Invalid block, skipping", "slot", slot, "error", err)
	} else {
		p.logger.Warnw("Could not get block, skipping", "slot", slot, "reason", reason, "error", err)
	}

	p.metrics.IncSkippedSlots(reason)
	if err := p.statusStore.AddSkippedSlot(domain.PipelineBlocks, slot, reason); err != nil {
		p.logger.Warnw("Could not store skipped slot", "slot", slot, "error", err)
	}
}

// Records returns the execution payload summary followed by the withdrawals of a block.
func Records(clock *chain.Clock, block *entities.BlockResponse) []entities.Record {
	var records []entities.Record
	if summary, ok := aggregate.ExecutionPayloadSummary(clock, block); ok {
		records = append(records, summary)
	}
	for withdrawal := range aggregate.WithdrawalRecords(clock, block) {
		records = append(records, withdrawal)
	}
	return records
}

func countByStream(records []entities.Record, m *metrics.ProcessingMetrics) {
	counts := make(map[entities.Stream]int)
	for _, r := range records {
		counts[r.Stream()]++
	}
	for stream, count := range counts {
		m.AddPublishedRecords(string(stream), count)
	}
}
