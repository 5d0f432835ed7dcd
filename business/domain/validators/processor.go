package validators

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
	GetValidators(ctx context.Context, slot uint64) (*entities.ValidatorsResponse, error)
}

type Publisher interface {
	Publish(ctx context.Context, records []entities.Record) error
}

type statusStore interface {
	SetLastProcessedSlot(pipeline string, slot uint64) error
	AddSkippedSlot(pipeline string, slot uint64, reason string) error
}

type Config struct {
	Enabled    bool          `conf:"default:true"`
	RetryDelay time.Duration `conf:"default:60s"`
	Interval   time.Duration `conf:"default:1h"`
}

// Processor publishes one validator status summary per interval, taken at the finalized slot.
type Processor struct {
	fetcher     Fetcher
	publisher   Publisher
	statusStore statusStore
	clock       *chain.Clock
	retryDelay  time.Duration
	interval    time.Duration
	metrics     *metrics.ProcessingMetrics
	logger      *zap.SugaredLogger
	sleep       func(ctx context.Context, d time.Duration) error
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
		fetcher:     fetcher,
		publisher:   publisher,
		statusStore: statusStore,
		clock:       clock,
		retryDelay:  cfg.RetryDelay,
		interval:    cfg.Interval,
		metrics:     metrics,
		logger:      logger,
		sleep:       domain.Sleep,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	for {
		wait, err := p.runCycle(ctx)
		if ctx.Err() != nil {
			p.logger.Infow("Stopping validators processor")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "running validators cycle")
		}

		if err := p.sleep(ctx, wait); err != nil {
			p.logger.Infow("Stopping validators processor")
			return nil
		}
	}
}

// runCycle takes one snapshot. The interval is waited regardless of whether the snapshot could be taken,
// only a missing finalized slot is retried earlier.
func (p *Processor) runCycle(ctx context.Context) (time.Duration, error) {
	slot, err := p.fetcher.GetFinalizedSlot(ctx)
	if err != nil {
		p.logger.Warnw("Could not get finalized slot, trying again", "retryIn", p.retryDelay, "error", err)
		return p.retryDelay, nil
	}
	p.metrics.SetSourceSlot(slot)

	response, err := p.fetcher.GetValidators(ctx, slot)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		p.skip(slot, err)
		return p.interval, nil
	}

	summary, ok := aggregate.ValidatorStatusSummary(p.clock, response.Validators, slot)
	if !ok {
		p.logger.Warnw("Empty validator set, nothing to publish", "slot", slot)
		return p.interval, nil
	}

	err = p.publisher.Publish(ctx, []entities.Record{summary})
	if err != nil {
		return 0, errors.Wrapf(err, "publishing validator status for slot [%d]", slot)
	}
	p.metrics.AddPublishedRecords(string(entities.StreamValidatorStatus), 1)
	p.metrics.SetProcessedSlot(p.clock.EpochOf(slot), slot)
	if err := p.statusStore.SetLastProcessedSlot(domain.PipelineValidators, slot); err != nil {
		p.logger.Warnw("Could not store last processed slot", "slot", slot, "error", err)
	}
	p.logger.Infow("Published validator status", "slot", slot, "validators", summary.TotalCount)

	return p.interval, nil
}

func (p *Processor) skip(slot uint64, err error) {
	reason := entities.ErrorKind(err)
	if reason == "schema" {
		p.logger.Errorw("Invalid validator set, skipping snapshot", "slot", slot, "error", err)
	} else {
		p.logger.Warnw("Could not get validators, skipping snapshot", "slot", slot, "reason", reason, "error", err)
	}

	p.metrics.IncSkippedSlots(reason)
	if err := p.statusStore.AddSkippedSlot(domain.PipelineValidators, slot, reason); err != nil {
		p.logger.Warnw("Could not store skipped slot", "slot", slot, "error", err)
	}
}
