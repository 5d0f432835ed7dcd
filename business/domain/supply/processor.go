package supply

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/business/aggregate"
	"github.com/eth-withdrawals/withdrawals-publisher/business/domain"
	"github.com/eth-withdrawals/withdrawals-publisher/entities"
	"github.com/eth-withdrawals/withdrawals-publisher/metrics"
)

type Fetcher interface {
	GetEthSupply(ctx context.Context) (*entities.EthSupply, error)
	GetDepositContractBalance(ctx context.Context) (*big.Int, error)
}

type Publisher interface {
	Publish(ctx context.Context, records []entities.Record) error
}

type Config struct {
	Enabled    bool          `conf:"default:false"`
	RequestGap time.Duration `conf:"default:6s"`
}

// Processor publishes the circulating supply once per whole minute.
type Processor struct {
	fetcher    Fetcher
	publisher  Publisher
	requestGap time.Duration
	metrics    *metrics.ProcessingMetrics
	logger     *zap.SugaredLogger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewProcessor(fetcher Fetcher, publisher Publisher, cfg Config, metrics *metrics.ProcessingMetrics, logger *zap.SugaredLogger) *Processor {
	return &Processor{
		fetcher:    fetcher,
		publisher:  publisher,
		requestGap: cfg.RequestGap,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		sleep:      domain.Sleep,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	next := p.now().UTC().Truncate(time.Minute).Add(time.Minute)
	p.logger.Infow("Waiting until the next whole minute", "minute", next)

	for {
		if err := p.sleep(ctx, next.Sub(p.now())); err != nil {
			p.logger.Infow("Stopping supply processor")
			return nil
		}

		minute := next
		next = next.Add(time.Minute)

		err := p.processMinute(ctx, minute)
		if ctx.Err() != nil {
			p.logger.Infow("Stopping supply processor")
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "processing minute [%s]", minute.Format(time.RFC3339))
		}

		// minutes that passed during an overrun are dropped, records always carry the minute they were fetched in
		if now := p.now(); !next.After(now) {
			resume := now.UTC().Truncate(time.Minute).Add(time.Minute)
			p.logger.Warnw("Supply round overran, skipping minutes", "from", next, "skipped", int(resume.Sub(next)/time.Minute), "resumeAt", resume)
			next = resume
		}
	}
}

// processMinute only returns publishing errors. A failed fetch skips the minute.
func (p *Processor) processMinute(ctx context.Context, minute time.Time) error {
	supply, err := p.fetcher.GetEthSupply(ctx)
	if err != nil {
		p.skip(minute, err)
		return nil
	}

	if err := p.sleep(ctx, p.requestGap); err != nil {
		return nil
	}

	deposits, err := p.fetcher.GetDepositContractBalance(ctx)
	if err != nil {
		p.skip(minute, err)
		return nil
	}

	record := aggregate.CirculatingSupply(minute, *supply, deposits)
	err = p.publisher.Publish(ctx, []entities.Record{record})
	if err != nil {
		return errors.Wrap(err, "publishing circulating supply")
	}
	p.metrics.AddPublishedRecords(string(entities.StreamSupply), 1)
	p.logger.Infow("Published circulating supply", "minute", record.Timestamp, "circulatingSupply", record.CirculatingSupply.String())

	return nil
}

func (p *Processor) skip(minute time.Time, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	reason := entities.ErrorKind(err)
	p.logger.Warnw("Could not get supply data, skipping minute", "minute", minute, "reason", reason, "error", err)
	p.metrics.IncSkippedSlots(reason)
}
