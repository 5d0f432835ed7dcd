package sink

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type Target interface {
	Name() string
	Publish(ctx context.Context, records []entities.Record) error
}

type Config struct {
	Targets []string `conf:"default:file"`
	DataDir string   `conf:"default:data"`
}

// Publisher writes every batch to all configured targets in order. The first failing target aborts the batch.
type Publisher struct {
	targets []Target
	logger  *zap.SugaredLogger
}

func NewPublisher(logger *zap.SugaredLogger, targets ...Target) *Publisher {
	return &Publisher{
		targets: targets,
		logger:  logger,
	}
}

func (p *Publisher) Publish(ctx context.Context, records []entities.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, target := range p.targets {
		if err := target.Publish(ctx, records); err != nil {
			return errors.Wrapf(err, "publishing %d records to %s", len(records), target.Name())
		}
	}
	p.logger.Debugw("Published records", "count", len(records), "targets", p.names())
	return nil
}

func (p *Publisher) names() string {
	names := make([]string, 0, len(p.targets))
	for _, target := range p.targets {
		names = append(names, target.Name())
	}
	return strings.Join(names, ",")
}
