package domain

import (
	"context"
	"time"
)

const (
	PipelineBlocks     = "blocks"
	PipelineValidators = "validators"
	PipelineSupply     = "supply"
)

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
