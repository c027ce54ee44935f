// Package jobs holds scheduled housekeeping tasks.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rrajo-portfolio/orders-service/internal/order"
)

// BacklogReporter periodically logs the number of PENDING orders, feeding
// the order backlog dashboard.
type BacklogReporter struct {
	repo     order.Repository
	interval time.Duration
}

func NewBacklogReporter(repo order.Repository, interval time.Duration) *BacklogReporter {
	return &BacklogReporter{repo: repo, interval: interval}
}

// Run blocks until ctx is cancelled.
func (r *BacklogReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := r.repo.CountByStatus(ctx, order.StatusPending)
			if err != nil {
				log.Error().Err(err).Msg("jobs: failed to count pending orders")
				continue
			}
			log.Info().Int64("pending", pending).Msg("jobs: order backlog")
		}
	}
}
