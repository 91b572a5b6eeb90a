package skydash

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/skydash/skydash/observability"
)

// Refresher periodically revalidates the active location and the favorites
// while the auto-refresh preference is on. The query layer itself never
// polls; this is the one scheduled trigger, and flipping the preference off
// silences it without stopping the scheduler.
type Refresher struct {
	scheduler *gocron.Scheduler
	dash      *Dashboard
	interval  time.Duration
	logger    *zap.Logger
}

// NewRefresher creates a Refresher ticking at interval (minimum one minute).
func NewRefresher(dash *Dashboard, interval time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		scheduler: gocron.NewScheduler(time.UTC),
		dash:      dash,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (r *Refresher) Start() error {
	minutes := int(r.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := r.scheduler.Every(minutes).Minutes().Do(func() {
		if !r.dash.Store().Get().AutoRefresh {
			return
		}
		observability.AutoRefreshRunsTotal.Inc()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := r.dash.Refresh(ctx); err != nil {
			r.logger.Warn("auto-refresh of active location failed", zap.Error(err))
		}
		r.dash.RefreshFavorites(ctx)
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
