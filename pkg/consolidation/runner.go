package consolidation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often the background runner kicks off a run.
const DefaultInterval = time.Hour

// Runner drives a Consolidator on a timer. Runs are strictly sequential;
// a tick that fires while a run is in progress waits for it.
type Runner struct {
	consolidator *Consolidator
	interval     time.Duration
	logger       *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewRunner creates a background runner. Interval <= 0 uses DefaultInterval.
func NewRunner(c *Consolidator, interval time.Duration, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Runner{
		consolidator: c,
		interval:     interval,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the timer loop. The first run fires after one interval.
func (r *Runner) Start() {
	go r.loop()
}

// Stop halts the timer loop and waits for any in-progress run to finish.
func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Runner) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.consolidator.RunOnce(context.Background()); err != nil {
				r.logger.Error("scheduled consolidation run failed", zap.Error(err))
			}
		case <-r.stop:
			return
		}
	}
}
