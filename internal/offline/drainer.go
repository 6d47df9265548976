package offline

import (
	"context"
	"time"

	"github.com/pearldental/clinic-platform/pkg/logging"
)

// Drainer periodically drains the queue as a safety net behind the
// reconnect trigger, so operations deferred by backoff are eventually
// retried even when connectivity never flaps again.
type Drainer struct {
	queue    *Queue
	logger   *logging.Logger
	interval time.Duration
}

// NewDrainer creates a periodic drainer.
func NewDrainer(queue *Queue, logger *logging.Logger) *Drainer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Drainer{
		queue:    queue,
		logger:   logger,
		interval: 30 * time.Second,
	}
}

// WithInterval overrides the drain interval.
func (d *Drainer) WithInterval(interval time.Duration) *Drainer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Run drains on a ticker until the context is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	if d.queue == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Drainer) drain(ctx context.Context) {
	if err := d.queue.Drain(ctx); err != nil {
		d.logger.Error("periodic drain failed", "error", err)
	}
}
