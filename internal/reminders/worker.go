package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// SMSSender abstracts outbound SMS sending.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

// Worker dispatches due reminders and marks them sent. Failures are logged
// and the reminder stays pending for the next tick.
type Worker struct {
	gw       gateway.Gateway
	sender   SMSSender
	logger   *logging.Logger
	from     string
	interval time.Duration
	now      func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithSMSFrom sets the sender number on outbound reminders.
func WithSMSFrom(from string) WorkerOption {
	return func(w *Worker) { w.from = from }
}

// WithInterval overrides the polling interval of Run.
func WithInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// NewWorker creates a reminder dispatch worker.
func NewWorker(gw gateway.Gateway, sender SMSSender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if gw == nil || sender == nil {
		panic("reminders: gateway and sender required")
	}
	if logger == nil {
		logger = logging.Default().Named("reminders")
	}
	w := &Worker{gw: gw, sender: sender, logger: logger, interval: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessDue sends every pending reminder whose due time has passed.
// Returns the number dispatched.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	rows, err := w.gw.Query(ctx, Table, gateway.Filter{"status": string(StatusPending)})
	if err != nil {
		return 0, fmt.Errorf("reminders worker: list pending: %w", err)
	}

	now := w.now().UTC()
	processed := 0
	for _, row := range rows {
		r := FromRecord(row)
		if !r.Due(now) {
			continue
		}
		if err := w.dispatch(ctx, r, now); err != nil {
			w.logger.Error("reminder dispatch failed", "id", r.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *Worker) dispatch(ctx context.Context, r *Reminder, now time.Time) error {
	if err := w.sender.SendSMS(ctx, w.from, r.Phone, Message(r)); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}

	patch := gateway.Record{
		"status":  string(StatusSent),
		"sent_at": now.Format(time.RFC3339),
	}
	if _, err := w.gw.Update(ctx, Table, r.ID, patch); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	w.logger.Info("reminder sent", "id", r.ID, "appointment_id", r.AppointmentID, "offset", r.Offset)
	return nil
}

// Run polls for due reminders until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("reminder worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("reminder pass failed", "error", err)
			}
		}
	}
}

// Message renders the patient-facing reminder text. The appointment start
// is reconstructed from the due time plus the lead offset.
func Message(r *Reminder) string {
	if due, derr := time.Parse(time.RFC3339, r.DueAt); derr == nil {
		if offset, oerr := time.ParseDuration(r.Offset); oerr == nil {
			start := due.Add(offset)
			return fmt.Sprintf("Hi %s, a reminder from your dental clinic: %s on %s at %s. Reply if you need to reschedule.",
				r.PatientName, r.Service, start.Format("Monday, Jan 2"), start.Format("15:04"))
		}
	}
	return fmt.Sprintf("Hi %s, a reminder about your upcoming %s appointment.", r.PatientName, r.Service)
}
