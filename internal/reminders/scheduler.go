package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pearldental/clinic-platform/internal/appointments"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// DefaultOffsets are the lead times a confirmed booking gets reminders at.
var DefaultOffsets = []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}

// Scheduler creates reminder rows for confirmed appointments.
type Scheduler struct {
	gw      gateway.Gateway
	logger  *logging.Logger
	offsets []time.Duration
	now     func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithOffsets overrides the reminder lead times.
func WithOffsets(offsets []time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if len(offsets) > 0 {
			s.offsets = offsets
		}
	}
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(gw gateway.Gateway, logger *logging.Logger, opts ...SchedulerOption) *Scheduler {
	if gw == nil {
		panic("reminders: gateway required")
	}
	if logger == nil {
		logger = logging.Default().Named("reminders")
	}
	s := &Scheduler{gw: gw, logger: logger, offsets: DefaultOffsets, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule creates one pending reminder per configured offset before the
// appointment start. Offsets that have already passed are skipped, so a
// same-day booking still gets its short-lead reminders.
func (s *Scheduler) Schedule(ctx context.Context, appt *appointments.Appointment) error {
	start, err := appt.StartTime()
	if err != nil {
		return fmt.Errorf("reminders: parse appointment start: %w", err)
	}

	now := s.now().UTC()
	var errs []error
	created := 0
	for _, offset := range s.offsets {
		dueAt := start.Add(-offset)
		if dueAt.Before(now) {
			continue
		}
		reminder := &Reminder{
			AppointmentID: appt.ID,
			ClinicID:      appt.ClinicID,
			PatientName:   appt.PatientName,
			Phone:         appt.Phone,
			Service:       appt.Service,
			Offset:        offset.String(),
			DueAt:         dueAt.UTC().Format(time.RFC3339),
			Status:        StatusPending,
		}
		if _, err := s.gw.Insert(ctx, Table, reminder.ToRecord()); err != nil {
			errs = append(errs, fmt.Errorf("offset %s: %w", offset, err))
			continue
		}
		created++
	}

	if len(errs) > 0 {
		return fmt.Errorf("reminders: schedule for appointment %s: %w", appt.ID, errors.Join(errs...))
	}

	s.logger.Info("reminders scheduled",
		"appointment_id", appt.ID, "count", created)
	return nil
}

// CancelFor deletes every reminder attached to an appointment. Called when
// the appointment itself is deleted, so reminder rows never outlive it.
func (s *Scheduler) CancelFor(ctx context.Context, appointmentID string) error {
	rows, err := s.gw.Query(ctx, Table, gateway.Filter{"appointment_id": appointmentID})
	if err != nil {
		return fmt.Errorf("reminders: list for appointment %s: %w", appointmentID, err)
	}
	for _, row := range rows {
		if err := s.gw.Delete(ctx, Table, row.ID()); err != nil {
			return fmt.Errorf("reminders: delete %s: %w", row.ID(), err)
		}
	}
	return nil
}
