// Package booking is the single entry point for schedule, reschedule and
// cancel operations. It composes the slot conflict checker with the write
// path: direct gateway writes when the backend answers, the offline queue
// when it does not.
package booking

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pearldental/clinic-platform/internal/appointments"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/observability/metrics"
	"github.com/pearldental/clinic-platform/internal/offline"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("clinic.internal.booking")

// State tells the caller whether a write reached the backend or is parked
// in the offline queue. A queued booking is not yet guaranteed and must be
// presented differently.
type State string

const (
	StateConfirmed State = "confirmed"
	StateQueued    State = "queued"
)

// Outcome is the result of a booking operation.
type Outcome struct {
	State       State
	Appointment *appointments.Appointment

	// Reminders carries the result of the asynchronous reminder creation
	// triggered by a confirmed schedule. Nil unless reminders were
	// submitted; callers may await it or ignore it.
	Reminders <-chan error
}

// Enqueuer is the slice of the offline queue the orchestrator needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, table string, kind offline.Kind, recordID string, payload gateway.Record) error
}

// ConnectivitySource reports whether the backend is currently believed
// reachable. The connectivity monitor implements it.
type ConnectivitySource interface {
	Online() bool
}

// ReminderScheduler creates reminder rows for a confirmed appointment.
type ReminderScheduler interface {
	Schedule(ctx context.Context, appt *appointments.Appointment) error
}

// Orchestrator realizes create/reschedule/cancel as one logical operation.
type Orchestrator struct {
	gw        gateway.Gateway
	checker   *appointments.Checker
	queue     Enqueuer
	online    ConnectivitySource
	reminders ReminderScheduler
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReminders wires the reminder scheduler invoked after confirmed bookings.
func WithReminders(rs ReminderScheduler) Option {
	return func(o *Orchestrator) { o.reminders = rs }
}

// WithConnectivity wires the connectivity monitor. With it the orchestrator
// queues writes immediately when the backend is known offline instead of
// attempting a round trip that cannot succeed.
func WithConnectivity(src ConnectivitySource) Option {
	return func(o *Orchestrator) { o.online = src }
}

// WithMetrics wires booking outcome counters.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator builds the booking orchestrator.
func NewOrchestrator(gw gateway.Gateway, checker *appointments.Checker, queue Enqueuer, logger *logging.Logger, opts ...Option) *Orchestrator {
	if gw == nil || checker == nil || queue == nil {
		panic("booking: gateway, checker and queue are required")
	}
	if logger == nil {
		logger = logging.Default().Named("booking")
	}
	o := &Orchestrator{gw: gw, checker: checker, queue: queue, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Schedule books a new appointment. Validation and slot conflicts fail
// synchronously and never touch the queue. A write that fails at the
// gateway is enqueued and reported as queued, not as an error.
func (o *Orchestrator) Schedule(ctx context.Context, appt *appointments.Appointment) (*Outcome, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.schedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic_id", appt.ClinicID),
		attribute.String("date", appt.Date),
		attribute.String("time", appt.Time),
	)

	if err := appt.Validate(); err != nil {
		o.observe("schedule", "invalid")
		return nil, err
	}

	// A backend known to be offline cannot answer the conflict check; the
	// booking is parked for replay instead of wasting a doomed round trip.
	if o.backendOffline() {
		return o.queueSchedule(ctx, appt)
	}

	available, err := o.checker.CheckAvailability(ctx, appt.ClinicID, appt.Date, appt.Time, "")
	if err != nil {
		// The failed call itself flips the monitor when it was a
		// connectivity loss; in that case queue rather than fail.
		if o.backendOffline() {
			return o.queueSchedule(ctx, appt)
		}
		// Fail closed: no write, no enqueue, caller retries explicitly.
		o.observe("schedule", "check_failed")
		return nil, fmt.Errorf("booking: availability check: %w", err)
	}
	if !available {
		o.observeConflict()
		o.observe("schedule", "conflict")
		return nil, appointments.ErrSlotTaken
	}

	if appt.Status == "" {
		appt.Status = appointments.StatusPending
	}

	row, err := o.gw.Insert(ctx, appointments.Table, appt.ToRecord())
	if err != nil {
		o.logger.Warn("direct write failed, queueing appointment", "error", err,
			"clinic_id", appt.ClinicID, "date", appt.Date, "time", appt.Time)
		return o.queueSchedule(ctx, appt)
	}

	created := appointments.FromRecord(row)
	o.observe("schedule", string(StateConfirmed))
	return &Outcome{
		State:       StateConfirmed,
		Appointment: created,
		Reminders:   o.submitReminders(ctx, created),
	}, nil
}

// Reschedule moves an existing appointment to a new slot, re-running the
// conflict check with the appointment's own row excluded, and appends the
// reason to its notes.
func (o *Orchestrator) Reschedule(ctx context.Context, id, newDate, newTime, reason string) (*Outcome, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id))

	existing, err := o.lookup(ctx, id)
	if err != nil {
		o.observe("reschedule", "failed")
		return nil, err
	}

	available, err := o.checker.CheckAvailability(ctx, existing.ClinicID, newDate, newTime, id)
	if err != nil {
		o.observe("reschedule", "check_failed")
		return nil, fmt.Errorf("booking: availability check: %w", err)
	}
	if !available {
		o.observeConflict()
		o.observe("reschedule", "conflict")
		return nil, appointments.ErrSlotTaken
	}

	existing.Date = newDate
	existing.Time = newTime
	existing.AppendNote("rescheduled: " + reason)
	patch := gateway.Record{
		"date":  existing.Date,
		"time":  existing.Time,
		"notes": existing.Notes,
	}

	return o.applyPatch(ctx, "reschedule", existing, patch)
}

// Cancel marks an appointment cancelled and appends the reason to its
// notes. Whether the freed slot becomes bookable again is the checker's
// cancelled-slot rule, not decided here.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (*Outcome, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id))

	existing, err := o.lookup(ctx, id)
	if err != nil {
		o.observe("cancel", "failed")
		return nil, err
	}

	existing.Status = appointments.StatusCancelled
	existing.AppendNote("cancelled: " + reason)
	patch := gateway.Record{
		"status": string(appointments.StatusCancelled),
		"notes":  existing.Notes,
	}

	return o.applyPatch(ctx, "cancel", existing, patch)
}

// applyPatch writes an update through the gateway, falling back to the
// offline queue when the backend is unreachable.
func (o *Orchestrator) applyPatch(ctx context.Context, operation string, appt *appointments.Appointment, patch gateway.Record) (*Outcome, error) {
	if o.backendOffline() {
		return o.queuePatch(ctx, operation, appt, patch)
	}

	row, err := o.gw.Update(ctx, appointments.Table, appt.ID, patch)
	if err != nil {
		o.logger.Warn("direct update failed, queueing patch", "error", err,
			"operation", operation, "appointment_id", appt.ID)
		return o.queuePatch(ctx, operation, appt, patch)
	}

	o.observe(operation, string(StateConfirmed))
	return &Outcome{State: StateConfirmed, Appointment: appointments.FromRecord(row)}, nil
}

// backendOffline is true only when a connectivity source is wired and it
// reports the backend unreachable. Without one the orchestrator learns of
// outages solely from failed calls.
func (o *Orchestrator) backendOffline() bool {
	return o.online != nil && !o.online.Online()
}

// queueSchedule parks a new booking in the offline queue and reports it as
// queued. The slot is not conflict-checked; the front desk reconciles
// collisions when the queue replays.
func (o *Orchestrator) queueSchedule(ctx context.Context, appt *appointments.Appointment) (*Outcome, error) {
	if appt.Status == "" {
		appt.Status = appointments.StatusPending
	}
	if err := o.queue.Enqueue(ctx, appointments.Table, offline.KindInsert, "", appt.ToRecord()); err != nil {
		o.observe("schedule", "failed")
		return nil, fmt.Errorf("booking: enqueue schedule: %w", err)
	}
	o.logger.Info("appointment queued for replay",
		"clinic_id", appt.ClinicID, "date", appt.Date, "time", appt.Time)
	o.observe("schedule", string(StateQueued))
	return &Outcome{State: StateQueued, Appointment: appt}, nil
}

func (o *Orchestrator) queuePatch(ctx context.Context, operation string, appt *appointments.Appointment, patch gateway.Record) (*Outcome, error) {
	if err := o.queue.Enqueue(ctx, appointments.Table, offline.KindUpdate, appt.ID, patch); err != nil {
		o.observe(operation, "failed")
		return nil, fmt.Errorf("booking: enqueue %s: %w", operation, err)
	}
	o.observe(operation, string(StateQueued))
	return &Outcome{State: StateQueued, Appointment: appt}, nil
}

// lookup fetches one appointment by ID. A gateway failure here surfaces to
// the caller: without the current row we cannot conflict-check or build a
// faithful patch, so the operation fails closed rather than queueing blind.
func (o *Orchestrator) lookup(ctx context.Context, id string) (*appointments.Appointment, error) {
	rows, err := o.gw.Query(ctx, appointments.Table, gateway.Filter{"id": id})
	if err != nil {
		return nil, fmt.Errorf("booking: load appointment %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, appointments.ErrNotFound
	}
	return appointments.FromRecord(rows[0]), nil
}

// submitReminders kicks off reminder creation for a confirmed appointment
// and hands back the result channel. Failures are logged here regardless of
// whether the caller awaits the channel, so they are never lost.
func (o *Orchestrator) submitReminders(ctx context.Context, appt *appointments.Appointment) <-chan error {
	if o.reminders == nil {
		return nil
	}
	result := make(chan error, 1)
	// Detach from the request context so an impatient client cannot cancel
	// reminder creation for an already-committed booking.
	ctx = context.WithoutCancel(ctx)
	go func() {
		err := o.reminders.Schedule(ctx, appt)
		if err != nil {
			o.logger.Error("reminder scheduling failed", "error", err, "appointment_id", appt.ID)
		}
		result <- err
	}()
	return result
}

func (o *Orchestrator) observe(operation, outcome string) {
	o.metrics.ObserveOutcome(operation, outcome)
}

func (o *Orchestrator) observeConflict() {
	o.metrics.ObserveConflict()
}
