package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pearldental/clinic-platform/internal/appointments"
	"github.com/pearldental/clinic-platform/internal/connectivity"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/offline"
)

func candidate() *appointments.Appointment {
	return &appointments.Appointment{
		PatientName: "X",
		Phone:       "555",
		Date:        "2025-03-01",
		Time:        "09:00",
		ClinicID:    "A",
		Service:     "cleaning",
	}
}

func newTestRig(t *testing.T) (*Orchestrator, *gateway.Memory, *offline.Queue) {
	t.Helper()
	gw := gateway.NewMemory()
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)
	checker := appointments.NewChecker(gw, nil)
	orch := NewOrchestrator(gw, checker, queue, nil)
	return orch, gw, queue
}

func TestScheduleConfirmed(t *testing.T) {
	orch, gw, queue := newTestRig(t)
	ctx := context.Background()

	outcome, err := orch.Schedule(ctx, candidate())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if outcome.State != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome.State)
	}
	if outcome.Appointment.ID == "" {
		t.Fatal("confirmed appointment must carry the backend ID")
	}
	if outcome.Appointment.Status != appointments.StatusPending {
		t.Fatalf("unexpected status %s", outcome.Appointment.Status)
	}
	if queue.Len() != 0 {
		t.Fatalf("queue should stay empty, has %d", queue.Len())
	}

	rows, _ := gw.Query(ctx, appointments.Table, gateway.Filter{"clinic_id": "A"})
	if len(rows) != 1 {
		t.Fatalf("expected one stored row, got %d", len(rows))
	}
}

func TestScheduleValidationNamesMissingFields(t *testing.T) {
	orch, _, queue := newTestRig(t)

	appt := candidate()
	appt.Date = ""
	appt.Service = ""

	_, err := orch.Schedule(context.Background(), appt)
	var verr *appointments.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Missing) != 2 {
		t.Fatalf("expected two missing fields, got %v", verr.Missing)
	}
	if queue.Len() != 0 {
		t.Fatal("validation failures must never be queued")
	}
}

func TestScheduleSlotConflict(t *testing.T) {
	orch, _, queue := newTestRig(t)
	ctx := context.Background()

	if _, err := orch.Schedule(ctx, candidate()); err != nil {
		t.Fatalf("first schedule: %v", err)
	}

	second := candidate()
	second.PatientName = "Y"
	_, err := orch.Schedule(ctx, second)
	if !errors.Is(err, appointments.ErrSlotTaken) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if queue.Len() != 0 {
		t.Fatal("conflicts must never be queued")
	}
}

func TestScheduleFailsClosedWhenCheckErrors(t *testing.T) {
	orch, gw, queue := newTestRig(t)
	gw.SetOnline(false)

	_, err := orch.Schedule(context.Background(), candidate())
	if err == nil {
		t.Fatal("expected error when availability check cannot run")
	}
	if errors.Is(err, appointments.ErrSlotTaken) {
		t.Fatalf("check failure must not masquerade as a conflict: %v", err)
	}
	if queue.Len() != 0 {
		t.Fatal("fail-closed means no write and no enqueue")
	}
}

// writeFailGateway answers reads but refuses writes, simulating a backend
// that drops mutations mid-session.
type writeFailGateway struct {
	*gateway.Memory
	failWrites bool
}

func (g *writeFailGateway) Insert(ctx context.Context, table string, record gateway.Record) (gateway.Record, error) {
	if g.failWrites {
		return nil, gateway.ErrOffline
	}
	return g.Memory.Insert(ctx, table, record)
}

func (g *writeFailGateway) Update(ctx context.Context, table, id string, patch gateway.Record) (gateway.Record, error) {
	if g.failWrites {
		return nil, gateway.ErrOffline
	}
	return g.Memory.Update(ctx, table, id, patch)
}

func TestScheduleQueuedWhenWriteFails(t *testing.T) {
	gw := &writeFailGateway{Memory: gateway.NewMemory(), failWrites: true}
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)
	orch := NewOrchestrator(gw, appointments.NewChecker(gw, nil), queue, nil)
	ctx := context.Background()

	outcome, err := orch.Schedule(ctx, candidate())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if outcome.State != StateQueued {
		t.Fatalf("expected queued, got %s", outcome.State)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one queued op, got %d", queue.Len())
	}

	gw.failWrites = false
	if err := queue.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if queue.Len() != 0 {
		t.Fatalf("queue should drain clean, has %d", queue.Len())
	}
	rows, _ := gw.Query(ctx, appointments.Table, gateway.Filter{"clinic_id": "A", "date": "2025-03-01", "time": "09:00"})
	if len(rows) != 1 {
		t.Fatalf("expected replayed appointment, got %d rows", len(rows))
	}
}

func TestRescheduleMovesSlotAndAppendsReason(t *testing.T) {
	orch, gw, _ := newTestRig(t)
	ctx := context.Background()

	outcome, err := orch.Schedule(ctx, candidate())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	id := outcome.Appointment.ID

	moved, err := orch.Reschedule(ctx, id, "2025-03-02", "10:00", "patient request")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.State != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", moved.State)
	}
	if moved.Appointment.Date != "2025-03-02" || moved.Appointment.Time != "10:00" {
		t.Fatalf("slot not moved: %s %s", moved.Appointment.Date, moved.Appointment.Time)
	}
	if moved.Appointment.Notes == "" {
		t.Fatal("reason must be appended to notes")
	}

	rows, _ := gw.Query(ctx, appointments.Table, gateway.Filter{"id": id})
	if rows[0].String("date") != "2025-03-02" {
		t.Fatalf("backend row not updated: %v", rows[0])
	}
}

func TestRescheduleIntoOwnSlotAllowed(t *testing.T) {
	orch, _, _ := newTestRig(t)
	ctx := context.Background()

	outcome, _ := orch.Schedule(ctx, candidate())

	// Same slot, only the reason changes; the row's own presence must not
	// count as a conflict.
	if _, err := orch.Reschedule(ctx, outcome.Appointment.ID, "2025-03-01", "09:00", "confirmed time"); err != nil {
		t.Fatalf("reschedule into own slot: %v", err)
	}
}

func TestRescheduleIntoTakenSlotConflicts(t *testing.T) {
	orch, _, _ := newTestRig(t)
	ctx := context.Background()

	first, _ := orch.Schedule(ctx, candidate())

	second := candidate()
	second.Time = "10:00"
	if _, err := orch.Schedule(ctx, second); err != nil {
		t.Fatalf("second schedule: %v", err)
	}

	_, err := orch.Reschedule(ctx, first.Appointment.ID, "2025-03-01", "10:00", "earlier please")
	if !errors.Is(err, appointments.ErrSlotTaken) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	orch, _, _ := newTestRig(t)

	_, err := orch.Reschedule(context.Background(), "nope", "2025-03-02", "10:00", "")
	if !errors.Is(err, appointments.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancelKeepsSlotBlockedByDefault(t *testing.T) {
	orch, _, _ := newTestRig(t)
	ctx := context.Background()

	outcome, _ := orch.Schedule(ctx, candidate())

	cancelled, err := orch.Cancel(ctx, outcome.Appointment.ID, "sick")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Appointment.Status != appointments.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Appointment.Status)
	}
	if cancelled.Appointment.Notes == "" {
		t.Fatal("reason must be appended to notes")
	}

	// Default rule: the cancelled row still blocks its slot.
	_, err = orch.Schedule(ctx, candidate())
	if !errors.Is(err, appointments.ErrSlotTaken) {
		t.Fatalf("expected cancelled slot to stay blocked, got %v", err)
	}
}

func TestCancelQueuedWhenUpdateFails(t *testing.T) {
	gw := &writeFailGateway{Memory: gateway.NewMemory()}
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)
	orch := NewOrchestrator(gw, appointments.NewChecker(gw, nil), queue, nil)
	ctx := context.Background()

	outcome, err := orch.Schedule(ctx, candidate())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	gw.failWrites = true
	cancelled, err := orch.Cancel(ctx, outcome.Appointment.ID, "moving away")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != StateQueued {
		t.Fatalf("expected queued, got %s", cancelled.State)
	}

	gw.failWrites = false
	if err := queue.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	rows, _ := gw.Query(ctx, appointments.Table, gateway.Filter{"id": outcome.Appointment.ID})
	if rows[0].String("status") != string(appointments.StatusCancelled) {
		t.Fatalf("replayed cancel not applied: %v", rows[0])
	}
}

type recordingReminders struct {
	scheduled chan *appointments.Appointment
}

func (r *recordingReminders) Schedule(_ context.Context, appt *appointments.Appointment) error {
	r.scheduled <- appt
	return nil
}

func TestScheduleSubmitsReminders(t *testing.T) {
	gw := gateway.NewMemory()
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)
	rem := &recordingReminders{scheduled: make(chan *appointments.Appointment, 1)}
	orch := NewOrchestrator(gw, appointments.NewChecker(gw, nil), queue, nil, WithReminders(rem))

	outcome, err := orch.Schedule(context.Background(), candidate())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if outcome.Reminders == nil {
		t.Fatal("confirmed schedule must submit reminders")
	}

	select {
	case appt := <-rem.scheduled:
		if appt.ID != outcome.Appointment.ID {
			t.Fatalf("reminders scheduled for wrong appointment %s", appt.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("reminder submission never ran")
	}
	if err := <-outcome.Reminders; err != nil {
		t.Fatalf("reminder result: %v", err)
	}
}

// Full offline round trip: schedule while the backend is down, reconnect,
// and let the connectivity monitor trigger the drain.
func TestScheduleQueuedWhileBackendOffline(t *testing.T) {
	inner := gateway.NewMemory()
	monitor := connectivity.NewMonitor(nil)
	gw := gateway.NewMonitored(inner, monitor)
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)
	orch := NewOrchestrator(gw, appointments.NewChecker(gw, nil), queue, nil,
		WithConnectivity(monitor))
	ctx := context.Background()

	inner.SetOnline(false)
	// The monitor still believes the backend is up, so this request pays
	// for the failed availability check; the failure flips the monitor and
	// the booking lands in the queue instead of erroring.
	outcome, err := orch.Schedule(ctx, candidate())
	if err != nil {
		t.Fatalf("schedule while offline: %v", err)
	}
	if outcome.State != StateQueued {
		t.Fatalf("expected queued outcome, got %s", outcome.State)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one queued operation, got %d", queue.Len())
	}
	if monitor.Online() {
		t.Fatal("failed check should have flipped the monitor offline")
	}

	// With the outage already known, the next request queues without
	// another backend round trip.
	second := candidate()
	second.Time = "10:00"
	outcome, err = orch.Schedule(ctx, second)
	if err != nil {
		t.Fatalf("schedule during known outage: %v", err)
	}
	if outcome.State != StateQueued {
		t.Fatalf("expected queued outcome, got %s", outcome.State)
	}
	if queue.Len() != 2 {
		t.Fatalf("expected two queued operations, got %d", queue.Len())
	}
}

// failQueryGateway breaks reads with a non-connectivity error.
type failQueryGateway struct {
	*gateway.Memory
}

func (g *failQueryGateway) Query(ctx context.Context, table string, filter gateway.Filter) ([]gateway.Record, error) {
	return nil, errors.New("row decode")
}

func TestScheduleFailsClosedOnApplicationError(t *testing.T) {
	monitor := connectivity.NewMonitor(nil)
	gw := gateway.NewMonitored(&failQueryGateway{Memory: gateway.NewMemory()}, monitor)
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)
	orch := NewOrchestrator(gw, appointments.NewChecker(gw, nil), queue, nil,
		WithConnectivity(monitor))

	// The check failed for a reason that is not an outage: the monitor
	// stays online and the booking must not be queued.
	if _, err := orch.Schedule(context.Background(), candidate()); err == nil {
		t.Fatal("expected fail-closed schedule on application error")
	}
	if !monitor.Online() {
		t.Fatal("application errors must not flip the monitor")
	}
	if queue.Len() != 0 {
		t.Fatal("application errors must never be queued")
	}
}

func TestOfflineScheduleDrainsOnReconnect(t *testing.T) {
	inner := gateway.NewMemory()
	monitor := connectivity.NewMonitor(nil)
	gw := gateway.NewMonitored(inner, monitor)
	queue := offline.NewQueue(offline.NewMemoryStorage(), gw, nil)

	drained := make(chan struct{}, 1)
	monitor.OnReconnect(func() {
		_ = queue.Drain(context.Background())
		drained <- struct{}{}
	})

	orch := NewOrchestrator(gw, appointments.NewChecker(gw, nil), queue, nil,
		WithConnectivity(monitor))
	ctx := context.Background()

	inner.SetOnline(false)
	outcome, err := orch.Schedule(ctx, candidate())
	if err != nil {
		t.Fatalf("schedule while offline: %v", err)
	}
	if outcome.State != StateQueued {
		t.Fatalf("expected queued outcome, got %s", outcome.State)
	}
	if monitor.Online() {
		t.Fatal("monitor should have observed the offline gateway")
	}

	inner.SetOnline(true)
	// Next successful call flips the monitor back online and fires the
	// reconnect drain.
	if _, err := gw.Query(ctx, appointments.Table, gateway.Filter{"clinic_id": "A"}); err != nil {
		t.Fatalf("probe query: %v", err)
	}

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("reconnect drain never fired")
	}
	if queue.Len() != 0 {
		t.Fatalf("queue should be empty after reconnect drain, has %d", queue.Len())
	}
	rows, _ := inner.Query(ctx, appointments.Table, gateway.Filter{"clinic_id": "A", "date": "2025-03-01", "time": "09:00"})
	if len(rows) != 1 {
		t.Fatalf("expected one replayed appointment, got %d", len(rows))
	}
}
