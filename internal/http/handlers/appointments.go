package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pearldental/clinic-platform/internal/appointments"
	"github.com/pearldental/clinic-platform/internal/booking"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/notify"
	"github.com/pearldental/clinic-platform/internal/reminders"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// AppointmentsConfig holds the dependencies of the appointments handler.
type AppointmentsConfig struct {
	Orchestrator *booking.Orchestrator
	Checker      *appointments.Checker
	Gateway      gateway.Gateway
	Reminders    *reminders.Scheduler
	Notifier     *notify.Service
	Logger       *logging.Logger
}

// AppointmentsHandler serves the booking endpoints.
type AppointmentsHandler struct {
	orch      *booking.Orchestrator
	checker   *appointments.Checker
	gw        gateway.Gateway
	reminders *reminders.Scheduler
	notifier  *notify.Service
	logger    *logging.Logger
}

// NewAppointmentsHandler creates the appointments handler.
func NewAppointmentsHandler(cfg AppointmentsConfig) *AppointmentsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default().Named("http")
	}
	return &AppointmentsHandler{
		orch:      cfg.Orchestrator,
		checker:   cfg.Checker,
		gw:        cfg.Gateway,
		reminders: cfg.Reminders,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
	}
}

// CreateRequest is the booking payload.
type CreateRequest struct {
	PatientName string   `json:"patient_name"`
	Phone       string   `json:"phone"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	ClinicID    string   `json:"clinic_id"`
	Service     string   `json:"service"`
	Price       *float64 `json:"price,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// OutcomeResponse reports a booking result. Status distinguishes a
// confirmed write from one parked in the offline queue.
type OutcomeResponse struct {
	Status      string                    `json:"status"`
	Appointment *appointments.Appointment `json:"appointment"`
}

// Create books an appointment. 201 when the backend confirmed the write,
// 202 when it was queued for later sync.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appt := &appointments.Appointment{
		PatientName: req.PatientName,
		Phone:       req.Phone,
		Date:        req.Date,
		Time:        req.Time,
		ClinicID:    req.ClinicID,
		Service:     req.Service,
		Price:       req.Price,
		Notes:       req.Notes,
	}

	outcome, err := h.orch.Schedule(r.Context(), appt)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	h.notifyOutcome(outcome)

	status := http.StatusCreated
	if outcome.State == booking.StateQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, OutcomeResponse{Status: string(outcome.State), Appointment: outcome.Appointment})
}

// RescheduleRequest moves an appointment to a new slot.
type RescheduleRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

// Reschedule moves an existing appointment.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	outcome, err := h.orch.Reschedule(r.Context(), id, req.Date, req.Time, req.Reason)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	h.notifyOutcome(outcome)

	status := http.StatusOK
	if outcome.State == booking.StateQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, OutcomeResponse{Status: string(outcome.State), Appointment: outcome.Appointment})
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Cancel marks an appointment cancelled.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req CancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	outcome, err := h.orch.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	if h.notifier != nil {
		h.notifyAsync(func(ctx context.Context) error {
			return h.notifier.BookingCancelled(ctx, outcome.Appointment)
		})
	}

	status := http.StatusOK
	if outcome.State == booking.StateQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, OutcomeResponse{Status: string(outcome.State), Appointment: outcome.Appointment})
}

// List returns appointments filtered by clinic and date.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := gateway.Filter{}
	if clinicID := r.URL.Query().Get("clinic_id"); clinicID != "" {
		filter["clinic_id"] = clinicID
	}
	if date := r.URL.Query().Get("date"); date != "" {
		filter["date"] = date
	}

	rows, err := h.gw.Query(r.Context(), appointments.Table, filter)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}

	result := make([]*appointments.Appointment, 0, len(rows))
	for _, row := range rows {
		result = append(result, appointments.FromRecord(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": result})
}

// Delete removes an appointment outright (staff action) and cascades to its
// reminders.
func (h *AppointmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.gw.Delete(r.Context(), appointments.Table, id); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("delete appointment failed", "error", err, "id", id)
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	if h.reminders != nil {
		if err := h.reminders.CancelFor(r.Context(), id); err != nil {
			h.logger.Error("reminder cascade failed", "error", err, "appointment_id", id)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Availability answers whether a slot is free.
func (h *AppointmentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clinicID, date, timeOfDay := q.Get("clinic_id"), q.Get("date"), q.Get("time")
	if clinicID == "" || date == "" || timeOfDay == "" {
		writeError(w, http.StatusBadRequest, "clinic_id, date and time are required")
		return
	}

	available, err := h.checker.CheckAvailability(r.Context(), clinicID, date, timeOfDay, q.Get("exclude_id"))
	if err != nil {
		// Fail closed but tell the caller why the slot reads as taken.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"available": false,
			"error":     "availability could not be verified",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available})
}

func (h *AppointmentsHandler) writeBookingError(w http.ResponseWriter, err error) {
	var verr *appointments.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Missing: verr.Missing})
	case errors.Is(err, appointments.ErrSlotTaken):
		writeError(w, http.StatusConflict, "requested time is not available")
	case errors.Is(err, appointments.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	default:
		h.logger.Error("booking operation failed", "error", err)
		writeError(w, http.StatusBadGateway, "booking could not be completed")
	}
}

// notifyOutcome sends the patient-facing message matching the outcome,
// detached from the request so client disconnects don't drop it.
func (h *AppointmentsHandler) notifyOutcome(outcome *booking.Outcome) {
	if h.notifier == nil {
		return
	}
	appt := outcome.Appointment
	if outcome.State == booking.StateQueued {
		h.notifyAsync(func(ctx context.Context) error {
			return h.notifier.BookingQueued(ctx, appt)
		})
		return
	}
	h.notifyAsync(func(ctx context.Context) error {
		return h.notifier.BookingConfirmed(ctx, appt)
	})
}

func (h *AppointmentsHandler) notifyAsync(fn func(context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			h.logger.Error("booking notification failed", "error", err)
		}
	}()
}
