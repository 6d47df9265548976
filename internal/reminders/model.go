// Package reminders creates and dispatches appointment reminders at fixed
// offsets before the visit.
package reminders

import (
	"time"

	"github.com/pearldental/clinic-platform/internal/gateway"
)

// Table is the backend table holding reminder rows.
const Table = "reminders"

// Status tracks the lifecycle of a reminder.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

// Reminder represents one scheduled outreach before an appointment.
type Reminder struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id"`
	ClinicID      string `json:"clinic_id"`
	PatientName   string `json:"patient_name"`
	Phone         string `json:"phone"`
	Service       string `json:"service"`
	Offset        string `json:"offset"` // lead time before the visit, e.g. "24h0m0s"
	DueAt         string `json:"due_at"` // RFC 3339
	Status        Status `json:"status"`
	SentAt        string `json:"sent_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// Due reports whether the reminder should be dispatched now.
func (r *Reminder) Due(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	due, err := time.Parse(time.RFC3339, r.DueAt)
	if err != nil {
		return false
	}
	return !due.After(now)
}

// ToRecord converts the reminder into its backend row shape.
func (r *Reminder) ToRecord() gateway.Record {
	record := gateway.Record{
		"appointment_id": r.AppointmentID,
		"clinic_id":      r.ClinicID,
		"patient_name":   r.PatientName,
		"phone":          r.Phone,
		"service":        r.Service,
		"offset":         r.Offset,
		"due_at":         r.DueAt,
		"status":         string(r.Status),
	}
	if r.ID != "" {
		record["id"] = r.ID
	}
	if r.SentAt != "" {
		record["sent_at"] = r.SentAt
	}
	return record
}

// FromRecord builds a reminder from a backend row.
func FromRecord(record gateway.Record) *Reminder {
	return &Reminder{
		ID:            record.ID(),
		AppointmentID: record.String("appointment_id"),
		ClinicID:      record.String("clinic_id"),
		PatientName:   record.String("patient_name"),
		Phone:         record.String("phone"),
		Service:       record.String("service"),
		Offset:        record.String("offset"),
		DueAt:         record.String("due_at"),
		Status:        Status(record.String("status")),
		SentAt:        record.String("sent_at"),
		CreatedAt:     record.String("created_at"),
	}
}
