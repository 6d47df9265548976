package appointments

import (
	"strings"
	"time"

	"github.com/pearldental/clinic-platform/internal/gateway"
)

// Table is the backend table holding appointment rows.
const Table = "appointments"

// Status enumerates the appointment lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Active reports whether the status still occupies its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// ValidTransition reports whether a status change follows the normal
// forward-only lifecycle. Staff overrides bypass this check.
func ValidTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from != StatusCancelled
	}
	switch from {
	case StatusPending:
		return to == StatusConfirmed
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusNoShow
	default:
		return false
	}
}

// Appointment represents one scheduled visit.
type Appointment struct {
	ID          string   `json:"id"`
	PatientName string   `json:"patient_name"`
	Phone       string   `json:"phone"`
	Date        string   `json:"date"` // ISO calendar date, e.g. 2025-03-01
	Time        string   `json:"time"` // time of day, e.g. 09:00
	ClinicID    string   `json:"clinic_id"`
	Service     string   `json:"service"`
	Status      Status   `json:"status"`
	Price       *float64 `json:"price,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// StartTime parses the date and time-of-day fields into a single instant.
func (a *Appointment) StartTime() (time.Time, error) {
	return time.Parse("2006-01-02 15:04", a.Date+" "+a.Time)
}

// AppendNote adds a line to the appointment notes with a timestamp prefix.
func (a *Appointment) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	stamped := time.Now().UTC().Format("2006-01-02 15:04") + " - " + note
	if a.Notes == "" {
		a.Notes = stamped
		return
	}
	a.Notes += "\n" + stamped
}

// ToRecord converts the appointment into its backend row shape.
func (a *Appointment) ToRecord() gateway.Record {
	record := gateway.Record{
		"patient_name": a.PatientName,
		"phone":        a.Phone,
		"date":         a.Date,
		"time":         a.Time,
		"clinic_id":    a.ClinicID,
		"service":      a.Service,
		"status":       string(a.Status),
		"notes":        a.Notes,
	}
	if a.ID != "" {
		record["id"] = a.ID
	}
	if a.Price != nil {
		record["price"] = *a.Price
	}
	return record
}

// FromRecord builds an appointment from a backend row.
func FromRecord(record gateway.Record) *Appointment {
	a := &Appointment{
		ID:          record.ID(),
		PatientName: record.String("patient_name"),
		Phone:       record.String("phone"),
		Date:        record.String("date"),
		Time:        record.String("time"),
		ClinicID:    record.String("clinic_id"),
		Service:     record.String("service"),
		Status:      Status(record.String("status")),
		Notes:       record.String("notes"),
		CreatedAt:   record.String("created_at"),
		UpdatedAt:   record.String("updated_at"),
	}
	if price, ok := record["price"].(float64); ok {
		a.Price = &price
	}
	return a
}
