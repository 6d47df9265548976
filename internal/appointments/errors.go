package appointments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSlotTaken is returned when the requested slot already has an appointment
	ErrSlotTaken = errors.New("requested time is not available")

	// ErrNotFound is returned when an appointment does not exist
	ErrNotFound = errors.New("appointment not found")
)

// ValidationError reports the required booking fields that were missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Validate checks the fields required before any booking write.
func (a *Appointment) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(a.Time) == "" {
		missing = append(missing, "time")
	}
	if strings.TrimSpace(a.ClinicID) == "" {
		missing = append(missing, "clinic_id")
	}
	if strings.TrimSpace(a.Service) == "" {
		missing = append(missing, "service")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
