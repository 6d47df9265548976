package appointments

import (
	"context"

	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// Checker decides whether a candidate slot is free to book.
type Checker struct {
	gw                gateway.Gateway
	logger            *logging.Logger
	reusableCancelled bool
}

// NewChecker creates a slot conflict checker.
func NewChecker(gw gateway.Gateway, logger *logging.Logger) *Checker {
	if gw == nil {
		panic("appointments: gateway required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{gw: gw, logger: logger}
}

// WithReusableCancelledSlots controls whether cancelled rows still block
// their slot. The legacy clients treated them as blocking; that stays the
// default until the front desk signs off on freeing them.
func (c *Checker) WithReusableCancelledSlots(reusable bool) *Checker {
	c.reusableCancelled = reusable
	return c
}

// CheckAvailability reports whether (clinic, date, time) is free, ignoring
// the appointment identified by excludeID so reschedules can keep their own
// slot. A failed backend read fails closed: the slot is reported taken and
// the error returned, so a possible double booking is never risked.
func (c *Checker) CheckAvailability(ctx context.Context, clinicID, date, timeOfDay, excludeID string) (bool, error) {
	rows, err := c.gw.Query(ctx, Table, gateway.Filter{
		"clinic_id": clinicID,
		"date":      date,
		"time":      timeOfDay,
	})
	if err != nil {
		c.logger.Error("availability check failed, refusing slot", "error", err,
			"clinic_id", clinicID, "date", date, "time", timeOfDay)
		return false, err
	}

	for _, row := range rows {
		if excludeID != "" && row.ID() == excludeID {
			continue
		}
		if c.reusableCancelled && !Status(row.String("status")).Active() {
			continue
		}
		return false, nil
	}
	return true, nil
}
