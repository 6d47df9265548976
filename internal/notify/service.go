package notify

import (
	"context"
	"fmt"

	"github.com/pearldental/clinic-platform/internal/appointments"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// Config holds the pieces of clinic identity the messages need.
type Config struct {
	ClinicName  string
	SMSFrom     string
	StaffEmails []string
}

// Service sends patient-facing booking messages over SMS and alerts the
// front desk by email when a booking is parked in the offline queue.
type Service struct {
	email  EmailSender
	sms    SMSSender
	cfg    Config
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, sms SMSSender, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default().Named("notify")
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "Pearl Dental"
	}
	return &Service{email: email, sms: sms, cfg: cfg, logger: logger}
}

// BookingConfirmed tells the patient their slot is locked in.
func (s *Service) BookingConfirmed(ctx context.Context, appt *appointments.Appointment) error {
	body := fmt.Sprintf("Hi %s, your %s appointment at %s is confirmed for %s at %s. Reply if you need to reschedule.",
		appt.PatientName, appt.Service, s.cfg.ClinicName, appt.Date, appt.Time)
	return s.sendSMS(ctx, appt.Phone, body)
}

// BookingQueued tells the patient their request was saved but is not yet
// confirmed, and emails the front desk so someone follows up if the sync
// stays stuck.
func (s *Service) BookingQueued(ctx context.Context, appt *appointments.Appointment) error {
	body := fmt.Sprintf("Hi %s, we saved your %s request for %s at %s. We'll text you as soon as it is confirmed.",
		appt.PatientName, appt.Service, appt.Date, appt.Time)
	err := s.sendSMS(ctx, appt.Phone, body)

	for _, staff := range s.cfg.StaffEmails {
		msg := EmailMessage{
			To:      staff,
			Subject: fmt.Sprintf("Pending booking awaiting sync: %s", appt.PatientName),
			Body: fmt.Sprintf("A booking for %s (%s) on %s at %s was accepted while the backend was unreachable.\n"+
				"It will sync automatically; check the sync dashboard if it stays pending.\n\n-- %s",
				appt.PatientName, appt.Service, appt.Date, appt.Time, s.cfg.ClinicName),
		}
		if s.email == nil {
			continue
		}
		if serr := s.email.Send(ctx, msg); serr != nil {
			s.logger.Error("staff alert email failed", "error", serr, "to", staff)
			if err == nil {
				err = serr
			}
		}
	}
	return err
}

// BookingCancelled confirms a cancellation to the patient.
func (s *Service) BookingCancelled(ctx context.Context, appt *appointments.Appointment) error {
	body := fmt.Sprintf("Hi %s, your %s appointment on %s at %s has been cancelled. We hope to see you again soon.",
		appt.PatientName, appt.Service, appt.Date, appt.Time)
	return s.sendSMS(ctx, appt.Phone, body)
}

func (s *Service) sendSMS(ctx context.Context, to, body string) error {
	if s.sms == nil || to == "" {
		return nil
	}
	if err := s.sms.SendSMS(ctx, s.cfg.SMSFrom, to, body); err != nil {
		s.logger.Error("patient sms failed", "error", err, "to", to)
		return fmt.Errorf("notify: send sms: %w", err)
	}
	return nil
}
