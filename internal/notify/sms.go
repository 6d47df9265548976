package notify

import (
	"context"

	"github.com/pearldental/clinic-platform/pkg/logging"
)

// SMSSender abstracts outbound SMS delivery.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

// StubSMSSender logs outbound messages instead of sending them. Used in
// local development and when no carrier is configured.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs the message but doesn't actually send it.
func (s *StubSMSSender) SendSMS(ctx context.Context, from, to, body string) error {
	s.logger.Info("stub sms sender: would send sms", "from", from, "to", to, "body", body)
	return nil
}

var _ SMSSender = (*StubSMSSender)(nil)
