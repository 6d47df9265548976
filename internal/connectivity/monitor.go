// Package connectivity tracks whether the remote data gateway is reachable.
//
// Detection is passive: the monitored gateway wrapper reports the outcome of
// every real call, and the monitor flips between online and offline on the
// edges. There is no health-check polling loop.
package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// Classifier decides whether a gateway error means the remote side is
// unreachable. Application errors (not found, validation) must not flip the
// monitor offline.
type Classifier func(err error) bool

// DefaultClassifier treats the gateway offline sentinel, network errors and
// deadline expiry as connectivity loss.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gateway.ErrOffline) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Monitor holds the process-wide online/offline flag and notifies
// subscribers on transitions.
type Monitor struct {
	logger     *logging.Logger
	classifier Classifier

	mu           sync.Mutex
	online       bool
	onReconnect  []func()
	onDisconnect []func()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClassifier overrides the error classifier.
func WithClassifier(c Classifier) Option {
	return func(m *Monitor) { m.classifier = c }
}

// NewMonitor builds a monitor that starts online. Call Probe at startup to
// seed the real initial state.
func NewMonitor(logger *logging.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.Default().Named("connectivity")
	}
	m := &Monitor{
		logger:     logger,
		classifier: DefaultClassifier,
		online:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Probe seeds the initial state from one gateway round trip. It sets the
// flag directly without firing transition callbacks, so a process that boots
// offline does not trigger a pointless drain.
func (m *Monitor) Probe(ctx context.Context, ping func(context.Context) error) {
	err := ping(ctx)
	online := err == nil || !m.classifier(err)

	m.mu.Lock()
	m.online = online
	m.mu.Unlock()

	if online {
		m.logger.Info("startup probe: gateway reachable")
	} else {
		m.logger.Warn("startup probe: gateway unreachable", "error", err)
	}
}

// Online reports the current connectivity flag.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnReconnect registers fn to run on every offline-to-online transition.
// Callbacks run in their own goroutine so a slow subscriber (a queue drain)
// never blocks the gateway call that detected the edge.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = append(m.onReconnect, fn)
}

// OnDisconnect registers fn to run on every online-to-offline transition.
func (m *Monitor) OnDisconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = append(m.onDisconnect, fn)
}

// ReportSuccess records a successful gateway call. Implements
// gateway.OutcomeReporter.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	if m.online {
		m.mu.Unlock()
		return
	}
	m.online = true
	subs := append([]func(){}, m.onReconnect...)
	m.mu.Unlock()

	m.logger.Info("gateway reachable again")
	for _, fn := range subs {
		go fn()
	}
}

// ReportFailure records a failed gateway call. Only connectivity-class
// errors flip the state; everything else is left to the caller to handle.
// Implements gateway.OutcomeReporter.
func (m *Monitor) ReportFailure(err error) {
	if !m.classifier(err) {
		return
	}

	m.mu.Lock()
	if !m.online {
		m.mu.Unlock()
		return
	}
	m.online = false
	subs := append([]func(){}, m.onDisconnect...)
	m.mu.Unlock()

	m.logger.Warn("gateway unreachable", "error", err)
	for _, fn := range subs {
		go fn()
	}
}

var _ gateway.OutcomeReporter = (*Monitor)(nil)
