package gateway

import "context"

// OutcomeReporter receives the outcome of every gateway call. The
// connectivity monitor implements it; transitions are edge-triggered off
// real traffic, so no health-check polling is needed.
type OutcomeReporter interface {
	ReportSuccess()
	ReportFailure(err error)
}

// Monitored decorates a Gateway and feeds call outcomes to a reporter.
type Monitored struct {
	inner    Gateway
	reporter OutcomeReporter
}

// NewMonitored wraps a gateway with outcome reporting.
func NewMonitored(inner Gateway, reporter OutcomeReporter) *Monitored {
	if inner == nil {
		panic("gateway: inner gateway required")
	}
	return &Monitored{inner: inner, reporter: reporter}
}

func (m *Monitored) report(err error) {
	if m.reporter == nil {
		return
	}
	if err != nil {
		m.reporter.ReportFailure(err)
		return
	}
	m.reporter.ReportSuccess()
}

func (m *Monitored) Insert(ctx context.Context, table string, record Record) (Record, error) {
	row, err := m.inner.Insert(ctx, table, record)
	m.report(err)
	return row, err
}

func (m *Monitored) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	row, err := m.inner.Update(ctx, table, id, patch)
	m.report(err)
	return row, err
}

func (m *Monitored) Delete(ctx context.Context, table, id string) error {
	err := m.inner.Delete(ctx, table, id)
	m.report(err)
	return err
}

func (m *Monitored) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	rows, err := m.inner.Query(ctx, table, filter)
	m.report(err)
	return rows, err
}

// Subscribe passes through when the inner gateway supports subscriptions.
func (m *Monitored) Subscribe(table string, fn func(ChangeEvent)) func() {
	if sub, ok := m.inner.(Subscribable); ok {
		return sub.Subscribe(table, fn)
	}
	return func() {}
}

var _ Gateway = (*Monitored)(nil)
var _ Subscribable = (*Monitored)(nil)
