package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrOffline is returned by a Memory gateway that has been switched offline.
var ErrOffline = errors.New("backend unreachable")

// ErrNotFound is returned when an update or delete targets a missing row.
var ErrNotFound = errors.New("record not found")

// Memory is a map-backed Gateway used by tests and the memory backend mode.
// SetOnline(false) makes every call fail, simulating connectivity loss.
type Memory struct {
	mu      sync.RWMutex
	tables  map[string]map[string]Record
	online  bool
	nextSub int
	subs    map[string]map[int]func(ChangeEvent)
}

// NewMemory creates an online in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]map[string]Record),
		online: true,
		subs:   make(map[string]map[int]func(ChangeEvent)),
	}
}

// SetOnline toggles simulated connectivity.
func (m *Memory) SetOnline(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
}

func (m *Memory) Insert(ctx context.Context, table string, record Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.online {
		return nil, wrapErr("insert", table, ErrOffline)
	}

	row := cloneRecord(record)
	if row.ID() == "" {
		row["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	row["updated_at"] = now

	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]Record)
		m.tables[table] = rows
	}
	rows[row.ID()] = row

	m.notifyLocked(ChangeEvent{Table: table, Kind: ChangeInsert, Record: cloneRecord(row)})
	return cloneRecord(row), nil
}

func (m *Memory) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.online {
		return nil, wrapErr("update", table, ErrOffline)
	}

	row, ok := m.tables[table][id]
	if !ok {
		return nil, wrapErr("update", table, ErrNotFound)
	}
	for k, v := range patch {
		row[k] = v
	}
	row["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	m.notifyLocked(ChangeEvent{Table: table, Kind: ChangeUpdate, Record: cloneRecord(row)})
	return cloneRecord(row), nil
}

func (m *Memory) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.online {
		return wrapErr("delete", table, ErrOffline)
	}

	row, ok := m.tables[table][id]
	if !ok {
		return wrapErr("delete", table, ErrNotFound)
	}
	delete(m.tables[table], id)

	m.notifyLocked(ChangeEvent{Table: table, Kind: ChangeDelete, Record: cloneRecord(row)})
	return nil
}

func (m *Memory) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.online {
		return nil, wrapErr("query", table, ErrOffline)
	}

	var out []Record
	for _, row := range m.tables[table] {
		if matches(row, filter) {
			out = append(out, cloneRecord(row))
		}
	}
	// Stable ordering by insertion time, then id.
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].String("created_at"), out[j].String("created_at")
		if ci != cj {
			return ci < cj
		}
		return out[i].ID() < out[j].ID()
	})
	return out, nil
}

// Subscribe registers a change listener for one table.
func (m *Memory) Subscribe(table string, fn func(ChangeEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[table] == nil {
		m.subs[table] = make(map[int]func(ChangeEvent))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[table][id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs[table], id)
		m.mu.Unlock()
	}
}

func (m *Memory) notifyLocked(evt ChangeEvent) {
	for _, fn := range m.subs[evt.Table] {
		fn(evt)
	}
}

func matches(row Record, filter Filter) bool {
	for k, want := range filter {
		if row[k] != want {
			return false
		}
	}
	return true
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

var _ Gateway = (*Memory)(nil)
var _ Subscribable = (*Memory)(nil)
