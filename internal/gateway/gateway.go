package gateway

import (
	"context"
	"fmt"
)

// Record is an entity-shaped row as exchanged with the hosted backend.
type Record map[string]any

// Filter is an equality filter applied to Query.
type Filter map[string]any

// ID returns the record's identifier, or "" when unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns the named field as a string, or "" when absent.
func (r Record) String(field string) string {
	v, _ := r[field].(string)
	return v
}

// Error wraps a backend failure during a gateway call.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ChangeKind identifies the mutation behind a change event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent describes one committed mutation on a subscribed table.
type ChangeEvent struct {
	Table  string
	Kind   ChangeKind
	Record Record
}

// Gateway is the boundary abstraction over the hosted backend's read and
// write operations. All errors returned are *Error; callers must catch.
type Gateway interface {
	Insert(ctx context.Context, table string, record Record) (Record, error)
	Update(ctx context.Context, table, id string, patch Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
	Query(ctx context.Context, table string, filter Filter) ([]Record, error)
}

// Subscribable is implemented by gateways that support realtime change
// subscriptions. The returned func unsubscribes.
type Subscribable interface {
	Subscribe(table string, fn func(ChangeEvent)) func()
}

func wrapErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Table: table, Err: err}
}
