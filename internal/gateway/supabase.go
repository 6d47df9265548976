package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	supa "github.com/supabase-community/supabase-go"
)

// Supabase is a Gateway backed by the hosted Supabase backend over PostgREST.
type Supabase struct {
	client *supa.Client
}

// NewSupabase creates a gateway from an already configured client.
func NewSupabase(client *supa.Client) *Supabase {
	if client == nil {
		panic("gateway: supabase client required")
	}
	return &Supabase{client: client}
}

// DialSupabase connects to the hosted backend with a service key.
func DialSupabase(url, serviceKey string) (*Supabase, error) {
	client, err := supa.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

func (s *Supabase) Insert(ctx context.Context, table string, record Record) (Record, error) {
	data, _, err := s.client.From(table).
		Insert(record, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, wrapErr("insert", table, err)
	}
	return firstRecord("insert", table, data)
}

func (s *Supabase) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	data, _, err := s.client.From(table).
		Update(patch, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, wrapErr("update", table, err)
	}
	return firstRecord("update", table, data)
}

func (s *Supabase) Delete(ctx context.Context, table, id string) error {
	_, _, err := s.client.From(table).
		Delete("", "").
		Eq("id", id).
		Execute()
	return wrapErr("delete", table, err)
}

func (s *Supabase) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	query := s.client.From(table).Select("*", "", false)
	for field, value := range filter {
		query = query.Eq(field, fmt.Sprint(value))
	}

	data, _, err := query.Execute()
	if err != nil {
		return nil, wrapErr("query", table, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, wrapErr("query", table, err)
	}
	return records, nil
}

func firstRecord(op, table string, data []byte) (Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, wrapErr(op, table, err)
	}
	if len(records) == 0 {
		return nil, wrapErr(op, table, ErrNotFound)
	}
	return records[0], nil
}

var _ Gateway = (*Supabase)(nil)
