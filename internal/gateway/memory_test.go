package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryInsertAssignsIDAndTimestamps(t *testing.T) {
	m := NewMemory()
	row, err := m.Insert(context.Background(), "appointments", Record{"patient_name": "Ada"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if row.ID() == "" {
		t.Fatal("expected generated id")
	}
	if row.String("created_at") == "" || row.String("updated_at") == "" {
		t.Fatal("expected timestamps")
	}
}

func TestMemoryQueryFiltersAndOrders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := m.Insert(ctx, "appointments", Record{"patient_name": name, "clinic_id": "main"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := m.Insert(ctx, "appointments", Record{"patient_name": "d", "clinic_id": "other"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := m.Query(ctx, "appointments", Filter{"clinic_id": "main"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].String("patient_name") != "a" {
		t.Fatalf("expected insertion order, got %q first", rows[0].String("patient_name"))
	}
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	row, _ := m.Insert(ctx, "appointments", Record{"status": "pending"})

	updated, err := m.Update(ctx, "appointments", row.ID(), Record{"status": "confirmed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.String("status") != "confirmed" {
		t.Fatalf("expected confirmed, got %q", updated.String("status"))
	}

	if err := m.Delete(ctx, "appointments", row.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, "appointments", row.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryOfflineFailsEveryCall(t *testing.T) {
	m := NewMemory()
	m.SetOnline(false)
	ctx := context.Background()

	if _, err := m.Insert(ctx, "appointments", Record{}); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected offline error, got %v", err)
	}
	if _, err := m.Query(ctx, "appointments", nil); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected offline error, got %v", err)
	}

	var gwErr *Error
	_, err := m.Query(ctx, "appointments", nil)
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if gwErr.Op != "query" || gwErr.Table != "appointments" {
		t.Fatalf("unexpected error fields: %+v", gwErr)
	}
}

func TestMemorySubscribe(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var events []ChangeEvent
	unsub := m.Subscribe("appointments", func(evt ChangeEvent) {
		events = append(events, evt)
	})

	row, _ := m.Insert(ctx, "appointments", Record{"status": "pending"})
	_, _ = m.Update(ctx, "appointments", row.ID(), Record{"status": "confirmed"})
	unsub()
	_ = m.Delete(ctx, "appointments", row.ID())

	if len(events) != 2 {
		t.Fatalf("expected 2 events before unsubscribe, got %d", len(events))
	}
	if events[0].Kind != ChangeInsert || events[1].Kind != ChangeUpdate {
		t.Fatalf("unexpected event kinds: %v %v", events[0].Kind, events[1].Kind)
	}
}
