package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgConn is the subset of pgxpool.Pool the gateway uses; tests inject fakes.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Gateway over a plain Postgres schema: one table per entity,
// each row holding its payload as JSONB. Table names are whitelisted; the
// backend rejects anything the schema does not know about, same as PostgREST.
type Postgres struct {
	db      pgConn
	allowed map[string]bool

	subMu   sync.Mutex
	subs    map[string]map[int]func(ChangeEvent)
	nextSub int
}

// NewPostgres creates a gateway backed by a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("gateway: pgx pool required")
	}
	return newPostgres(pool)
}

func newPostgres(db pgConn) *Postgres {
	return &Postgres{
		db: db,
		allowed: map[string]bool{
			"appointments": true,
			"reminders":    true,
		},
		subs: make(map[string]map[int]func(ChangeEvent)),
	}
}

// Subscribe registers a change listener for one table. Events fan out
// in-process after each committed write through this gateway; writes made
// by other processes are not observed.
func (p *Postgres) Subscribe(table string, fn func(ChangeEvent)) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if p.subs[table] == nil {
		p.subs[table] = make(map[int]func(ChangeEvent))
	}
	id := p.nextSub
	p.nextSub++
	p.subs[table][id] = fn
	return func() {
		p.subMu.Lock()
		delete(p.subs[table], id)
		p.subMu.Unlock()
	}
}

func (p *Postgres) notify(evt ChangeEvent) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, fn := range p.subs[evt.Table] {
		fn(evt)
	}
}

func (p *Postgres) table(op, name string) (string, error) {
	if !p.allowed[name] {
		return "", wrapErr(op, name, fmt.Errorf("unknown table"))
	}
	return name, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, record Record) (Record, error) {
	tbl, err := p.table("insert", table)
	if err != nil {
		return nil, err
	}

	row := cloneRecord(record)
	if row.ID() == "" {
		row["id"] = uuid.NewString()
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, wrapErr("insert", table, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data)
		VALUES ($1, $2)
		RETURNING data || jsonb_build_object('created_at', to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'), 'updated_at', to_char(updated_at, 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'))
	`, tbl)
	rec, err := p.scanOne(ctx, "insert", table, query, row.ID(), payload)
	if err != nil {
		return nil, err
	}
	p.notify(ChangeEvent{Table: table, Kind: ChangeInsert, Record: rec})
	return rec, nil
}

func (p *Postgres) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	tbl, err := p.table("update", table)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, wrapErr("update", table, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET data = data || $2, updated_at = now()
		WHERE id = $1
		RETURNING data || jsonb_build_object('created_at', to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'), 'updated_at', to_char(updated_at, 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'))
	`, tbl)
	rec, err := p.scanOne(ctx, "update", table, query, id, payload)
	if err != nil {
		return nil, err
	}
	p.notify(ChangeEvent{Table: table, Kind: ChangeUpdate, Record: rec})
	return rec, nil
}

func (p *Postgres) Delete(ctx context.Context, table, id string) error {
	tbl, err := p.table("delete", table)
	if err != nil {
		return err
	}

	ct, err := p.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", tbl), id)
	if err != nil {
		return wrapErr("delete", table, err)
	}
	if ct.RowsAffected() == 0 {
		return wrapErr("delete", table, ErrNotFound)
	}
	p.notify(ChangeEvent{Table: table, Kind: ChangeDelete, Record: Record{"id": id}})
	return nil
}

func (p *Postgres) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	tbl, err := p.table("query", table)
	if err != nil {
		return nil, err
	}

	match, err := json.Marshal(filter)
	if err != nil {
		return nil, wrapErr("query", table, err)
	}

	rows, err := p.db.Query(ctx, fmt.Sprintf(`
		SELECT data
		FROM %s
		WHERE data @> $1
		ORDER BY created_at, id
	`, tbl), match)
	if err != nil {
		return nil, wrapErr("query", table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, wrapErr("query", table, err)
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, wrapErr("query", table, err)
		}
		records = append(records, record)
	}
	return records, wrapErr("query", table, rows.Err())
}

func (p *Postgres) scanOne(ctx context.Context, op, table, query string, args ...any) (Record, error) {
	var payload []byte
	if err := p.db.QueryRow(ctx, query, args...).Scan(&payload); err != nil {
		if err == pgx.ErrNoRows {
			return nil, wrapErr(op, table, ErrNotFound)
		}
		return nil, wrapErr(op, table, err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, wrapErr(op, table, err)
	}
	return record, nil
}

var _ Gateway = (*Postgres)(nil)
var _ Subscribable = (*Postgres)(nil)
