package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/observability/metrics"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// Kind identifies a deferred write operation.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// QueuedOperation is one pending write made while the backend was
// unreachable. The ID is time-sortable so enqueue order survives storage.
type QueuedOperation struct {
	ID            string         `json:"id"`
	Table         string         `json:"table"`
	Kind          Kind           `json:"kind"`
	RecordID      string         `json:"record_id,omitempty"`
	Payload       gateway.Record `json:"payload,omitempty"`
	EnqueuedAt    time.Time      `json:"enqueued_at"`
	Attempts      int            `json:"attempts,omitempty"`
	NextAttemptAt time.Time      `json:"next_attempt_at,omitempty"`
}

func (op QueuedOperation) recordKey() string {
	return op.Table + "/" + op.RecordID
}

// Queue durably holds write operations that could not be applied
// immediately and replays them through the gateway in enqueue order.
// It is owned by the composition root and passed to whoever needs it;
// there is no package-level instance.
//
// Exactly one process may own a storage key. The queue loads the stored
// operations once and from then on persists its own state as the whole
// value, so a second instance over the same key would overwrite operations
// the first enqueued after that load. Operations leave storage only after
// the gateway acknowledges the replayed write.
type Queue struct {
	storage   Storage
	gw        gateway.Gateway
	logger    *logging.Logger
	metrics   *metrics.SyncMetrics
	key       string
	maxLen    int
	retryBase time.Duration
	retryCap  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	ops      []QueuedOperation
	draining atomic.Bool
}

// NewQueue creates a mutation queue over durable storage and a gateway.
func NewQueue(storage Storage, gw gateway.Gateway, logger *logging.Logger) *Queue {
	if storage == nil {
		panic("offline: storage required")
	}
	if gw == nil {
		panic("offline: gateway required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{
		storage:   storage,
		gw:        gw,
		logger:    logger,
		key:       "clinic:offline_queue",
		maxLen:    200,
		retryBase: 5 * time.Second,
		retryCap:  10 * time.Minute,
		now:       time.Now,
	}
}

// WithKey overrides the storage key.
func (q *Queue) WithKey(key string) *Queue {
	if key != "" {
		q.key = key
	}
	return q
}

// WithMaxLength bounds the queue; the oldest operation is evicted when the
// bound is exceeded.
func (q *Queue) WithMaxLength(n int) *Queue {
	if n > 0 {
		q.maxLen = n
	}
	return q
}

// WithRetryBackoff sets the exponential backoff base and cap applied to
// failed replays.
func (q *Queue) WithRetryBackoff(base, cap time.Duration) *Queue {
	if base > 0 {
		q.retryBase = base
	}
	if cap > 0 {
		q.retryCap = cap
	}
	return q
}

// WithMetrics attaches queue metrics.
func (q *Queue) WithMetrics(m *metrics.SyncMetrics) *Queue {
	q.metrics = m
	return q
}

// Load restores the queue from durable storage. Called once at startup.
func (q *Queue) Load(ctx context.Context) error {
	raw, ok, err := q.storage.GetItem(ctx, q.key)
	if err != nil {
		return fmt.Errorf("offline: load queue: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !ok || raw == "" {
		q.ops = nil
		q.metrics.SetQueueDepth(0)
		return nil
	}
	var ops []QueuedOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		return fmt.Errorf("offline: decode queue: %w", err)
	}
	q.ops = ops
	q.metrics.SetQueueDepth(len(ops))
	return nil
}

// Enqueue appends a deferred write and persists the whole queue.
func (q *Queue) Enqueue(ctx context.Context, table string, kind Kind, recordID string, payload gateway.Record) error {
	switch kind {
	case KindInsert:
		if len(payload) == 0 {
			return fmt.Errorf("offline: enqueue insert on %s: payload required", table)
		}
	case KindUpdate:
		if recordID == "" || len(payload) == 0 {
			return fmt.Errorf("offline: enqueue update on %s: record id and payload required", table)
		}
	case KindDelete:
		if recordID == "" {
			return fmt.Errorf("offline: enqueue delete on %s: record id required", table)
		}
	default:
		return fmt.Errorf("offline: enqueue on %s: unknown kind %q", table, kind)
	}

	op := QueuedOperation{
		ID:         newOpID(),
		Table:      table,
		Kind:       kind,
		RecordID:   recordID,
		Payload:    payload,
		EnqueuedAt: q.now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	for len(q.ops) > q.maxLen {
		evicted := q.ops[0]
		q.ops = q.ops[1:]
		q.metrics.ObserveEvicted()
		q.logger.Error("offline queue full, dropping oldest operation",
			"op_id", evicted.ID, "table", evicted.Table, "kind", evicted.Kind,
			"enqueued_at", evicted.EnqueuedAt)
	}
	q.metrics.ObserveEnqueued(table, string(kind))

	q.logger.Info("operation queued for replay",
		"op_id", op.ID, "table", table, "kind", kind, "depth", len(q.ops))
	return q.persistLocked(ctx)
}

// Len returns the number of operations waiting for replay.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Pending returns a copy of the waiting operations, oldest first.
func (q *Queue) Pending() []QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedOperation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Drain replays queued operations in enqueue order. A failed operation is
// retained with backoff and later operations on the same record are held
// back so a stale write can never land after a newer one; operations on
// other records are still attempted. Concurrent calls collapse: while a
// drain is running, further calls are no-ops.
func (q *Queue) Drain(ctx context.Context) error {
	if !q.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer q.draining.Store(false)

	start := q.now()

	q.mu.Lock()
	snapshot := make([]QueuedOperation, len(q.ops))
	copy(snapshot, q.ops)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	var survivors []QueuedOperation
	held := make(map[string]bool)
	for _, op := range snapshot {
		if op.RecordID != "" && held[op.recordKey()] {
			survivors = append(survivors, op)
			continue
		}
		if q.now().Before(op.NextAttemptAt) {
			if op.RecordID != "" {
				held[op.recordKey()] = true
			}
			survivors = append(survivors, op)
			continue
		}

		if err := q.apply(ctx, op); err != nil {
			op.Attempts++
			op.NextAttemptAt = q.now().Add(q.nextDelay(op.Attempts))
			if op.RecordID != "" {
				held[op.recordKey()] = true
			}
			survivors = append(survivors, op)
			q.metrics.ObserveReplay(op.Table, "failed")
			q.logger.Error("queue replay failed, operation retained",
				"error", err, "op_id", op.ID, "table", op.Table, "kind", op.Kind,
				"attempts", op.Attempts, "next_attempt_at", op.NextAttemptAt)
			continue
		}
		q.metrics.ObserveReplay(op.Table, "ok")
		q.logger.Info("queued operation replayed",
			"op_id", op.ID, "table", op.Table, "kind", op.Kind)
	}

	q.mu.Lock()
	// Operations enqueued while the pass ran sit past the snapshot length.
	q.ops = append(survivors, q.ops[len(snapshot):]...)
	err := q.persistLocked(ctx)
	q.mu.Unlock()

	q.metrics.ObserveDrainDuration(q.now().Sub(start).Seconds())
	return err
}

func (q *Queue) apply(ctx context.Context, op QueuedOperation) error {
	switch op.Kind {
	case KindInsert:
		_, err := q.gw.Insert(ctx, op.Table, op.Payload)
		return err
	case KindUpdate:
		_, err := q.gw.Update(ctx, op.Table, op.RecordID, op.Payload)
		return err
	case KindDelete:
		return q.gw.Delete(ctx, op.Table, op.RecordID)
	default:
		return fmt.Errorf("offline: unknown kind %q", op.Kind)
	}
}

// nextDelay doubles per attempt up to the cap, with jitter so reconnecting
// clients do not replay in lockstep.
func (q *Queue) nextDelay(attempts int) time.Duration {
	delay := q.retryBase
	for i := 1; i < attempts && delay < q.retryCap; i++ {
		delay *= 2
	}
	if delay > q.retryCap {
		delay = q.retryCap
	}
	half := int64(delay / 2)
	if half <= 0 {
		return delay
	}
	return time.Duration(half + rand.Int63n(half+1))
}

func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(q.ops)
	if err != nil {
		return fmt.Errorf("offline: encode queue: %w", err)
	}
	if q.ops == nil {
		data = []byte("[]")
	}
	if err := q.storage.SetItem(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("offline: persist queue: %w", err)
	}
	q.metrics.SetQueueDepth(len(q.ops))
	return nil
}

func newOpID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
