package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/pearldental/clinic-platform/internal/connectivity"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/offline"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// SyncHandler exposes the offline queue for inspection and manual retry.
type SyncHandler struct {
	queue   *offline.Queue
	monitor *connectivity.Monitor
	logger  *logging.Logger

	mu      sync.Mutex
	changes int
	last    *LastChange
}

// LastChange is the most recent committed backend mutation this process saw.
type LastChange struct {
	Table string `json:"table"`
	Kind  string `json:"kind"`
	At    string `json:"at"`
}

// NewSyncHandler creates the sync handler.
func NewSyncHandler(queue *offline.Queue, monitor *connectivity.Monitor, logger *logging.Logger) *SyncHandler {
	if logger == nil {
		logger = logging.Default().Named("http")
	}
	return &SyncHandler{queue: queue, monitor: monitor, logger: logger}
}

// ObserveChange records a backend change event. The composition root wires
// it to the gateway's table subscriptions so the status endpoint shows sync
// activity.
func (h *SyncHandler) ObserveChange(evt gateway.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes++
	h.last = &LastChange{
		Table: evt.Table,
		Kind:  string(evt.Kind),
		At:    time.Now().UTC().Format(time.RFC3339),
	}
}

// StatusResponse reports connectivity, queue depth and backend activity.
type StatusResponse struct {
	Online     bool                      `json:"online"`
	Depth      int                       `json:"queue_depth"`
	Changes    int                       `json:"changes_seen"`
	LastChange *LastChange               `json:"last_change,omitempty"`
	Pending    []offline.QueuedOperation `json:"pending,omitempty"`
}

// Status returns the connectivity flag and the operations still waiting.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	changes, last := h.changes, h.last
	h.mu.Unlock()

	resp := StatusResponse{
		Online:     h.monitor.Online(),
		Depth:      h.queue.Len(),
		Changes:    changes,
		LastChange: last,
	}
	if r.URL.Query().Get("verbose") == "true" {
		resp.Pending = h.queue.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Drain triggers a manual replay pass. Races with a reconnect-triggered
// drain collapse to one pass inside the queue.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	before := h.queue.Len()
	if err := h.queue.Drain(r.Context()); err != nil {
		h.logger.Error("manual drain failed", "error", err)
		writeError(w, http.StatusInternalServerError, "drain failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drained":   before - h.queue.Len(),
		"remaining": h.queue.Len(),
	})
}
