package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Severity classifies a notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a transient user-visible message. The UI renders these
// as toasts; the server keeps a short ring of them to drain.
type Notification struct {
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier receives user-visible notifications
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier discards all notifications
type NopNotifier struct{}

// Notify discards the notification
func (NopNotifier) Notify(Notification) {}

// Ring is a fixed-capacity Notifier that keeps the most recent
// notifications and serves them over HTTP
type Ring struct {
	mu    sync.Mutex
	items []Notification
	cap   int
}

// NewRing creates a ring holding at most capacity notifications
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 32
	}
	return &Ring{cap: capacity}
}

// Notify appends a notification, evicting the oldest when full
func (r *Ring) Notify(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

// Drain returns all pending notifications and clears the ring
func (r *Ring) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items
	r.items = nil
	return items
}

// Handler serves GET /api/notifications, draining the ring
func (r *Ring) Handler(w http.ResponseWriter, req *http.Request) {
	items := r.Drain()
	if items == nil {
		items = []Notification{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}
