package session

import "sync"

// EventKind identifies a session event
type EventKind string

const (
	EventUserLoaded   EventKind = "user-loaded"
	EventUserUnloaded EventKind = "user-unloaded"
	EventRenewError   EventKind = "silent-renew-error"
)

// Event is a typed session notification. Consumers switch on Kind instead
// of registering separate callbacks per kind.
type Event struct {
	Kind EventKind
	User *User // set for EventUserLoaded
	Err  error // set for EventRenewError
}

// Subscription is a handle to the event stream. Close detaches it; events
// published after Close are not delivered.
type Subscription struct {
	C <-chan Event

	once   sync.Once
	cancel func()
}

// Close detaches the subscription from the manager
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Subscribe attaches a new consumer to the session event stream. The
// channel is buffered; a consumer that falls far behind loses oldest-first
// rather than blocking the manager.
func (m *Manager) Subscribe() *Subscription {
	ch := make(chan Event, 16)

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		},
	}
}

// publish delivers an event to all subscribers without ever blocking the
// manager. Callers must not hold m.mu.
func (m *Manager) publish(ev Event) {
	m.mu.RLock()
	chans := make([]chan Event, 0, len(m.subs))
	for _, ch := range m.subs {
		chans = append(chans, ch)
	}
	m.mu.RUnlock()

	if m.metrics != nil {
		m.metrics.SessionEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	}

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			m.logger.WithField("kind", ev.Kind).Warn("dropping session event for slow subscriber")
		}
	}
}
