package scheduler

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tickline/schedcore/pkg/logger"
)

// JobEvent is a job lifecycle event delivered to listeners.
type JobEvent int

const (
	// EventStarted fires when an execution begins.
	EventStarted JobEvent = iota
	// EventDone fires when an execution completes.
	EventDone
)

// String returns a human-readable name for the event.
func (e JobEvent) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// ListenerFunc is a host-registered callback invoked on a job lifecycle
// event.
type ListenerFunc func(jobID uuid.UUID, event JobEvent)

// Notifier maps listener identifiers to callbacks and dispatches lifecycle
// events. Delivery is fire-and-forget: a slow listener never stalls due-job
// scanning or the execution it observes.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[string]ListenerFunc
	logger    *logger.Logger
}

// NewNotifier creates an empty notification dispatcher.
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[string]ListenerFunc),
		logger:    logger.New("notifier"),
	}
}

// Register stores a listener callback under id, replacing any previous one.
func (n *Notifier) Register(id string, fn ListenerFunc) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[id] = fn
}

// Unregister removes the listener for id. Unknown ids are ignored.
func (n *Notifier) Unregister(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, id)
}

// Notify dispatches event for jobID to each listed listener. Unknown
// listener identifiers are skipped silently.
func (n *Notifier) Notify(jobID uuid.UUID, event JobEvent, listenerIDs []string) {
	if len(listenerIDs) == 0 {
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, id := range listenerIDs {
		fn, ok := n.listeners[id]
		if !ok {
			n.logger.Debug().
				Str("action", "notify_skip").
				Str("listener_id", id).
				Str("job_id", jobID.String()).
				Str("event", event.String()).
				Msg("No listener registered for id")
			continue
		}
		go fn(jobID, event)
	}
}
