package auth

import "sync"

type EventKind string

const (
	EventSignedUp        EventKind = "signed_up"
	EventSignedIn        EventKind = "signed_in"
	EventSignedOut       EventKind = "signed_out"
	EventMetadataUpdated EventKind = "metadata_updated"
)

type Event struct {
	Kind   EventKind
	UserID string
}

type Listener func(Event)

// notifier fans session changes out to subscribers synchronously.
type notifier struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func (n *notifier) subscribe(fn Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]Listener)
	}
	id := n.next
	n.next++
	n.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(e Event) {
	n.mu.RLock()
	fns := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
