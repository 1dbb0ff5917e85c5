package pingback

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// ReplyFilter represents a criteria that a received message can be said to meet.
type ReplyFilter func(msg *Message, peer net.IP) bool

// Listener is represented by a uuid and a criteria.
type Listener struct {
	id         uuid.UUID
	Criteria   ReplyFilter
	matchChan  chan Received
	persistent bool
}

// NewListener return a new listener with the given criteria,
// a newly generated uuid and an initialized match channel.
// The listener is removed after its first match.
func NewListener(criteria ReplyFilter) *Listener {
	return &Listener{
		id:        uuid.New(),
		Criteria:  criteria,
		matchChan: make(chan Received, 1),
	}
}

// NewPersistentListener is NewListener for a listener that stays
// registered after a match. Matches that arrive while the match channel is
// full are dropped.
func NewPersistentListener(criteria ReplyFilter) *Listener {
	l := NewListener(criteria)
	l.persistent = true
	return l
}

// ID returns the listener's uuid
func (l *Listener) ID() uuid.UUID {
	return l.id
}

// ListenerMap is a threadsafe map meant to be used with Listeners.
type ListenerMap struct {
	sync.Mutex

	m map[uuid.UUID]*Listener
}

// NewListenerMap returns a new ListenerMap and initializes the appropriate fields.
func NewListenerMap() *ListenerMap {
	return &ListenerMap{
		m: make(map[uuid.UUID]*Listener),
	}
}

// Store sets the value for a key.
func (lm *ListenerMap) Store(key uuid.UUID, value *Listener) {
	lm.Lock()
	defer lm.Unlock()

	lm.m[key] = value
}

// Load returns the value stored in the map for a key, or nil if no value is present.
// The ok result indicates whether value was found in the map.
func (lm *ListenerMap) Load(key uuid.UUID) (value *Listener, ok bool) {
	lm.Lock()
	defer lm.Unlock()

	value, ok = lm.m[key]
	return value, ok
}

// Delete deletes the value for a key.  no-op if key doesn't exist.
func (lm *ListenerMap) Delete(key uuid.UUID) {
	lm.Lock()
	defer lm.Unlock()

	lm.delete(key)
}

func (lm *ListenerMap) delete(key uuid.UUID) {
	if listener, ok := lm.m[key]; ok {
		close(listener.matchChan)
	}
	delete(lm.m, key)
}

// Len returns how many listeners are registered
func (lm *ListenerMap) Len() int {
	lm.Lock()
	defer lm.Unlock()

	return len(lm.m)
}

// Run passes the received message to the criteria func of each listener.
// Matching listeners get it over their match channel, and one-shot listeners
// are removed. Run reports whether any listener matched.
func (lm *ListenerMap) Run(rec Received) bool {
	if rec.Message == nil {
		return false
	}

	lm.Lock()
	defer lm.Unlock()

	matched := false
	for key, listener := range lm.m {
		if !listener.Criteria(rec.Message, rec.Peer) {
			continue
		}
		matched = true

		select {
		case listener.matchChan <- rec:
		default:
		}
		if !listener.persistent {
			lm.delete(key)
		}
	}

	return matched
}
