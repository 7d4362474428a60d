package jar

import (
	"sync"

	"github.com/mmr-tortoise/portjar/internal/model"
)

// subscriberBuffer is the per-subscriber channel capacity. Events sent to a
// full channel are dropped.
const subscriberBuffer = 64

// EventKind names a registry mutation.
type EventKind string

const (
	// EventReserved follows a committed reservation. The event carries the
	// concrete port, even when port 0 was requested.
	EventReserved EventKind = "reserved"

	// EventDropped follows a removal and carries the reservation as it was
	// stored.
	EventDropped EventKind = "dropped"
)

// Event is delivered to subscribers after each committed mutation.
type Event struct {
	Kind        EventKind         `json:"kind"`
	Reservation model.Reservation `json:"reservation"`
}

// Subscribe registers an observer. Events are delivered in commit order on
// a buffered channel; a subscriber that falls behind misses events rather
// than blocking the jar. The returned function unsubscribes and closes the
// channel, and is safe to call more than once.
func (j *Jar) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	j.subMu.Lock()
	id := j.nextSubID
	j.nextSubID++
	j.subs[id] = ch
	j.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.subMu.Lock()
			delete(j.subs, id)
			close(ch)
			j.subMu.Unlock()
		})
	}
}

// emit fans ev out to every subscriber. The caller holds j.mu, which keeps
// delivery in commit order.
func (j *Jar) emit(ev Event) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for _, ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
