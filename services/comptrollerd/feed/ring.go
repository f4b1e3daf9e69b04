// Package feed fans committed ledger events out to the API, the archive and
// stream subscribers.
package feed

import (
	"sync"

	"lendcore/core/events"
	"lendcore/observability"
)

// Record is a committed ledger event with its feed sequence number.
type Record struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	ch     chan Record
	closed bool
}

// Ring keeps the most recent committed events in memory and is the ledger's
// event sink. Sequences start at 1 and increase without gaps.
type Ring struct {
	mu          sync.RWMutex
	capacity    int
	next        uint64
	records     []Record
	observers   []func(Record)
	subscribers map[*subscriber]struct{}
}

// NewRing returns a ring that retains at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Ring{capacity: capacity, next: 1, subscribers: make(map[*subscriber]struct{})}
}

// Resume continues numbering after last, typically the newest archived
// sequence.
func (r *Ring) Resume(last uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last >= r.next {
		r.next = last + 1
	}
}

// OnRecord registers fn to run synchronously for every event, in order.
func (r *Ring) OnRecord(fn func(Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Emit implements events.Emitter.
func (r *Ring) Emit(ev events.Event) {
	flat := events.Flatten(ev).Clone()
	if flat == nil {
		return
	}

	r.mu.Lock()
	record := Record{Sequence: r.next, Type: flat.Type, Attributes: flat.Attributes}
	r.next++
	if len(r.records) == r.capacity {
		copy(r.records, r.records[1:])
		r.records = r.records[:len(r.records)-1]
	}
	r.records = append(r.records, record)
	for sub := range r.subscribers {
		select {
		case sub.ch <- record:
		default:
			// Slow subscribers are cut off and resume from their cursor.
			r.dropLocked(sub)
			observability.Events().RecordDropped()
		}
	}
	observers := make([]func(Record), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()
	observability.Events().RecordEvent(record.Type, record.Sequence)

	for _, fn := range observers {
		fn(record)
	}
}

// After returns up to limit events with a sequence greater than after, in
// commit order. A limit of zero returns every retained event.
func (r *Ring) After(after uint64, limit int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0)
	for _, record := range r.records {
		if record.Sequence <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, record)
	}
	return out
}

// Subscribe delivers every event emitted after the call. The channel is
// closed when cancel runs or when the subscriber falls more than buffer
// events behind.
func (r *Ring) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan Record, buffer)}
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	observability.Events().SetSubscribers(len(r.subscribers))
	r.mu.Unlock()
	return sub.ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.dropLocked(sub)
	}
}

func (r *Ring) dropLocked(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(r.subscribers, sub)
	close(sub.ch)
	observability.Events().SetSubscribers(len(r.subscribers))
}
