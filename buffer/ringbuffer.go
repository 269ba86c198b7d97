// Package buffer keeps a bounded in-memory history of completed messages for
// the status server. Each slot stores an atomic pointer so readers either see a
// complete record or the previous one, never a partially written structure.
package buffer

import (
	"sync/atomic"
	"time"

	"morsekey/keyer"
)

// Record is one completed message and, once the gate closed, its outcome.
type Record struct {
	ID          uint64    `json:"id"`
	Morse       string    `json:"morse"`
	Text        string    `json:"text"`
	CompletedAt time.Time `json:"completed_at"`
	Outcome     string    `json:"outcome"` // decoded | sent | failed | skipped
	ReceiptID   string    `json:"receipt_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Error       string    `json:"error,omitempty"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
}

// OutcomeDecoded marks a record whose gate has not closed (or never opened).
const OutcomeDecoded = "decoded"

// RingBuffer is a thread-safe circular buffer of recent message records.
// Writers atomically publish completed *Record values, and readers walk
// backwards from the newest index to gather a snapshot.
type RingBuffer struct {
	slots    []atomic.Pointer[Record]
	capacity int
	total    atomic.Uint64 // total records added (may exceed capacity)
}

// NewRingBuffer allocates a ring buffer with the specified capacity (minimum 1).
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		slots:    make([]atomic.Pointer[Record], capacity),
		capacity: capacity,
	}
}

// Add appends a record, assigning a monotonic ID so readers can skip over
// stale entries when the buffer wraps. The record must not be modified after.
func (rb *RingBuffer) Add(r *Record) uint64 {
	id := rb.total.Add(1)
	r.ID = id
	rb.slots[(id-1)%uint64(rb.capacity)].Store(r)
	return id
}

// Purpose: Replace a stored record with an updated copy.
// Key aspects: Copy-on-write; returns false when id has already been evicted.
// Upstream: History.ObserveOutcome.
// Downstream: atomic.Pointer.CompareAndSwap.
func (rb *RingBuffer) Update(id uint64, fn func(*Record)) bool {
	if id == 0 {
		return false
	}
	slot := &rb.slots[(id-1)%uint64(rb.capacity)]
	for {
		cur := slot.Load()
		if cur == nil || cur.ID != id {
			return false
		}
		next := *cur
		fn(&next)
		next.ID = id
		if slot.CompareAndSwap(cur, &next) {
			return true
		}
	}
}

// GetRecent returns the N most recent records, newest first.
func (rb *RingBuffer) GetRecent(n int) []*Record {
	if n <= 0 {
		return []*Record{}
	}
	total := rb.total.Load()
	available := int(total)
	if available > rb.capacity {
		available = rb.capacity
	}
	if n > available {
		n = available
	}

	result := make([]*Record, 0, n)
	if total == 0 {
		return result
	}
	minIndex := total - uint64(available)
	for idx := total; idx > minIndex && len(result) < n; {
		idx--
		// ID check skips over slots that have been overwritten after wraparound
		if r := rb.slots[idx%uint64(rb.capacity)].Load(); r != nil && r.ID == idx+1 {
			result = append(result, r)
		}
	}
	return result
}

// GetCount returns the total number of records added (may be > capacity)
func (rb *RingBuffer) GetCount() int {
	return int(rb.total.Load())
}

// Capacity returns the number of records retained.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// History adapts a RingBuffer to keyer.Observer: a record is added when a
// message completes and updated when its confirmation window closes.
type History struct {
	ring    *RingBuffer
	pending atomic.Uint64
}

// NewHistory wraps ring.
func NewHistory(ring *RingBuffer) *History {
	return &History{ring: ring}
}

// Ring returns the underlying buffer.
func (h *History) Ring() *RingBuffer {
	return h.ring
}

func (h *History) ObserveEvent(ev keyer.Event) {
	if ev.Kind != keyer.EventMessage || ev.Message == nil {
		return
	}
	id := h.ring.Add(&Record{
		Morse:       ev.Message.Morse,
		Text:        ev.Message.Text,
		CompletedAt: ev.Message.CompletedAt,
		Outcome:     OutcomeDecoded,
	})
	h.pending.Store(id)
}

func (h *History) ObserveOutcome(res keyer.GateResult) {
	id := h.pending.Swap(0)
	h.ring.Update(id, func(r *Record) {
		r.Outcome = res.Outcome.String()
		r.ClosedAt = res.ClosedAt
		r.ReceiptID = res.Receipt.ID
		r.Destination = res.Receipt.Destination
		if res.Err != nil {
			r.Error = res.Err.Error()
		}
	})
}
