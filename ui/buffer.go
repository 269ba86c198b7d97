package ui

import (
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// EventKind identifies a log pane line category.
type EventKind int

const (
	EventSystem EventKind = iota
	EventKeying
	EventMessage
	EventGate
)

func (k EventKind) Label() string {
	switch k {
	case EventSystem:
		return "SYS"
	case EventKeying:
		return "KEY"
	case EventMessage:
		return "MSG"
	case EventGate:
		return "GATE"
	default:
		return "UNK"
	}
}

// StyledEvent represents a single log pane line.
type StyledEvent struct {
	Timestamp time.Time
	Kind      EventKind
	Message   string
}

// EventSnapshot provides an immutable snapshot and sequence.
type EventSnapshot struct {
	Events []StyledEvent
	Seq    uint64
}

// BoundedEventBuffer stores events in a ring bounded by count and total bytes;
// the oldest events are evicted first. Lines longer than maxMessageBytes are
// truncated rather than dropped.
type BoundedEventBuffer struct {
	mu              sync.RWMutex
	events          []StyledEvent
	head            int
	count           int
	maxBytes        int64
	curBytes        int64
	maxMessageBytes int
	seq             atomic.Uint64
	evicted         atomic.Uint64
}

// NewBoundedEventBuffer creates a bounded event buffer. maxBytes and
// maxMessageBytes of zero disable those limits.
func NewBoundedEventBuffer(maxCount int, maxBytes int64, maxMessageBytes int) *BoundedEventBuffer {
	if maxCount <= 0 {
		maxCount = 1
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	return &BoundedEventBuffer{
		events:          make([]StyledEvent, maxCount),
		maxBytes:        maxBytes,
		maxMessageBytes: maxMessageBytes,
	}
}

// Append inserts an event, evicting the oldest to stay within limits.
func (b *BoundedEventBuffer) Append(e StyledEvent) {
	if b == nil {
		return
	}
	if b.maxMessageBytes > 0 && len(e.Message) > b.maxMessageBytes {
		e.Message = truncateUTF8(e.Message, b.maxMessageBytes)
	}
	size := int64(len(e.Message))

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.count > 0 && (b.count >= len(b.events) || (b.maxBytes > 0 && b.curBytes+size > b.maxBytes)) {
		b.evictOldestLocked()
	}
	pos := (b.head + b.count) % len(b.events)
	b.events[pos] = e
	b.curBytes += size
	b.count++
	b.seq.Add(1)
}

// SnapshotInto copies events, oldest first, into dst.
func (b *BoundedEventBuffer) SnapshotInto(dst []StyledEvent) EventSnapshot {
	if b == nil {
		return EventSnapshot{Events: dst[:0]}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cap(dst) < b.count {
		dst = make([]StyledEvent, b.count)
	} else {
		dst = dst[:b.count]
	}
	for i := 0; i < b.count; i++ {
		dst[i] = b.events[(b.head+i)%len(b.events)]
	}
	return EventSnapshot{Events: dst, Seq: b.seq.Load()}
}

// Evicted returns how many events have been pushed out.
func (b *BoundedEventBuffer) Evicted() uint64 {
	if b == nil {
		return 0
	}
	return b.evicted.Load()
}

func (b *BoundedEventBuffer) evictOldestLocked() {
	old := b.events[b.head]
	b.curBytes -= int64(len(old.Message))
	b.events[b.head] = StyledEvent{}
	b.head = (b.head + 1) % len(b.events)
	b.count--
	b.evicted.Add(1)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
