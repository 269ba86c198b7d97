// Package stats tracks keying counters (symbols, boundaries, gate outcomes) for
// periodic console output and the shutdown summary.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"morsekey/keyer"
)

// Tracker counts decoder events and gate outcomes. It implements keyer.Observer.
type Tracker struct {
	eventCounts   sync.Map // event kind label -> *atomic.Uint64
	outcomeCounts sync.Map // outcome label -> *atomic.Uint64
	start         atomic.Int64
	ditTotalMS    atomic.Uint64
	ditCount      atomic.Uint64
	lastMessage   atomic.Int64
	now           func() time.Time
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.start.Store(t.now().UnixNano())
	return t
}

// ObserveEvent counts one decoder event.
func (t *Tracker) ObserveEvent(ev keyer.Event) {
	incrementCounter(&t.eventCounts, ev.Kind.String())
	switch ev.Kind {
	case keyer.EventDit:
		t.ditTotalMS.Add(uint64(ev.Duration / time.Millisecond))
		t.ditCount.Add(1)
	case keyer.EventMessage:
		t.lastMessage.Store(ev.At.UnixNano())
	}
}

// ObserveOutcome counts one gate outcome.
func (t *Tracker) ObserveOutcome(res keyer.GateResult) {
	incrementCounter(&t.outcomeCounts, res.Outcome.String())
}

// EventCount returns how many events of kind have been observed.
func (t *Tracker) EventCount(kind keyer.EventKind) uint64 {
	return loadCounter(&t.eventCounts, kind.String())
}

// OutcomeCount returns how many gate windows closed with outcome.
func (t *Tracker) OutcomeCount(outcome keyer.Outcome) uint64 {
	return loadCounter(&t.outcomeCounts, outcome.String())
}

// Purpose: Estimate the operator's speed from the mean dit length.
// Key aspects: Uses the PARIS convention (one dit = 1200/WPM ms); zero until a
// dit has been keyed.
// Upstream: SnapshotLines, status server.
// Downstream: none.
func (t *Tracker) EstimatedWPM() float64 {
	n := t.ditCount.Load()
	if n == 0 {
		return 0
	}
	mean := float64(t.ditTotalMS.Load()) / float64(n)
	if mean <= 0 {
		return 0
	}
	return 1200 / mean
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	return t.now().Sub(time.Unix(0, t.start.Load()))
}

// Reset resets all counters
func (t *Tracker) Reset() {
	clearCounters(&t.eventCounts)
	clearCounters(&t.outcomeCounts)
	t.ditTotalMS.Store(0)
	t.ditCount.Store(0)
	t.lastMessage.Store(0)
	t.start.Store(t.now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, 3)
	lines = append(lines, formatMapCounts("Events", &t.eventCounts))
	lines = append(lines, formatMapCounts("Gate", &t.outcomeCounts))
	last := "never"
	if ns := t.lastMessage.Load(); ns != 0 {
		last = humanize.RelTime(time.Unix(0, ns), t.now(), "ago", "from now")
	}
	wpm := "n/a"
	if v := t.EstimatedWPM(); v > 0 {
		wpm = fmt.Sprintf("%.1f", v)
	}
	lines = append(lines, fmt.Sprintf("Uptime %s, speed %s wpm, last message %s",
		t.GetUptime().Truncate(time.Second), wpm, last))
	return lines
}

func formatMapCounts(label string, counts *sync.Map) string {
	type entry struct {
		key   string
		count uint64
	}
	var entries []entry
	counts.Range(func(key, value any) bool {
		entries = append(entries, entry{key.(string), value.(*atomic.Uint64).Load()})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	if len(entries) == 0 {
		builder.WriteString("(none)")
		return builder.String()
	}
	for i, e := range entries {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", e.key, humanize.Comma(int64(e.count)))
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}

func loadCounter(m *sync.Map, key string) uint64 {
	if value, ok := m.Load(key); ok {
		return value.(*atomic.Uint64).Load()
	}
	return 0
}

func clearCounters(m *sync.Map) {
	m.Range(func(key, _ any) bool {
		m.Delete(key)
		return true
	})
}
