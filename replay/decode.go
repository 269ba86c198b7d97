package replay

import (
	"errors"
	"strings"
	"sync"
	"time"

	"morsekey/keyer"
)

// ErrBadStep is returned when the sampling step is not positive.
var ErrBadStep = errors.New("replay: sampling step must be positive")

// Result is what the decoder made of a timeline.
type Result struct {
	Events   []keyer.Event
	Messages []keyer.Message
	Partial  string // text still buffered when the timeline ended
}

// Text joins every finalised message and any partial text with spaces.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Messages)+1)
	for _, msg := range r.Messages {
		parts = append(parts, msg.Text)
	}
	if r.Partial != "" {
		parts = append(parts, r.Partial)
	}
	return strings.Join(parts, " ")
}

// Count returns how many events of kind were produced.
func (r Result) Count(kind keyer.EventKind) int {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Purpose: Decode a timeline offline with simulated time.
// Key aspects: The key is sampled every step starting at start, exactly as the
// live polling loop would; a coarse step exercises the same boundary cascade a
// slow poll does. The decoder is reset between messages like the Station does.
// Upstream: cmd/keyreplay, tests.
// Downstream: keyer.Decoder.Observe.
func Decode(tl Timeline, cfg keyer.DecoderConfig, step time.Duration, start time.Time) (Result, error) {
	if step <= 0 {
		return Result{}, ErrBadStep
	}
	dec, err := keyer.NewDecoder(cfg)
	if err != nil {
		return Result{}, err
	}
	var res Result
	now := start
	segEnd := start
	for _, seg := range tl {
		segEnd = segEnd.Add(seg.Duration)
		key := keyer.KeyReleased
		if seg.Pressed {
			key = keyer.KeyPressed
		}
		for now.Before(segEnd) {
			res.observe(dec, key, now)
			now = now.Add(step)
		}
	}
	// One released sample at the end so a trailing press is not left open.
	res.observe(dec, keyer.KeyReleased, now)
	res.Partial = dec.PartialText()
	return res, nil
}

func (r *Result) observe(dec *keyer.Decoder, key keyer.KeyState, now time.Time) {
	events := dec.Observe(key, now)
	messageDone := false
	for _, ev := range events {
		r.Events = append(r.Events, ev)
		if ev.Kind == keyer.EventMessage && ev.Message != nil {
			r.Messages = append(r.Messages, *ev.Message)
			messageDone = true
		}
	}
	if messageDone {
		dec.Reset()
	}
}

// Player plays a timeline as a live keyer.Input against the wall clock. The
// clock starts on the first Sample; after the timeline ends the key reads
// released.
type Player struct {
	mu       sync.Mutex
	timeline Timeline
	started  time.Time
	now      func() time.Time
}

// NewPlayer returns a Player for tl.
func NewPlayer(tl Timeline) *Player {
	return &Player{timeline: tl, now: time.Now}
}

func (p *Player) Sample() keyer.KeyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.started.IsZero() {
		p.started = now
	}
	return p.timeline.stateAt(now.Sub(p.started))
}

func (p *Player) Timeline() Timeline {
	return p.timeline
}

// Done reports whether playback has passed the end of the timeline.
func (p *Player) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.started.IsZero() && p.now().Sub(p.started) >= p.timeline.Total()
}

func (tl Timeline) stateAt(offset time.Duration) keyer.KeyState {
	if offset < 0 {
		return keyer.KeyReleased
	}
	for _, seg := range tl {
		if offset < seg.Duration {
			if seg.Pressed {
				return keyer.KeyPressed
			}
			return keyer.KeyReleased
		}
		offset -= seg.Duration
	}
	return keyer.KeyReleased
}
