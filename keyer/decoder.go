package keyer

import (
	"strings"
	"time"

	"morsekey/morse"
)

// DecoderState is the press/release state of the Decoder.
type DecoderState int

const (
	StateIdle DecoderState = iota
	StatePressedDebouncing
	StatePressedConfirmed
	StateReleasedAwaitingBoundary
)

var decoderStateLabels = [...]string{
	StateIdle:                     "idle",
	StatePressedDebouncing:        "pressed_debouncing",
	StatePressedConfirmed:         "pressed_confirmed",
	StateReleasedAwaitingBoundary: "released_awaiting_boundary",
}

func (s DecoderState) String() string {
	if int(s) < len(decoderStateLabels) {
		return decoderStateLabels[s]
	}
	return "unknown"
}

// boundaryStage is the next boundary a silence can cross. Each crossing
// advances the stage, so a boundary cannot fire twice in one silence.
type boundaryStage int

const (
	stageCharacter boundaryStage = iota
	stageWord
	stageMessage
)

// DecoderConfig configures a Decoder.
type DecoderConfig struct {
	Timing        Timing
	CharDelimiter string // between symbol groups in the raw rendering
	WordDelimiter string // between words in the raw rendering
}

// resumePoint lets a noise press be discarded without disturbing a silence
// that was already being measured.
type resumePoint struct {
	release time.Time
	stage   boundaryStage
	valid   bool
}

// Decoder segments timed key samples into dits, dahs, characters, words and
// messages. It is not safe for concurrent use; the Station owns it.
type Decoder struct {
	cfg     DecoderConfig
	clock   Clock
	state   DecoderState
	stage   boundaryStage
	resume  resumePoint
	armed   bool
	symbols []byte
	word    []string
	message [][]string
	events  []Event
}

// NewDecoder validates the timing and returns an idle decoder.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if err := cfg.Timing.Validate(); err != nil {
		return nil, err
	}
	if cfg.CharDelimiter == "" {
		cfg.CharDelimiter = " "
	}
	if cfg.WordDelimiter == "" {
		cfg.WordDelimiter = " / "
	}
	return &Decoder{cfg: cfg, armed: true}, nil
}

// Purpose: Advance the state machine by one sample.
// Key aspects: Returns the events produced by this sample; the slice is reused
// and only valid until the next call.
// Upstream: Station.Tick, replay.Decode.
// Downstream: Clock, morse.Decode.
func (d *Decoder) Observe(key KeyState, now time.Time) []Event {
	d.events = d.events[:0]

	// Release latch: a key still held from a previous cycle is ignored.
	if !d.armed {
		if key == KeyReleased {
			d.armed = true
		}
		return d.events
	}

	switch d.state {
	case StateIdle:
		if key == KeyPressed {
			d.beginPress(now)
		}
	case StatePressedDebouncing:
		if key == KeyReleased {
			d.endPress(now)
			break
		}
		if held, ok := d.clock.SincePress(now); ok && held > d.cfg.Timing.Keypress {
			d.state = StatePressedConfirmed
			d.emit(Event{Kind: EventKeyDown, At: now, Duration: held})
		}
	case StatePressedConfirmed:
		if key == KeyReleased {
			d.endPress(now)
		}
	case StateReleasedAwaitingBoundary:
		if key == KeyPressed {
			d.beginPress(now)
			break
		}
		d.advanceBoundaries(now)
	}
	return d.events
}

func (d *Decoder) beginPress(now time.Time) {
	d.resume = resumePoint{}
	if d.state == StateReleasedAwaitingBoundary {
		if at, ok := d.clock.ReleasedAt(); ok {
			d.resume = resumePoint{release: at, stage: d.stage, valid: true}
		}
	}
	d.clock.RecordPress(now)
	d.state = StatePressedDebouncing
}

func (d *Decoder) endPress(now time.Time) {
	held, _ := d.clock.SincePress(now)
	confirmed := d.state == StatePressedConfirmed

	if held <= d.cfg.Timing.Keypress {
		d.emit(Event{Kind: EventNoise, At: now, Duration: held})
		// Silence keeps counting from the last real release, not from the
		// bounce, so a glitch cannot postpone a pending boundary.
		if d.resume.valid {
			d.clock.RecordRelease(d.resume.release)
			d.stage = d.resume.stage
			d.state = StateReleasedAwaitingBoundary
		} else {
			d.clock.Reset()
			d.state = StateIdle
		}
		d.resume = resumePoint{}
		return
	}

	if confirmed {
		d.emit(Event{Kind: EventKeyUp, At: now, Duration: held})
	}
	kind, symbol := EventDit, byte(morse.Dit)
	if held >= d.cfg.Timing.DitDah {
		kind, symbol = EventDah, byte(morse.Dah)
	}
	d.symbols = append(d.symbols, symbol)
	d.emit(Event{Kind: kind, At: now, Duration: held, Symbols: string(symbol)})

	d.clock.RecordRelease(now)
	d.state = StateReleasedAwaitingBoundary
	d.stage = stageCharacter
	d.resume = resumePoint{}
}

// Purpose: Fire the boundaries the current silence has crossed.
// Key aspects: Stages fire in order and at most once; a poll that jumps past
// several thresholds fires the lower ones first so the symbol buffer is always
// flushed before its word, and the word before its message.
// Upstream: Observe while released.
// Downstream: flushCharacter, flushWord, finishMessage.
func (d *Decoder) advanceBoundaries(now time.Time) {
	silence, ok := d.clock.SinceRelease(now)
	if !ok {
		return
	}
	t := d.cfg.Timing
	if d.stage == stageCharacter && silence > t.Char {
		d.flushCharacter(now, silence)
		d.stage = stageWord
	}
	if d.stage == stageWord && silence > t.Word {
		d.flushWord(now, silence)
		d.stage = stageMessage
	}
	if d.stage == stageMessage && silence > t.Message {
		d.finishMessage(now, silence)
	}
}

func (d *Decoder) flushCharacter(now time.Time, silence time.Duration) {
	if len(d.symbols) == 0 {
		return
	}
	group := string(d.symbols)
	d.symbols = d.symbols[:0]
	d.word = append(d.word, group)
	d.emit(Event{Kind: EventCharacter, At: now, Duration: silence, Symbols: group, Text: morse.Decode(group)})
}

func (d *Decoder) flushWord(now time.Time, silence time.Duration) {
	if len(d.word) == 0 {
		return
	}
	word := d.word
	d.word = nil
	d.message = append(d.message, word)
	d.emit(Event{
		Kind:     EventWord,
		At:       now,
		Duration: silence,
		Symbols:  strings.Join(word, d.cfg.CharDelimiter),
		Text:     morse.TranslateWords([][]string{word}),
	})
}

func (d *Decoder) finishMessage(now time.Time, silence time.Duration) {
	words := d.message
	d.message = nil
	d.state = StateIdle
	d.clock.Reset()
	if len(words) == 0 {
		return
	}
	msg := &Message{
		Morse:       morse.Render(words, d.cfg.CharDelimiter, d.cfg.WordDelimiter),
		Text:        morse.TranslateWords(words),
		Words:       words,
		CompletedAt: now,
	}
	d.emit(Event{Kind: EventMessage, At: now, Duration: silence, Symbols: msg.Morse, Text: msg.Text, Message: msg})
}

func (d *Decoder) emit(ev Event) {
	d.events = append(d.events, ev)
}

// Reset discards all buffers and returns to Idle. The next press is accepted
// only after a released sample has been observed.
func (d *Decoder) Reset() {
	d.clock.Reset()
	d.state = StateIdle
	d.stage = stageCharacter
	d.resume = resumePoint{}
	d.symbols = d.symbols[:0]
	d.word = nil
	d.message = nil
	d.armed = false
}

// State returns the current press/release state.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Armed reports whether the decoder accepts presses (false while latched).
func (d *Decoder) Armed() bool {
	return d.armed
}

// SymbolBuffer returns the symbols of the character being built.
func (d *Decoder) SymbolBuffer() string {
	return string(d.symbols)
}

// WordBuffer returns a copy of the symbol groups of the word being built.
func (d *Decoder) WordBuffer() []string {
	return append([]string(nil), d.word...)
}

// MessageBuffer returns a copy of the completed words of the pending message.
func (d *Decoder) MessageBuffer() [][]string {
	out := make([][]string, len(d.message))
	for i, w := range d.message {
		out[i] = append([]string(nil), w...)
	}
	return out
}

// Empty reports whether all three buffers are empty.
func (d *Decoder) Empty() bool {
	return len(d.symbols) == 0 && len(d.word) == 0 && len(d.message) == 0
}

// PartialText is the translation of everything completed so far, with the
// word in progress appended.
func (d *Decoder) PartialText() string {
	words := d.message
	if len(d.word) > 0 {
		words = append(words[:len(words):len(words)], d.word)
	}
	return morse.TranslateWords(words)
}
