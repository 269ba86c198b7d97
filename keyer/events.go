package keyer

import (
	"fmt"
	"time"
)

// EventKind identifies a decoder event.
type EventKind int

const (
	EventKeyDown     EventKind = iota + 1 // press passed the debounce threshold
	EventKeyUp                            // confirmed press released
	EventNoise                            // press at or below the debounce threshold, discarded
	EventDit                              // short press appended to the symbol buffer
	EventDah                              // long press appended to the symbol buffer
	EventCharacter                        // symbol group flushed into the word
	EventWord                             // word flushed into the message
	EventMessage                          // message finalised
	EventConfirmOpen                      // confirmation window opened; emitted by the Station
)

var eventKindLabels = map[EventKind]string{
	EventKeyDown:     "key_down",
	EventKeyUp:       "key_up",
	EventNoise:       "noise",
	EventDit:         "dit",
	EventDah:         "dah",
	EventCharacter:   "character",
	EventWord:        "word",
	EventMessage:     "message",
	EventConfirmOpen: "confirm_open",
}

// String returns the snake_case label also used for metric labels and JSON.
func (k EventKind) String() string {
	if label, ok := eventKindLabels[k]; ok {
		return label
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is emitted synchronously by the Decoder, or by the Station for
// EventConfirmOpen.
//
// Duration is the press length for key/noise/dit/dah events and the silence
// length for boundary events. Symbols and Text carry the group, word or
// message that a boundary event completed.
type Event struct {
	Kind     EventKind
	At       time.Time
	Duration time.Duration
	Symbols  string
	Text     string
	Message  *Message // set on EventMessage only
}

// Outcome is the result of one confirmation window.
type Outcome int

const (
	OutcomeSent Outcome = iota + 1
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// GateResult reports how a confirmation window closed.
type GateResult struct {
	Outcome  Outcome
	Message  Message
	Receipt  Receipt
	Err      error
	ClosedAt time.Time
}
