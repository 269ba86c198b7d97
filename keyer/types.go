// Package keyer turns timed samples of a Morse key into decoded messages.
//
// The package holds the timing core (Clock, Decoder, Gate) and the Station loop
// that polls an Input, drives an Indicator and optionally hands finished
// messages to a Sender. All hardware and network access lives behind the
// capability interfaces declared here; the core itself never sleeps or blocks
// except inside those calls.
package keyer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// KeyState is one electrical sample of the key contact.
type KeyState int

const (
	KeyReleased KeyState = iota
	KeyPressed
)

func (k KeyState) String() string {
	if k == KeyPressed {
		return "pressed"
	}
	return "released"
}

// Input is polled once per loop tick.
type Input interface {
	Sample() KeyState
}

// InputFunc adapts a plain function to Input.
type InputFunc func() KeyState

func (f InputFunc) Sample() KeyState { return f() }

// Indicator receives fire-and-forget feedback (LED, buzzer, display).
// Implementations may block for the duration of a flash pattern.
type Indicator interface {
	SetActive(on bool)
	Flash(count int, interval time.Duration)
	Display(line1, line2 string)
}

// Receipt describes a successful transmission.
type Receipt struct {
	ID          string
	Destination string
	SentAt      time.Time
}

// Sender transmits a finished message. It is only ever called from the Gate.
type Sender interface {
	Send(ctx context.Context, text string) (Receipt, error)
}

// Observer is notified of every decoder event and every gate outcome, after the
// Indicator has been driven.
type Observer interface {
	ObserveEvent(ev Event)
	ObserveOutcome(res GateResult)
}

// Mode is the Station's top-level mode.
type Mode int

const (
	ModeInput Mode = iota
	ModeConfirm
)

func (m Mode) String() string {
	if m == ModeConfirm {
		return "confirm"
	}
	return "input"
}

// Timing holds the fixed decoding thresholds.
type Timing struct {
	Keypress time.Duration // presses at or below this are noise
	DitDah   time.Duration // presses shorter than this are dits, others dahs
	Char     time.Duration // silence that completes a character
	Word     time.Duration // silence that completes a word
	Message  time.Duration // silence that completes a message
}

var (
	ErrNonPositiveThreshold = errors.New("timing thresholds must be positive")
	ErrKeypressOrder        = errors.New("keypress threshold must be below the dit/dah threshold")
	ErrBoundaryOrder        = errors.New("character < word < message thresholds required")
)

// Validate enforces the threshold ordering the boundary logic depends on.
func (t Timing) Validate() error {
	if t.Keypress <= 0 || t.DitDah <= 0 || t.Char <= 0 || t.Word <= 0 || t.Message <= 0 {
		return ErrNonPositiveThreshold
	}
	if t.Keypress >= t.DitDah {
		return fmt.Errorf("%w (keypress=%s ditdah=%s)", ErrKeypressOrder, t.Keypress, t.DitDah)
	}
	if !(t.Char < t.Word && t.Word < t.Message) {
		return fmt.Errorf("%w (char=%s word=%s message=%s)", ErrBoundaryOrder, t.Char, t.Word, t.Message)
	}
	return nil
}

// Message is a finalised decode handed to observers and the Gate.
type Message struct {
	Morse       string     // raw symbols rendered with the configured delimiters
	Text        string     // translated text
	Words       [][]string // symbol groups per word
	CompletedAt time.Time
}

// Empty reports whether the message carries no words.
func (m Message) Empty() bool {
	return len(m.Words) == 0
}
