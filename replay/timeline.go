// Package replay drives the decoder from recorded or synthesised key timelines
// instead of a live key. A timeline is a list of press and silence segments;
// its text form is whitespace separated signed millisecond counts, "+60" for a
// 60ms press and "-180" for 180ms of silence, with '#' starting a comment.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"morsekey/keyer"
	"morsekey/morse"
)

var (
	ErrBadSegment = errors.New("replay: bad segment")
	ErrBadUnit    = errors.New("replay: dit unit must be positive")
)

// Segment is one stretch of constant key state.
type Segment struct {
	Pressed  bool
	Duration time.Duration
}

// Timeline is an ordered list of segments.
type Timeline []Segment

// Parse reads the text form of a timeline. Adjacent segments of the same state
// are merged.
func Parse(r io.Reader) (Timeline, error) {
	var tl Timeline
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		for _, field := range strings.Fields(line) {
			seg, err := parseSegment(field)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q", ErrBadSegment, lineNo, field)
			}
			tl = tl.append(seg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: read timeline: %w", err)
	}
	return tl, nil
}

func parseSegment(field string) (Segment, error) {
	if len(field) < 2 || (field[0] != '+' && field[0] != '-') {
		return Segment{}, ErrBadSegment
	}
	ms, err := strconv.Atoi(strings.TrimSuffix(field[1:], "ms"))
	if err != nil || ms <= 0 {
		return Segment{}, ErrBadSegment
	}
	return Segment{Pressed: field[0] == '+', Duration: time.Duration(ms) * time.Millisecond}, nil
}

func (tl Timeline) append(seg Segment) Timeline {
	if seg.Duration <= 0 {
		return tl
	}
	if n := len(tl); n > 0 && tl[n-1].Pressed == seg.Pressed {
		tl[n-1].Duration += seg.Duration
		return tl
	}
	return append(tl, seg)
}

// String renders the text form accepted by Parse.
func (tl Timeline) String() string {
	var b strings.Builder
	for i, seg := range tl {
		if i > 0 {
			b.WriteByte(' ')
		}
		if seg.Pressed {
			b.WriteByte('+')
		} else {
			b.WriteByte('-')
		}
		b.WriteString(strconv.FormatInt(seg.Duration.Milliseconds(), 10))
	}
	return b.String()
}

// Total is the summed duration of all segments.
func (tl Timeline) Total() time.Duration {
	var total time.Duration
	for _, seg := range tl {
		total += seg.Duration
	}
	return total
}

// Purpose: Build the timeline an ideal operator would key for text.
// Key aspects: Standard proportions of one unit per dit, three per dah, one
// between elements, three between characters and seven between words. tail is
// appended as trailing silence so the message boundary can fire. Characters
// without a Morse encoding are skipped and returned.
// Upstream: cmd/keyreplay, tests.
// Downstream: morse.Encode.
func Synthesize(text string, unit, tail time.Duration) (Timeline, []rune, error) {
	if unit <= 0 {
		return nil, nil, ErrBadUnit
	}
	code, skipped := morse.Encode(text)
	var tl Timeline
	gap := time.Duration(0)
	for _, group := range strings.Fields(code) {
		if group == morse.WordSeparator {
			gap = 7 * unit
			continue
		}
		tl = tl.append(Segment{Duration: gap})
		gap = 3 * unit
		for j, symbol := range group {
			if j > 0 {
				tl = tl.append(Segment{Duration: unit})
			}
			length := unit
			if symbol == morse.Dah {
				length = 3 * unit
			}
			tl = tl.append(Segment{Pressed: true, Duration: length})
		}
	}
	if len(tl) > 0 {
		tl = tl.append(Segment{Duration: tail})
	}
	return tl, skipped, nil
}

// UnitForWPM returns the dit length of the PARIS standard at wpm words per
// minute.
func UnitForWPM(wpm float64) time.Duration {
	if wpm <= 0 {
		return 0
	}
	return time.Duration(float64(1200*time.Millisecond) / wpm)
}

// TimingForUnit derives decoder thresholds centred between the standard gaps
// for a given dit unit: a press is noise below a third of a unit, a dah from
// two units, and silence ends a character after two units, a word after five
// and a message after fourteen.
func TimingForUnit(unit time.Duration) keyer.Timing {
	return keyer.Timing{
		Keypress: unit / 3,
		DitDah:   2 * unit,
		Char:     2 * unit,
		Word:     5 * unit,
		Message:  14 * unit,
	}
}
