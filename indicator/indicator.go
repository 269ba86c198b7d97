// Package indicator provides keyer.Indicator implementations that do not need
// GPIO: a plain text console, a software sidetone and a fan-out combinator.
package indicator

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"morsekey/keyer"
)

// Multi fans every call out to each indicator in order.
type Multi []keyer.Indicator

// NewMulti drops nil entries and returns a single Indicator. With one entry it
// is returned unwrapped.
func NewMulti(indicators ...keyer.Indicator) keyer.Indicator {
	var m Multi
	for _, ind := range indicators {
		if ind != nil {
			m = append(m, ind)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m Multi) SetActive(on bool) {
	for _, ind := range m {
		ind.SetActive(on)
	}
}

func (m Multi) Flash(count int, interval time.Duration) {
	for _, ind := range m {
		ind.Flash(count, interval)
	}
}

func (m Multi) Display(line1, line2 string) {
	for _, ind := range m {
		ind.Display(line1, line2)
	}
}

// Console writes display changes and flash patterns as text lines. Key
// state is shown as a marker on the next display line rather than on every
// transition.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	active bool
	last   [2]string
}

// NewConsole returns a console indicator writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) SetActive(on bool) {
	c.mu.Lock()
	c.active = on
	c.mu.Unlock()
}

func (c *Console) Flash(count int, _ time.Duration) {
	if count <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s\n", strings.Repeat("*", count))
}

func (c *Console) Display(line1, line2 string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == [2]string{line1, line2} {
		return
	}
	c.last = [2]string{line1, line2}
	if line1 == "" && line2 == "" {
		return
	}
	marker := " "
	if c.active {
		marker = "#"
	}
	if line2 == "" {
		fmt.Fprintf(c.w, "%s %s\n", marker, line1)
		return
	}
	fmt.Fprintf(c.w, "%s %s | %s\n", marker, line1, line2)
}
