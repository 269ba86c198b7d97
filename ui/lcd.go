// Package ui renders the station on a terminal: a two-line character display
// in the style of a 16x2 LCD, a key lamp, a stats block and a scrolling log
// pane fed by the standard logger.
package ui

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"morsekey/keyer"
	"morsekey/strutil"
)

const (
	paneWriterMaxBytes = 64 * 1024
	defaultLCDWidth    = 16
	defaultLogLines    = 500
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"
)

var (
	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorHotPink
)

// LCDOptions configures the terminal display. Screen is optional and only
// set by tests and embedders that own the terminal.
type LCDOptions struct {
	Width    int
	LogLines int
	Screen   tcell.Screen
	OnQuit   func() // Ctrl+C; nil lets tview stop itself
}

// LCD implements keyer.Indicator and keyer.Observer on a tview application.
type LCD struct {
	app    *tview.Application
	root   *tview.Flex
	lcd    *tview.TextView
	lamp   *tview.TextView
	stats  *tview.TextView
	logs   *tview.TextView
	events *BoundedEventBuffer
	width  int

	ready   chan struct{}
	done    chan struct{}
	running atomic.Bool
	stop    sync.Once

	mu         sync.Mutex
	line1      string
	line2      string
	active     bool
	flashes    int
	statsLines []string

	now func() time.Time
}

// NewLCD builds the layout. Nothing is drawn until Start.
func NewLCD(opts LCDOptions) *LCD {
	width := opts.Width
	if width <= 0 {
		width = defaultLCDWidth
	}
	logLines := opts.LogLines
	if logLines <= 0 {
		logLines = defaultLogLines
	}

	app := tview.NewApplication()
	if opts.Screen != nil {
		app.SetScreen(opts.Screen)
	}
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})

	l := &LCD{
		app:    app,
		lcd:    newBoxedTextView("LCD"),
		lamp:   newBoxedTextView("Key"),
		stats:  newBoxedTextView("Stats"),
		logs:   newBoxedTextView("Log"),
		events: NewBoundedEventBuffer(logLines, 0, 512),
		width:  width,
		ready:  ready,
		done:   make(chan struct{}),
		now:    time.Now,
	}
	l.logs.SetScrollable(true)

	top := tview.NewFlex().
		AddItem(l.lcd, width+2, 0, false).
		AddItem(l.lamp, 12, 0, false).
		AddItem(l.stats, 0, 1, false)
	l.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 5, 0, false).
		AddItem(l.logs, 0, 1, false)
	app.SetRoot(l.root, true)
	if opts.OnQuit != nil {
		app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
			if ev.Key() == tcell.KeyCtrlC {
				opts.OnQuit()
				return nil
			}
			return ev
		})
	}

	l.renderAll()
	return l
}

// Start runs the tview event loop in the background.
func (l *LCD) Start() {
	if l == nil || !l.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(l.done)
		if err := l.app.Run(); err != nil {
			log.Printf("UI: tview error: %v", err)
		}
		l.running.Store(false)
	}()
}

// WaitReady blocks until the first frame has been drawn or timeout expires.
func (l *LCD) WaitReady(timeout time.Duration) bool {
	if l == nil {
		return false
	}
	select {
	case <-l.ready:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop ends the event loop and restores the terminal. Safe to call twice.
func (l *LCD) Stop() {
	if l == nil {
		return
	}
	l.stop.Do(func() {
		if !l.running.Load() {
			return
		}
		l.app.Stop()
		select {
		case <-l.done:
		case <-time.After(200 * time.Millisecond):
			log.Printf("UI: stop timeout, event loop still running")
		}
	})
}

// Lines returns the current display content, padded to the display width.
func (l *LCD) Lines() (string, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strutil.Fit(l.line1, l.width), strutil.Fit(l.line2, l.width)
}

func (l *LCD) SetActive(on bool) {
	l.mu.Lock()
	l.active = on
	l.mu.Unlock()
	l.queue(l.renderLamp)
}

// Flash shows the pattern length on the lamp. It does not block.
func (l *LCD) Flash(count int, interval time.Duration) {
	l.mu.Lock()
	l.flashes = count
	l.mu.Unlock()
	l.queue(l.renderLamp)
}

func (l *LCD) Display(line1, line2 string) {
	l.mu.Lock()
	l.line1 = strutil.SingleLine(line1)
	l.line2 = strutil.SingleLine(line2)
	l.mu.Unlock()
	l.queue(l.renderLCD)
}

// SetStats replaces the stats block.
func (l *LCD) SetStats(lines []string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.statsLines = append(l.statsLines[:0], lines...)
	l.mu.Unlock()
	l.queue(l.renderStats)
}

// ObserveEvent appends boundary events to the log pane; per-element events
// would flood it at any real keying speed.
func (l *LCD) ObserveEvent(ev keyer.Event) {
	switch ev.Kind {
	case keyer.EventCharacter:
		l.append(EventKeying, fmt.Sprintf("char %s -> %s", ev.Symbols, ev.Text))
	case keyer.EventWord:
		l.append(EventKeying, "word "+ev.Text)
	case keyer.EventMessage:
		l.append(EventMessage, ev.Text)
	case keyer.EventConfirmOpen:
		l.append(EventGate, "window open: "+ev.Text)
	}
}

func (l *LCD) ObserveOutcome(res keyer.GateResult) {
	line := res.Outcome.String()
	if res.Err != nil {
		line += ": " + res.Err.Error()
	}
	l.append(EventGate, line)
}

// AppendSystem adds a log line to the pane.
func (l *LCD) AppendSystem(line string) {
	l.append(EventSystem, line)
}

func (l *LCD) append(kind EventKind, line string) {
	if l == nil {
		return
	}
	l.events.Append(StyledEvent{
		Timestamp: l.now().UTC(),
		Kind:      kind,
		Message:   tview.Escape(line),
	})
	l.queue(l.renderLogs)
}

// queue applies fn on the event loop once it runs; before Start the views are
// updated directly.
func (l *LCD) queue(fn func()) {
	if l.running.Load() {
		l.app.QueueUpdateDraw(fn)
		return
	}
	fn()
}

func (l *LCD) renderAll() {
	l.renderLCD()
	l.renderLamp()
	l.renderStats()
	l.renderLogs()
}

func (l *LCD) renderLCD() {
	line1, line2 := l.Lines()
	l.lcd.SetText(formatLCD(line1, line2))
}

func (l *LCD) renderLamp() {
	l.mu.Lock()
	active, flashes := l.active, l.flashes
	l.mu.Unlock()
	l.lamp.SetText(formatLamp(active, flashes))
}

func (l *LCD) renderStats() {
	l.mu.Lock()
	lines := append([]string(nil), l.statsLines...)
	l.mu.Unlock()
	l.stats.SetText(strings.Join(lines, "\n"))
}

func (l *LCD) renderLogs() {
	snap := l.events.SnapshotInto(nil)
	var b strings.Builder
	for i, ev := range snap.Events {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(formatEventLine(ev))
	}
	l.logs.SetText(b.String())
	l.logs.ScrollToEnd()
}

func formatLCD(line1, line2 string) string {
	return tview.Escape(line1) + "\n" + tview.Escape(line2)
}

func formatLamp(active bool, flashes int) string {
	lamp := "[gray]( )[-] up"
	if active {
		lamp = accentTag + "(*)" + accentReset + " down"
	}
	if flashes > 0 {
		lamp += "\n" + strings.Repeat("*", flashes)
	}
	return lamp
}

func formatEventLine(ev StyledEvent) string {
	return fmt.Sprintf("%s %-4s %s", ev.Timestamp.Format("15:04:05"), ev.Kind.Label(), ev.Message)
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true)
	if title != "" {
		tv.SetTitle(accentTag + title + accentReset).SetTitleAlign(tview.AlignLeft)
	}
	tv.SetBorderColor(uiBorderColor)
	tv.SetTitleColor(uiTitleColor)
	return tv
}

// SystemWriter returns an io.Writer suitable for log.SetOutput; each complete
// line becomes a log pane entry.
func (l *LCD) SystemWriter() io.Writer {
	if l == nil {
		return nil
	}
	return &paneWriter{lcd: l}
}

type paneWriter struct {
	lcd *LCD
	// buf holds any partial line and is bounded when no newline arrives.
	buf          []byte
	mu           sync.Mutex
	droppedBytes uint64
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.lcd == nil {
		return len(p), nil
	}
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	if excess := len(w.buf) - paneWriterMaxBytes; excess > 0 {
		w.buf = w.buf[excess:]
		w.droppedBytes += uint64(excess)
	}
	var lines []string
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(w.buf[:idx], "\r")))
		w.buf = w.buf[idx+1:]
	}
	w.mu.Unlock()

	for _, line := range lines {
		w.lcd.AppendSystem(line)
	}
	return len(p), nil
}
