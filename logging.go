package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"morsekey/config"
	"morsekey/internal/ratelimit"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "2006-01-02"
	logFilePrefix      = "morsekey-"
	maxPartialLogBytes = 16 * 1024
)

// lineSink receives complete log lines without their trailing newline.
type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

type writerSink struct {
	w          io.Writer
	timestamps bool
}

func (s *writerSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.timestamps {
		line = now.UTC().Format(logTimestampLayout) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

// dayClosedHook runs after the sink has moved on from day, outside the sink lock.
type dayClosedHook func(day time.Time, path string)

// dailyFileSink writes one file per UTC day and prunes files older than the
// retention window whenever it opens a new one.
type dailyFileSink struct {
	mu        sync.Mutex
	dir       string
	retention int
	day       string
	path      string
	file      *os.File
	onClose   dayClosedHook
	errors    *ratelimit.Counter
}

// Purpose: Prepare the log directory and prune stale files.
// Key aspects: Fails only when the directory cannot be created.
// Upstream: setupLogging.
// Downstream: pruneLogs.
func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	s := &dailyFileSink{
		dir:       dir,
		retention: retentionDays,
		errors:    ratelimit.NewCounter(time.Minute),
	}
	if err := pruneLogs(dir, time.Now(), retentionDays); err != nil {
		s.report(time.Now(), fmt.Errorf("prune %s: %w", dir, err))
	}
	return s, nil
}

// OnDayClosed registers fn to run once per day change.
func (s *dailyFileSink) OnDayClosed(fn dayClosedHook) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

func (s *dailyFileSink) WriteLine(line string, now time.Time) {
	now = now.UTC()
	day := now.Format(logFileDateLayout)

	s.mu.Lock()
	var (
		hook       dayClosedHook
		closedDay  time.Time
		closedPath string
	)
	if s.file == nil || s.day != day {
		if s.day != "" && s.day != day && s.onClose != nil {
			hook, closedPath = s.onClose, s.path
			closedDay, _ = time.ParseInLocation(logFileDateLayout, s.day, time.UTC)
		}
		s.openLocked(day, now)
	}
	if s.file != nil {
		if _, err := s.file.WriteString(now.Format(logTimestampLayout) + " " + line + "\n"); err != nil {
			s.report(now, fmt.Errorf("write %s: %w", s.path, err))
		}
	}
	s.mu.Unlock()

	if hook != nil {
		hook(closedDay, closedPath)
	}
}

func (s *dailyFileSink) openLocked(day string, now time.Time) {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.report(now, fmt.Errorf("create log directory %q: %w", s.dir, err))
		return
	}
	path := filepath.Join(s.dir, logFileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.report(now, fmt.Errorf("open %s: %w", path, err))
		return
	}
	s.file, s.day, s.path = f, day, path
	if err := pruneLogs(s.dir, now, s.retention); err != nil {
		s.report(now, fmt.Errorf("prune %s: %w", s.dir, err))
	}
}

// report prints sink failures to stderr; the log itself may be what failed.
func (s *dailyFileSink) report(now time.Time, err error) {
	if _, suppressed, allow := s.errors.Inc(now); allow {
		if suppressed > 0 {
			fmt.Fprintf(os.Stderr, "Logging: %v (%d similar errors suppressed)\n", err, suppressed)
			return
		}
		fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
	}
}

func (s *dailyFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.day, s.path = nil, "", ""
	return err
}

// logFanout is the log.SetOutput target: it splits writes into lines and
// copies each to the console sink (stderr or the LCD log pane) and the file.
type logFanout struct {
	mu      sync.Mutex
	partial []byte
	console lineSink
	file    lineSink
	now     func() time.Time
}

func newLogFanout(console, file lineSink) *logFanout {
	return &logFanout{console: console, file: file, now: time.Now}
}

// Purpose: Build the fanout from the logging config.
// Key aspects: Always returns a usable fanout; a file sink error is returned
// alongside so startup can continue on the console alone.
// Upstream: main.
// Downstream: newDailyFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	fanout := newLogFanout(&writerSink{w: console, timestamps: true}, nil)
	if !cfg.Enabled {
		return fanout, nil
	}
	sink, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return fanout, err
	}
	fanout.setFile(sink)
	return fanout, nil
}

// SetConsole redirects console output; the LCD pane adds its own timestamps.
func (f *logFanout) SetConsole(w io.Writer, timestamps bool) {
	var sink lineSink
	if w != nil {
		sink = &writerSink{w: w, timestamps: timestamps}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

func (f *logFanout) setFile(sink lineSink) {
	f.mu.Lock()
	f.file = sink
	f.mu.Unlock()
}

// OnDayClosed forwards to the file sink; a no-op without file logging.
func (f *logFanout) OnDayClosed(fn dayClosedHook) {
	f.mu.Lock()
	sink, ok := f.file.(*dailyFileSink)
	f.mu.Unlock()
	if ok {
		sink.OnDayClosed(fn)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.partial = append(f.partial, p...)
	var lines []string
	for {
		idx := bytes.IndexByte(f.partial, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(f.partial[:idx], "\r")))
		f.partial = f.partial[idx+1:]
	}
	if len(f.partial) > maxPartialLogBytes {
		lines = append(lines, string(f.partial))
		f.partial = nil
	}
	console, file := f.console, f.file
	f.mu.Unlock()

	now := f.now()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnly records lines in the log file without echoing them to the
// console. Used for the periodic stats block.
func (f *logFanout) WriteFileOnly(lines ...string) {
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file == nil {
		return
	}
	now := f.now()
	for _, line := range lines {
		file.WriteLine(line, now)
	}
}

func (f *logFanout) Close() error {
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

// appendLogLines appends timestamped lines to a closed day's file.
func appendLogLines(path string, now time.Time, lines []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	stamp := now.UTC().Format(logTimestampLayout)
	for _, line := range lines {
		if _, err := fmt.Fprintf(f, "%s %s\n", stamp, line); err != nil {
			return err
		}
	}
	return nil
}

func logFileName(now time.Time) string {
	return logFilePrefix + now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, logFilePrefix) || filepath.Ext(name) != ".log" {
		return time.Time{}, false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log")
	day, err := time.ParseInLocation(logFileDateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// pruneLogs keeps today's file and the retentionDays-1 days before it.
func pruneLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if day, ok := parseLogFileName(entry.Name()); ok && day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
