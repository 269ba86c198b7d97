// Command keyreplay decodes a recorded key timeline, or text synthesised into
// one, through the same decoder the station uses, and reports how closely the
// decoded text matches what was expected. It shares the station configuration
// for thresholds but touches no hardware and sends nothing.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	lev "github.com/agnivade/levenshtein"

	"morsekey/config"
	"morsekey/keyer"
	"morsekey/replay"
	"morsekey/strutil"
)

var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type options struct {
	configPath   string
	timelinePath string
	text         string
	expect       string
	wpm          float64
	autoTiming   bool
	step         time.Duration
	emit         bool
	events       bool
}

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("keyreplay: %v", err)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("keyreplay", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Config file or directory for decoder thresholds (defaults when empty)")
	fs.StringVar(&opts.timelinePath, "timeline", "", "Timeline file to decode; - reads stdin")
	fs.StringVar(&opts.text, "text", "", "Text to synthesise into a timeline and decode")
	fs.StringVar(&opts.expect, "expect", "", "Expected text for the accuracy report (defaults to -text)")
	fs.Float64Var(&opts.wpm, "wpm", 20, "Keying speed for -text, in PARIS words per minute")
	fs.BoolVar(&opts.autoTiming, "auto_timing", false, "Derive thresholds from -wpm instead of the config")
	fs.DurationVar(&opts.step, "step", 0, "Sampling step (defaults to the configured poll interval)")
	fs.BoolVar(&opts.emit, "emit", false, "Print the timeline before decoding")
	fs.BoolVar(&opts.events, "events", false, "Print every decoder event")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if (opts.timelinePath == "") == (opts.text == "") {
		return opts, errors.New("exactly one of -timeline or -text is required")
	}
	if opts.expect == "" {
		opts.expect = opts.text
	}
	return opts, nil
}

// Purpose: Decode one timeline and write the report.
// Key aspects: Thresholds come from the config unless -auto_timing derives
// them from the keying speed; the timeline is synthesised with a tail long
// enough for the message boundary to fire.
// Upstream: main, tests.
// Downstream: replay.Synthesize, replay.Decode, levenshtein.
func run(args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg := config.Default()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	decCfg := cfg.DecoderConfig()
	unit := replay.UnitForWPM(opts.wpm)
	if opts.autoTiming {
		if unit <= 0 {
			return fmt.Errorf("-wpm must be positive, got %v", opts.wpm)
		}
		decCfg.Timing = replay.TimingForUnit(unit)
	}
	step := opts.step
	if step <= 0 {
		step = config.Millis(cfg.Timing.PollIntervalMS)
	}

	var tl replay.Timeline
	if opts.text != "" {
		var skipped []rune
		tail := decCfg.Timing.Message + decCfg.Timing.Message/2
		tl, skipped, err = replay.Synthesize(opts.text, unit, tail)
		if err != nil {
			return err
		}
		if len(skipped) > 0 {
			fmt.Fprintf(stdout, "Skipped characters with no Morse code: %q\n", string(skipped))
		}
	} else {
		tl, err = readTimeline(opts.timelinePath, stdin)
		if err != nil {
			return err
		}
	}
	if opts.emit {
		fmt.Fprintf(stdout, "Timeline: %s\n", tl)
	}

	res, err := replay.Decode(tl, decCfg, step, epoch)
	if err != nil {
		return err
	}
	if opts.events {
		for _, ev := range res.Events {
			fmt.Fprintln(stdout, formatEvent(ev))
		}
	}
	for i, msg := range res.Messages {
		fmt.Fprintf(stdout, "Message %d: %s  [%s]\n", i+1, msg.Text, msg.Morse)
	}
	if res.Partial != "" {
		fmt.Fprintf(stdout, "Unfinished: %s\n", res.Partial)
	}
	fmt.Fprintf(stdout, "Decoded: %s\n", res.Text())
	fmt.Fprintf(stdout, "Elements: %d dit, %d dah, %d noise over %s\n",
		res.Count(keyer.EventDit), res.Count(keyer.EventDah), res.Count(keyer.EventNoise), tl.Total())

	if opts.expect != "" {
		fmt.Fprintln(stdout, accuracyLine(opts.expect, res.Text()))
	}
	return nil
}

func readTimeline(path string, stdin io.Reader) (replay.Timeline, error) {
	if path == "-" {
		return replay.Parse(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timeline: %w", err)
	}
	defer f.Close()
	return replay.Parse(f)
}

func formatEvent(ev keyer.Event) string {
	offset := ev.At.Sub(epoch).Milliseconds()
	line := fmt.Sprintf("%7dms %-9s %5dms", offset, ev.Kind, ev.Duration.Milliseconds())
	if ev.Symbols != "" || ev.Text != "" {
		line += fmt.Sprintf(" %s %s", ev.Symbols, ev.Text)
	}
	return strings.TrimRight(line, " ")
}

// accuracyLine compares expected and decoded text case-insensitively with
// collapsed whitespace.
func accuracyLine(expected, decoded string) string {
	want := strutil.SingleLine(strutil.NormalizeUpper(expected))
	got := strutil.SingleLine(strutil.NormalizeUpper(decoded))
	dist := lev.ComputeDistance(want, got)
	accuracy := 100.0
	if n := len([]rune(want)); n > 0 {
		accuracy = 100 * (1 - float64(dist)/float64(n))
		if accuracy < 0 {
			accuracy = 0
		}
	}
	return fmt.Sprintf("Accuracy: %.1f%% (edit distance %d against %q)", accuracy, dist, want)
}
