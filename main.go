// Program morsekey turns a straight key on a GPIO pin into text. It decodes
// dits and dahs into characters, words and messages, shows progress on the
// LED, buzzer, sidetone and a character display, and after a confirming tap
// transmits each finished message over MQTT or to a DX cluster node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"morsekey/buffer"
	"morsekey/config"
	"morsekey/gpio"
	"morsekey/indicator"
	"morsekey/keyer"
	"morsekey/metrics"
	"morsekey/replay"
	"morsekey/sender"
	"morsekey/stats"
	"morsekey/status"
	"morsekey/ui"
)

const (
	defaultConfigPath = "data/config.yaml"
	envConfigPath     = "MORSEKEY_CONFIG"
	statsLogInterval  = time.Minute
	statsUIInterval   = 2 * time.Second
	shutdownTimeout   = 2 * time.Second
)

var errNoKeyInput = errors.New("no key input: enable gpio or pass -replay or -text")

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from the flag, env or default location.
// Key aspects: An explicit -config path must load; the env and default
// candidates fall through to built-in defaults when missing.
// Upstream: main startup.
// Downstream: config.Load.
func loadConfig(flagPath string) (*config.Config, error) {
	if path := strings.TrimSpace(flagPath); path != "" {
		return config.Load(path)
	}
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return cfg, nil
	}
	cfg := config.Default()
	cfg.LoadedFrom = "built-in defaults"
	return cfg, nil
}

// keyInput is the selected key source plus whatever must be released on exit.
type keyInput struct {
	input   keyer.Input
	outputs *gpio.Outputs // nil unless GPIO is in use
	player  *replay.Player
	timing  *keyer.Timing // thresholds matched to synthesised keying, nil otherwise
}

// Purpose: Pick the key source: a replayed timeline, or the GPIO key.
// Key aspects: Replay takes precedence so a station can be exercised without
// hardware; GPIO outputs are only opened together with the GPIO key.
// Upstream: main.
// Downstream: replay.Parse/Synthesize, gpio.Open.
func openKeyInput(cfg *config.Config, replayPath, replayText string, wpm float64) (keyInput, error) {
	switch {
	case replayPath != "" || replayText != "":
		tl, timing, err := loadReplayTimeline(replayPath, replayText, wpm)
		if err != nil {
			return keyInput{}, err
		}
		log.Printf("Keyer: replaying %d segments (%s)", len(tl), tl.Total())
		p := replay.NewPlayer(tl)
		return keyInput{input: p, player: p, timing: timing}, nil
	case cfg.GPIO.Enabled:
		if err := gpio.Init(); err != nil {
			return keyInput{}, err
		}
		key, outs, err := gpio.Open(gpio.Options{
			KeyPin:       cfg.GPIO.KeyPin,
			LEDPin:       cfg.GPIO.LEDPin,
			BuzzerPin:    cfg.GPIO.BuzzerPin,
			BuzzerFreqHz: cfg.GPIO.BuzzerFreqHz,
			Pull:         cfg.GPIO.Pull,
			ActiveLow:    cfg.GPIO.ActiveLow,
		})
		if err != nil {
			return keyInput{}, err
		}
		log.Printf("GPIO: key on %s, LED on %s, buzzer on %s", cfg.GPIO.KeyPin, cfg.GPIO.LEDPin, cfg.GPIO.BuzzerPin)
		return keyInput{input: key, outputs: outs}, nil
	default:
		return keyInput{}, errNoKeyInput
	}
}

// loadReplayTimeline reads a timeline file, or synthesises text at wpm. For
// text it also returns the thresholds derived from the same dit length, since
// the configured thresholds describe the operator's hand, not the synthesiser.
func loadReplayTimeline(path, text string, wpm float64) (replay.Timeline, *keyer.Timing, error) {
	if text != "" {
		unit := replay.UnitForWPM(wpm)
		if unit <= 0 {
			return nil, nil, fmt.Errorf("-wpm must be positive, got %v", wpm)
		}
		timing := replay.TimingForUnit(unit)
		tl, skipped, err := replay.Synthesize(text, unit, timing.Message*3/2)
		if len(skipped) > 0 {
			log.Printf("Keyer: skipping characters with no Morse code: %q", string(skipped))
		}
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Keyer: keying at %.0f wpm, thresholds char=%s word=%s message=%s",
			wpm, timing.Char, timing.Word, timing.Message)
		return tl, &timing, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open replay timeline: %w", err)
	}
	defer f.Close()
	tl, err := replay.Parse(f)
	return tl, nil, err
}

// stationConfig applies the key source's timing override, if any.
func stationConfig(cfg *config.Config, key keyInput) keyer.StationConfig {
	sc := cfg.StationConfig()
	if key.timing != nil {
		sc.Decoder.Timing = *key.timing
		sc.Gate.Keypress = key.timing.Keypress
	}
	return sc
}

// stationName is the identity stamped on outgoing payloads.
func stationName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Sender.MQTT.Station); name != "" {
		return name
	}
	return cfg.Sender.Cluster.Callsign
}

// Purpose: Build the configured transmitter.
// Key aspects: Returns a nil Sender for kind none, so finished messages are
// only displayed; MQTT connect failures are logged and the sender reports
// each send as failed until a later reconnect.
// Upstream: main.
// Downstream: sender.NewLog, sender.NewMQTT, sender.NewCluster, sender.WithTimeout.
func buildSender(ctx context.Context, cfg *config.Config) (keyer.Sender, func(), error) {
	timeout := config.Seconds(cfg.Confirm.SendTimeoutSeconds)
	noop := func() {}
	switch cfg.Sender.Kind {
	case config.SenderNone:
		return nil, noop, nil
	case config.SenderLog:
		return sender.NewLog(stationName(cfg)), noop, nil
	case config.SenderMQTT:
		m := cfg.Sender.MQTT
		mq := sender.NewMQTT(sender.MQTTOptions{
			Broker:   m.Broker,
			Port:     m.Port,
			Topic:    m.Topic,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
			QoS:      byte(m.QoS),
			Retained: m.Retained,
			Station:  stationName(cfg),
		})
		connectCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := mq.Connect(connectCtx); err != nil {
			log.Printf("MQTT: %v; retrying in the background, messages fail until connected", err)
		}
		return sender.WithTimeout(mq, timeout), mq.Close, nil
	case config.SenderCluster:
		c := cfg.Sender.Cluster
		return sender.WithTimeout(sender.NewCluster(sender.ClusterOptions{
			Host:        c.Host,
			Port:        c.Port,
			Callsign:    c.Callsign,
			LoginPrompt: c.LoginPrompt,
			Command:     c.Command,
			Timeout:     timeout,
		}), timeout), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", config.ErrUnknownSender, cfg.Sender.Kind)
	}
}

// statusSurface groups the HTTP status server and the observers feeding it.
type statusSurface struct {
	server    *status.Server
	observers []keyer.Observer
}

func startStatus(cfg config.StatusConfig) (*statusSurface, error) {
	ring := buffer.NewRingBuffer(cfg.HistorySize)
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hub := status.NewHub()
	srv := status.New(status.Options{
		Listen:   cfg.Listen,
		History:  ring,
		Gatherer: reg,
		Hub:      hub,
	})
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return &statusSurface{
		server:    srv,
		observers: []keyer.Observer{buffer.NewHistory(ring), metrics.New(reg), hub},
	}, nil
}

func prefixed(prefix string, lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = prefix + line
	}
	return out
}

// Purpose: Publish session stats on the LCD and in the log file.
// Key aspects: The LCD refreshes every few seconds; the file gets a block
// once a minute without echoing to the console.
// Upstream: main.
// Downstream: stats.Tracker.SnapshotLines, logFanout.WriteFileOnly.
func reportStats(ctx context.Context, tracker *stats.Tracker, lcd *ui.LCD, fanout *logFanout) {
	uiTicker := time.NewTicker(statsUIInterval)
	defer uiTicker.Stop()
	logTicker := time.NewTicker(statsLogInterval)
	defer logTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-uiTicker.C:
			if lcd != nil {
				lcd.SetStats(tracker.SnapshotLines())
			}
		case <-logTicker.C:
			fanout.WriteFileOnly(prefixed("Stats: ", tracker.SnapshotLines())...)
		}
	}
}

func main() {
	configPath := flag.String("config", "", "Config file or directory (default $"+envConfigPath+" or "+defaultConfigPath+")")
	replayPath := flag.String("replay", "", "Play a key timeline file instead of reading the GPIO key")
	replayText := flag.String("text", "", "Key this text at -wpm instead of reading the GPIO key")
	wpm := flag.Float64("wpm", 20, "Keying speed for -text")
	printConfig := flag.Bool("print_config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *printConfig {
		cfg.Print()
		return
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stderr)
	log.SetFlags(0)
	log.SetOutput(fanout)
	if logErr != nil {
		log.Printf("Logging: file logging disabled: %v", logErr)
	}

	err = runStation(cfg, fanout, runOptions{replayPath: *replayPath, replayText: *replayText, wpm: *wpm})
	if err != nil {
		log.Printf("Error: %v", err)
	}
	_ = fanout.Close()
	if err != nil {
		os.Exit(1)
	}
}

type runOptions struct {
	replayPath string
	replayText string
	wpm        float64
}

// Purpose: Wire every collaborator around the keyer station and run it.
// Key aspects: Optional surfaces (sidetone, status server, MQTT) degrade to a
// logged warning; a missing key input or bad sender setting is fatal.
// Cleanup runs in reverse order of construction via defers.
// Upstream: main.
// Downstream: keyer.Station.Run.
func runStation(cfg *config.Config, fanout *logFanout, opts runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uiMode := cfg.UI.Mode
	if uiMode != config.UIModeHeadless && !isStdoutTTY() {
		log.Printf("UI disabled (%s requires an interactive console)", uiMode)
		uiMode = config.UIModeHeadless
	}

	var indicators []keyer.Indicator
	var lcd *ui.LCD
	switch uiMode {
	case config.UIModeLCD:
		lcd = ui.NewLCD(ui.LCDOptions{OnQuit: stop})
		lcd.Start()
		if !lcd.WaitReady(2 * time.Second) {
			log.Printf("UI: display not ready after 2s")
		}
		fanout.SetConsole(lcd.SystemWriter(), false)
		defer func() {
			lcd.Stop()
			fanout.SetConsole(os.Stderr, true)
		}()
		indicators = append(indicators, lcd)
	case config.UIModeConsole:
		indicators = append(indicators, indicator.NewConsole(os.Stdout))
	}
	log.Printf("Loaded configuration from %s", cfg.LoadedFrom)
	if lcd == nil {
		cfg.Print()
	}

	key, err := openKeyInput(cfg, opts.replayPath, opts.replayText, opts.wpm)
	if err != nil {
		return fmt.Errorf("key input: %w", err)
	}
	if key.outputs != nil {
		indicators = append(indicators, key.outputs)
		defer func() {
			if err := key.outputs.Halt(); err != nil {
				log.Printf("GPIO: halt outputs: %v", err)
			}
		}()
	}

	if cfg.Sidetone.Enabled {
		tone := indicator.NewSidetone(indicator.SidetoneOptions{
			FrequencyHz: cfg.Sidetone.FrequencyHz,
			Volume:      cfg.Sidetone.Volume,
			SampleRate:  cfg.Sidetone.SampleRate,
		})
		if err := tone.Start(); err != nil {
			log.Printf("Sidetone: disabled: %v", err)
		} else {
			indicators = append(indicators, tone)
			defer tone.Close()
		}
	}

	snd, closeSender, err := buildSender(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSender()

	tracker := stats.NewTracker()
	observers := []keyer.Observer{tracker}
	if lcd != nil {
		observers = append(observers, lcd)
	}
	if cfg.Status.Enabled {
		surface, err := startStatus(cfg.Status)
		if err != nil {
			log.Printf("Status: disabled: %v", err)
		} else {
			observers = append(observers, surface.observers...)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := surface.server.Shutdown(shutdownCtx); err != nil {
					log.Printf("Status: shutdown: %v", err)
				}
			}()
		}
	}

	fanout.OnDayClosed(func(day time.Time, path string) {
		lines := prefixed("Stats: ", tracker.SnapshotLines())
		if err := appendLogLines(path, time.Now(), lines); err != nil {
			log.Printf("Logging: append summary to %s: %v", path, err)
		}
	})

	sc := stationConfig(cfg, key)
	station, err := keyer.NewStation(sc, key.input, indicator.NewMulti(indicators...), snd, observers...)
	if err != nil {
		return err
	}

	if key.player != nil {
		// Leave room for the message boundary and an unanswered confirmation window.
		linger := sc.Gate.Quiet + sc.Gate.Window + time.Second
		timer := time.AfterFunc(replayDuration(key.player, cfg)+linger, stop)
		defer timer.Stop()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportStats(ctx, tracker, lcd, fanout)
	}()

	log.Printf("Keyer: running, press Ctrl+C to stop")
	runErr := station.Run(ctx)
	stop()
	wg.Wait()
	logFinalStats(log.Writer(), tracker)
	return runErr
}

func replayDuration(p *replay.Player, cfg *config.Config) time.Duration {
	return p.Timeline().Total() + config.Millis(cfg.Timing.PollIntervalMS)
}

func logFinalStats(w io.Writer, tracker *stats.Tracker) {
	for _, line := range tracker.SnapshotLines() {
		fmt.Fprintf(w, "Stats: %s\n", line)
	}
}
