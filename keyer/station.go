package keyer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"morsekey/internal/ratelimit"
)

// NotifyConfig controls the flash patterns shown for lifecycle events.
type NotifyConfig struct {
	FlashInterval      time.Duration
	InitializeFlashes  int
	WordFlashes        int
	MessageFlashes     int
	TransmittedFlashes int
	ConfirmFlashes     int // shown when the confirmation window opens
}

// StationConfig is everything the Station needs besides its collaborators.
type StationConfig struct {
	Decoder      DecoderConfig
	Gate         GateConfig // Keypress is taken from Decoder.Timing when zero
	PollInterval time.Duration
	Notify       NotifyConfig
}

// Station is the single-writer polling loop: it samples the Input, drives the
// Decoder in ModeInput and the Gate in ModeConfirm, and forwards feedback to
// the Indicator and observers.
type Station struct {
	cfg       StationConfig
	input     Input
	indicator Indicator
	decoder   *Decoder
	gate      *Gate
	observers []Observer
	mode      Mode
	pending   Message // message held by the gate
	cued      bool    // window-open cue already given for pending
	now       func() time.Time
	noise     *ratelimit.Counter
	stopOnce  sync.Once
}

// NewStation wires the core. sender may be nil, in which case messages are
// reported but never enter the confirmation gate.
func NewStation(cfg StationConfig, input Input, indicator Indicator, sender Sender, observers ...Observer) (*Station, error) {
	if input == nil {
		return nil, errors.New("keyer: input is required")
	}
	if indicator == nil {
		return nil, errors.New("keyer: indicator is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("keyer: poll interval must be positive")
	}
	decoder, err := NewDecoder(cfg.Decoder)
	if err != nil {
		return nil, err
	}
	s := &Station{
		cfg:       cfg,
		input:     input,
		indicator: indicator,
		decoder:   decoder,
		observers: observers,
		now:       time.Now,
		noise:     ratelimit.NewCounter(5 * time.Second),
	}
	if sender != nil {
		gateCfg := cfg.Gate
		if gateCfg.Keypress <= 0 {
			gateCfg.Keypress = cfg.Decoder.Timing.Keypress
		}
		gate, err := NewGate(gateCfg, sender)
		if err != nil {
			return nil, err
		}
		s.gate = gate
	}
	return s, nil
}

// Purpose: Run the polling loop until ctx is cancelled.
// Key aspects: Flashes the initialise pattern, ticks at PollInterval, and always
// drives outputs off before returning.
// Upstream: main.
// Downstream: Tick, Shutdown.
func (s *Station) Run(ctx context.Context) error {
	defer s.Shutdown()

	s.indicator.Flash(s.cfg.Notify.InitializeFlashes, s.cfg.Notify.FlashInterval)
	s.indicator.Display("READY", "")
	log.Printf("Keyer: listening for key input (poll=%s)", s.cfg.PollInterval)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("Keyer: stopping (%v)", ctx.Err())
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick processes exactly one sample taken at now.
func (s *Station) Tick(ctx context.Context, now time.Time) {
	key := s.input.Sample()
	switch s.mode {
	case ModeInput:
		for _, ev := range s.decoder.Observe(key, now) {
			s.handleEvent(ev, now)
		}
	case ModeConfirm:
		s.cueConfirm(now)
		if res, done := s.gate.Observe(ctx, key, now); done {
			s.finishConfirm(res)
		}
	}
}

func (s *Station) handleEvent(ev Event, now time.Time) {
	notify := s.cfg.Notify
	switch ev.Kind {
	case EventKeyDown:
		s.indicator.SetActive(true)
	case EventKeyUp:
		s.indicator.SetActive(false)
	case EventNoise:
		if total, suppressed, ok := s.noise.Inc(now); ok {
			log.Printf("Keyer: discarded %s press as noise (total=%d, suppressed=%d)", ev.Duration, total, suppressed)
		}
	case EventDit, EventDah:
		log.Printf("Keyer: %s (%s)", ev.Kind, ev.Duration)
	case EventCharacter:
		log.Printf("Keyer: character added: %s (%s)", ev.Symbols, ev.Text)
		s.indicator.SetActive(false)
		s.indicator.Display(s.decoder.PartialText(), ev.Symbols)
	case EventWord:
		log.Printf("Keyer: word added: %s (%s)", ev.Symbols, ev.Text)
		s.indicator.Flash(notify.WordFlashes, notify.FlashInterval)
	case EventMessage:
		log.Printf("Keyer: message completed: %s", ev.Symbols)
		log.Printf("Keyer: text: %s", ev.Text)
		s.indicator.Flash(notify.MessageFlashes, notify.FlashInterval)
		s.indicator.Display("MESSAGE", ev.Text)
	}
	s.notifyEvent(ev)

	if ev.Kind == EventMessage && s.gate != nil && ev.Message != nil {
		s.enterConfirm(*ev.Message, now)
	}
}

func (s *Station) enterConfirm(msg Message, now time.Time) {
	if err := s.gate.Open(msg, now); err != nil {
		log.Printf("Gate: not opened: %v", err)
		return
	}
	s.mode = ModeConfirm
	s.pending, s.cued = msg, false
	opensAt, deadline := s.gate.Window()
	log.Printf("Gate: tap between %s and %s to confirm transmission",
		opensAt.Format("15:04:05"), deadline.Format("15:04:05"))
	s.indicator.Display("TAP TO SEND", msg.Text)
}

// cueConfirm flashes the indicator once, when the quiet period ends and a tap
// starts to count. LED-only stations have no other sign the window is open.
func (s *Station) cueConfirm(now time.Time) {
	if s.cued {
		return
	}
	opensAt, _ := s.gate.Window()
	if now.Before(opensAt) {
		return
	}
	s.cued = true
	log.Printf("Gate: window open, tap to send %q", s.pending.Text)
	s.indicator.Flash(s.cfg.Notify.ConfirmFlashes, s.cfg.Notify.FlashInterval)
	s.notifyEvent(Event{Kind: EventConfirmOpen, At: now, Text: s.pending.Text})
}

func (s *Station) finishConfirm(res GateResult) {
	notify := s.cfg.Notify
	switch res.Outcome {
	case OutcomeSent:
		log.Printf("Gate: transmission successful (id=%s, to=%s)", res.Receipt.ID, res.Receipt.Destination)
		s.indicator.Flash(notify.TransmittedFlashes, notify.FlashInterval)
		s.indicator.Display("SENT", res.Message.Text)
	case OutcomeFailed:
		log.Printf("Gate: transmission error: %v", res.Err)
		s.indicator.Display("SEND FAILED", errorLine(res.Err))
	case OutcomeSkipped:
		log.Printf("Gate: confirmation window ended, message discarded")
		s.indicator.Display("SKIPPED", "")
	}
	s.notifyOutcome(res)

	s.pending, s.cued = Message{}, false
	s.decoder.Reset()
	s.mode = ModeInput
	log.Printf("Keyer: returning to input mode")
}

func (s *Station) notifyEvent(ev Event) {
	for _, o := range s.observers {
		o.ObserveEvent(ev)
	}
}

func (s *Station) notifyOutcome(res GateResult) {
	for _, o := range s.observers {
		o.ObserveOutcome(res)
	}
}

// Shutdown drives every output to its safe state. It is idempotent and runs
// on every exit path of Run.
func (s *Station) Shutdown() {
	s.stopOnce.Do(func() {
		if s.gate != nil && s.gate.Active() {
			s.gate.Cancel()
		}
		s.indicator.SetActive(false)
		s.indicator.Display("", "")
	})
}

// Mode returns the current top-level mode.
func (s *Station) Mode() Mode {
	return s.mode
}

// Decoder exposes the decoder for inspection.
func (s *Station) Decoder() *Decoder {
	return s.decoder
}

func errorLine(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
