package indicator

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// ToneGenerator streams a continuous sine tone with a short attack so keying
// does not click.
type ToneGenerator struct {
	sr     beep.SampleRate
	freq   float64
	volume float64
	pos    int
	attack int
}

// NewToneGenerator creates a tone at freq Hz and volume 0..1.
func NewToneGenerator(sr beep.SampleRate, freq, volume float64) *ToneGenerator {
	return &ToneGenerator{
		sr:     sr,
		freq:   freq,
		volume: volume,
		attack: sr.N(5 * time.Millisecond),
	}
}

func (g *ToneGenerator) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		t := float64(g.pos) / float64(g.sr)
		envelope := 1.0
		if g.attack > 0 && g.pos < g.attack {
			envelope = float64(g.pos) / float64(g.attack)
		}
		sample := g.volume * envelope * math.Sin(2*math.Pi*g.freq*t)
		samples[i][0] = sample
		samples[i][1] = sample
		g.pos++
	}
	return len(samples), true
}

func (g *ToneGenerator) Err() error {
	return nil
}

// Restart rewinds the envelope so the next note fades in again.
func (g *ToneGenerator) Restart() {
	g.pos = 0
}

// SidetoneOptions configures the software sidetone.
type SidetoneOptions struct {
	FrequencyHz float64
	Volume      float64
	SampleRate  int
}

// Sidetone plays the key state and flash patterns as audio through the sound
// card. It is an Indicator; Display is ignored.
type Sidetone struct {
	mu          sync.Mutex
	sr          beep.SampleRate
	opts        SidetoneOptions
	mixer       *beep.Mixer
	key         *beep.Ctrl
	tone        *ToneGenerator
	active      bool
	initialized bool
}

// NewSidetone builds the mixer graph. Nothing is audible until Start.
func NewSidetone(opts SidetoneOptions) *Sidetone {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	sr := beep.SampleRate(opts.SampleRate)
	tone := NewToneGenerator(sr, opts.FrequencyHz, opts.Volume)
	s := &Sidetone{
		sr:    sr,
		opts:  opts,
		mixer: &beep.Mixer{},
		tone:  tone,
		key:   &beep.Ctrl{Streamer: tone, Paused: true},
	}
	s.mixer.Add(s.key)
	return s
}

// Start opens the audio device and begins playback of the mixer.
func (s *Sidetone) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := speaker.Init(s.sr, s.sr.N(50*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(s.mixer)
	s.initialized = true
	return nil
}

// SetActive sounds the tone while the key is held.
func (s *Sidetone) SetActive(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on == s.active {
		return
	}
	s.active = on
	speaker.Lock()
	if on {
		s.tone.Restart()
	}
	s.key.Paused = !on
	speaker.Unlock()
}

// Flash queues count beeps of interval length separated by equal silences.
// It returns immediately; the pattern plays in the audio callback.
func (s *Sidetone) Flash(count int, interval time.Duration) {
	if count <= 0 || interval <= 0 {
		return
	}
	n := s.sr.N(interval)
	parts := make([]beep.Streamer, 0, 2*count)
	for i := 0; i < count; i++ {
		parts = append(parts,
			beep.Take(n, NewToneGenerator(s.sr, s.opts.FrequencyHz*1.5, s.opts.Volume)),
			beep.Silence(n))
	}
	speaker.Lock()
	s.mixer.Add(beep.Seq(parts...))
	speaker.Unlock()
}

func (s *Sidetone) Display(string, string) {}

// Close silences all output and clears queued patterns.
func (s *Sidetone) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Lock()
	s.key.Paused = true
	s.mixer.Clear()
	speaker.Unlock()
	s.active = false
	if s.initialized {
		speaker.Clear()
		s.initialized = false
	}
}

// Mixer exposes the output graph, mainly for tests.
func (s *Sidetone) Mixer() beep.Streamer {
	return s.mixer
}
