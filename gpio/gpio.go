// Package gpio reads the key contact and drives the LED and buzzer on a
// single-board computer's header pins through periph.io.
package gpio

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"morsekey/keyer"
)

// ErrUnknownPin is returned when a configured pin name is not registered.
var ErrUnknownPin = errors.New("gpio: unknown pin")

// Options names the pins. Empty LED or buzzer names disable that output.
type Options struct {
	KeyPin       string
	LEDPin       string
	BuzzerPin    string
	BuzzerFreqHz int
	Pull         string // down | up | none
	ActiveLow    bool   // key closes to ground
}

// Init loads the host drivers. It must run once before Open.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gpio: host init: %w", err)
	}
	return nil
}

// Open resolves the configured pins by name and configures them.
func Open(opts Options) (*Key, *Outputs, error) {
	keyPin, err := lookup(opts.KeyPin)
	if err != nil {
		return nil, nil, err
	}
	var led, buzzer gpio.PinIO
	if opts.LEDPin != "" {
		if led, err = lookup(opts.LEDPin); err != nil {
			return nil, nil, err
		}
	}
	if opts.BuzzerPin != "" {
		if buzzer, err = lookup(opts.BuzzerPin); err != nil {
			return nil, nil, err
		}
	}
	key, err := NewKey(keyPin, opts.Pull, opts.ActiveLow)
	if err != nil {
		return nil, nil, err
	}
	out, err := NewOutputs(led, buzzer, opts.BuzzerFreqHz)
	if err != nil {
		return nil, nil, err
	}
	return key, out, nil
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	return p, nil
}

func parsePull(pull string) gpio.Pull {
	switch strings.ToLower(pull) {
	case "up":
		return gpio.PullUp
	case "none":
		return gpio.Float
	default:
		return gpio.PullDown
	}
}

// Key samples the key contact. It implements keyer.Input.
type Key struct {
	pin       gpio.PinIn
	activeLow bool
}

// NewKey configures pin as an input with the given pull resistor.
func NewKey(pin gpio.PinIn, pull string, activeLow bool) (*Key, error) {
	if err := pin.In(parsePull(pull), gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("gpio: configure key pin %s: %w", pin, err)
	}
	return &Key{pin: pin, activeLow: activeLow}, nil
}

func (k *Key) Sample() keyer.KeyState {
	level := k.pin.Read()
	if (level == gpio.High) != k.activeLow {
		return keyer.KeyPressed
	}
	return keyer.KeyReleased
}

// Outputs drives the LED and a PWM buzzer. It implements keyer.Indicator;
// Flash blocks for the length of the pattern.
type Outputs struct {
	mu     sync.Mutex
	led    gpio.PinOut
	buzzer gpio.PinOut
	freq   physic.Frequency
	sleep  func(time.Duration)
}

// NewOutputs drives both outputs low. Either pin may be nil.
func NewOutputs(led, buzzer gpio.PinOut, buzzerFreqHz int) (*Outputs, error) {
	o := &Outputs{
		led:    led,
		buzzer: buzzer,
		freq:   physic.Frequency(buzzerFreqHz) * physic.Hertz,
		sleep:  time.Sleep,
	}
	for _, p := range []gpio.PinOut{led, buzzer} {
		if p == nil {
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("gpio: configure output %s: %w", p, err)
		}
	}
	return o, nil
}

// SetActive lights the LED and sounds the buzzer while the key is held.
func (o *Outputs) SetActive(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLED(on)
	o.setBuzzer(on)
}

// Purpose: Blink the LED count times.
// Key aspects: Each blink is interval on then interval off; the keying loop
// is paused meanwhile, matching a hardware-only station.
// Upstream: keyer.Station notifications.
// Downstream: setLED.
func (o *Outputs) Flash(count int, interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < count; i++ {
		o.setLED(true)
		o.sleep(interval)
		o.setLED(false)
		o.sleep(interval)
	}
}

func (o *Outputs) Display(string, string) {}

// Halt drives both outputs low and stops PWM. Safe to call more than once.
func (o *Outputs) Halt() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for _, p := range []gpio.PinOut{o.led, o.buzzer} {
		if p == nil {
			continue
		}
		if err := p.Halt(); err != nil {
			errs = append(errs, err)
		}
		if err := p.Out(gpio.Low); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Outputs) setLED(on bool) {
	if o.led == nil {
		return
	}
	if err := o.led.Out(gpio.Level(on)); err != nil {
		log.Printf("GPIO: LED %s: %v", o.led, err)
	}
}

func (o *Outputs) setBuzzer(on bool) {
	if o.buzzer == nil {
		return
	}
	var err error
	if on && o.freq > 0 {
		err = o.buzzer.PWM(gpio.DutyHalf, o.freq)
	} else {
		err = o.buzzer.Out(gpio.Low)
	}
	if err != nil {
		log.Printf("GPIO: buzzer %s: %v", o.buzzer, err)
	}
}
