// Package config loads the station configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete station configuration
type Config struct {
	Timing     TimingConfig    `yaml:"timing"`
	Delimiters DelimiterConfig `yaml:"delimiters"`
	Confirm    ConfirmConfig   `yaml:"confirm"`
	Notify     NotifyConfig    `yaml:"notify"`
	GPIO       GPIOConfig      `yaml:"gpio"`
	Sidetone   SidetoneConfig  `yaml:"sidetone"`
	UI         UIConfig        `yaml:"ui"`
	Sender     SenderConfig    `yaml:"sender"`
	Status     StatusConfig    `yaml:"status"`
	Logging    LoggingConfig   `yaml:"logging"`

	// LoadedFrom is the file or directory the configuration was read from.
	LoadedFrom string `yaml:"-"`
}

// TimingConfig holds the decoding thresholds in milliseconds.
type TimingConfig struct {
	KeypressMS     int `yaml:"keypress_threshold_ms"`
	DitDahMS       int `yaml:"ditdah_threshold_ms"`
	CharMS         int `yaml:"char_threshold_ms"`
	WordMS         int `yaml:"word_threshold_ms"`
	MessageMS      int `yaml:"message_threshold_ms"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// DelimiterConfig controls the raw Morse rendering of a finished message.
type DelimiterConfig struct {
	Char string `yaml:"char"`
	Word string `yaml:"word"`
}

// ConfirmConfig controls the transmission confirmation window.
type ConfirmConfig struct {
	ThresholdSeconds   float64 `yaml:"threshold_seconds"`
	DurationSeconds    float64 `yaml:"duration_seconds"`
	SendTimeoutSeconds float64 `yaml:"send_timeout_seconds"`
}

// NotifyConfig holds LED flash patterns.
type NotifyConfig struct {
	FlashIntervalMS    int `yaml:"flash_interval_ms"`
	InitializeFlashes  int `yaml:"initialize_flashes"`
	WordFlashes        int `yaml:"word_flashes"`
	MessageFlashes     int `yaml:"message_flashes"`
	TransmittedFlashes int `yaml:"transmitted_flashes"`
	ConfirmFlashes     int `yaml:"confirm_flashes"`
}

// GPIOConfig names the header pins for the key, LED and buzzer.
type GPIOConfig struct {
	Enabled      bool   `yaml:"enabled"`
	KeyPin       string `yaml:"key_pin"`
	LEDPin       string `yaml:"led_pin"`
	BuzzerPin    string `yaml:"buzzer_pin"`
	BuzzerFreqHz int    `yaml:"buzzer_freq_hz"`
	Pull         string `yaml:"pull"` // down | up | none
	ActiveLow    bool   `yaml:"active_low"`
}

// SidetoneConfig controls the software sidetone played on the sound card.
type SidetoneConfig struct {
	Enabled     bool    `yaml:"enabled"`
	FrequencyHz float64 `yaml:"frequency_hz"`
	Volume      float64 `yaml:"volume"` // 0..1
	SampleRate  int     `yaml:"sample_rate"`
}

// UIConfig selects the local console surface.
type UIConfig struct {
	Mode string `yaml:"mode"` // headless | console | lcd
}

// SenderConfig selects and configures the transmission backend.
type SenderConfig struct {
	Kind    string        `yaml:"kind"` // none | log | mqtt | cluster
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
	Station  string `yaml:"station"`
}

// ClusterConfig contains DX cluster telnet settings
type ClusterConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Callsign    string `yaml:"callsign"`
	LoginPrompt string `yaml:"login_prompt"`
	Command     string `yaml:"command"`
}

// StatusConfig controls the HTTP status server.
type StatusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	HistorySize int    `yaml:"history_size"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

const (
	UIModeHeadless = "headless"
	UIModeConsole  = "console"
	UIModeLCD      = "lcd"

	SenderNone    = "none"
	SenderLog     = "log"
	SenderMQTT    = "mqtt"
	SenderCluster = "cluster"
)

var (
	ErrThresholdOrder  = errors.New("timing: keypress < ditdah and char < word < message required")
	ErrNonPositive     = errors.New("value must be positive")
	ErrUnknownUIMode   = errors.New("ui.mode must be headless, console or lcd")
	ErrUnknownSender   = errors.New("sender.kind must be none, log, mqtt or cluster")
	ErrMissingSetting  = errors.New("required setting missing")
	ErrOutOfRange      = errors.New("value out of range")
	ErrUnknownPullMode = errors.New("gpio.pull must be down, up or none")
	ErrNotConfigSource = errors.New("config path must be a YAML file or a directory of YAML files")
)

// Purpose: Load configuration from a YAML file or a directory of YAML files.
// Key aspects: Directory files merge in lexical order so later files override
// earlier ones; defaults are applied before validation.
// Upstream: main startup, cmd/keyreplay.
// Downstream: yaml.Unmarshal, normalize, Validate.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
	} else if !isYAML(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigSource, path)
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(file), err)
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = path
	return &cfg, nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	var cfg Config
	cfg.normalize()
	return &cfg
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .yaml files in %s", ErrNotConfigSource, dir)
	}
	sort.Strings(files)
	return files, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// normalize fills zero values with defaults.
func (c *Config) normalize() {
	t := &c.Timing
	setDefault(&t.KeypressMS, 20)
	setDefault(&t.DitDahMS, 180)
	setDefault(&t.CharMS, 400)
	setDefault(&t.WordMS, 1000)
	setDefault(&t.MessageMS, 3000)
	setDefault(&t.PollIntervalMS, 5)

	if c.Delimiters.Char == "" {
		c.Delimiters.Char = " "
	}
	if c.Delimiters.Word == "" {
		c.Delimiters.Word = " / "
	}

	if c.Confirm.ThresholdSeconds == 0 {
		c.Confirm.ThresholdSeconds = 2
	}
	if c.Confirm.DurationSeconds == 0 {
		c.Confirm.DurationSeconds = 5
	}
	if c.Confirm.SendTimeoutSeconds == 0 {
		c.Confirm.SendTimeoutSeconds = 10
	}

	n := &c.Notify
	setDefault(&n.FlashIntervalMS, 100)
	setDefault(&n.InitializeFlashes, 3)
	setDefault(&n.WordFlashes, 1)
	setDefault(&n.MessageFlashes, 2)
	setDefault(&n.TransmittedFlashes, 5)
	setDefault(&n.ConfirmFlashes, 3)

	g := &c.GPIO
	if g.KeyPin == "" {
		g.KeyPin = "GPIO17"
	}
	if g.LEDPin == "" {
		g.LEDPin = "GPIO27"
	}
	setDefault(&g.BuzzerFreqHz, 700)
	g.Pull = strings.ToLower(strings.TrimSpace(g.Pull))
	if g.Pull == "" {
		g.Pull = "down"
	}

	s := &c.Sidetone
	if s.FrequencyHz == 0 {
		s.FrequencyHz = 700
	}
	if s.Volume == 0 {
		s.Volume = 0.5
	}
	setDefault(&s.SampleRate, 44100)

	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	if c.UI.Mode == "" {
		c.UI.Mode = UIModeConsole
	}

	c.Sender.Kind = strings.ToLower(strings.TrimSpace(c.Sender.Kind))
	if c.Sender.Kind == "" {
		c.Sender.Kind = SenderNone
	}
	m := &c.Sender.MQTT
	setDefault(&m.Port, 1883)
	if m.Topic == "" {
		m.Topic = "morsekey/messages"
	}
	if m.ClientID == "" {
		m.ClientID = "morsekey"
	}
	cl := &c.Sender.Cluster
	setDefault(&cl.Port, 7300)
	if cl.LoginPrompt == "" {
		cl.LoginPrompt = "login:"
	}
	if cl.Command == "" {
		cl.Command = "announce"
	}

	if c.Status.Listen == "" {
		c.Status.Listen = "127.0.0.1:8077"
	}
	setDefault(&c.Status.HistorySize, 50)

	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
	setDefault(&c.Logging.RetentionDays, 7)
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Purpose: Check every cross-field constraint the runtime depends on.
// Key aspects: All violations are reported together via errors.Join; each
// wraps a sentinel so callers can test with errors.Is.
// Upstream: Load.
// Downstream: none.
func (c *Config) Validate() error {
	var errs []error
	t := c.Timing
	for name, v := range map[string]int{
		"timing.keypress_threshold_ms": t.KeypressMS,
		"timing.ditdah_threshold_ms":   t.DitDahMS,
		"timing.char_threshold_ms":     t.CharMS,
		"timing.word_threshold_ms":     t.WordMS,
		"timing.message_threshold_ms":  t.MessageMS,
		"timing.poll_interval_ms":      t.PollIntervalMS,
		"notify.flash_interval_ms":     c.Notify.FlashIntervalMS,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s=%d: %w", name, v, ErrNonPositive))
		}
	}
	if t.KeypressMS >= t.DitDahMS {
		errs = append(errs, fmt.Errorf("keypress=%dms ditdah=%dms: %w", t.KeypressMS, t.DitDahMS, ErrThresholdOrder))
	}
	if !(t.CharMS < t.WordMS && t.WordMS < t.MessageMS) {
		errs = append(errs, fmt.Errorf("char=%dms word=%dms message=%dms: %w", t.CharMS, t.WordMS, t.MessageMS, ErrThresholdOrder))
	}
	if c.Confirm.ThresholdSeconds < 0 || c.Confirm.DurationSeconds < 0 || c.Confirm.SendTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("confirm: %w", ErrNonPositive))
	}
	if c.Sidetone.Volume < 0 || c.Sidetone.Volume > 1 {
		errs = append(errs, fmt.Errorf("sidetone.volume=%.2f: %w", c.Sidetone.Volume, ErrOutOfRange))
	}
	switch c.GPIO.Pull {
	case "down", "up", "none":
	default:
		errs = append(errs, fmt.Errorf("%q: %w", c.GPIO.Pull, ErrUnknownPullMode))
	}
	switch c.UI.Mode {
	case UIModeHeadless, UIModeConsole, UIModeLCD:
	default:
		errs = append(errs, fmt.Errorf("%q: %w", c.UI.Mode, ErrUnknownUIMode))
	}
	switch c.Sender.Kind {
	case SenderNone, SenderLog:
	case SenderMQTT:
		if strings.TrimSpace(c.Sender.MQTT.Broker) == "" {
			errs = append(errs, fmt.Errorf("sender.mqtt.broker: %w", ErrMissingSetting))
		}
		if c.Sender.MQTT.QoS < 0 || c.Sender.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("sender.mqtt.qos=%d: %w", c.Sender.MQTT.QoS, ErrOutOfRange))
		}
	case SenderCluster:
		if strings.TrimSpace(c.Sender.Cluster.Host) == "" {
			errs = append(errs, fmt.Errorf("sender.cluster.host: %w", ErrMissingSetting))
		}
		if strings.TrimSpace(c.Sender.Cluster.Callsign) == "" {
			errs = append(errs, fmt.Errorf("sender.cluster.callsign: %w", ErrMissingSetting))
		}
	default:
		errs = append(errs, fmt.Errorf("%q: %w", c.Sender.Kind, ErrUnknownSender))
	}
	if c.Status.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("status.history_size=%d: %w", c.Status.HistorySize, ErrNonPositive))
	}
	return errors.Join(errs...)
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a fractional seconds setting to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Config: %s\n", c.LoadedFrom)
	t := c.Timing
	fmt.Printf("Timing: keypress=%dms ditdah=%dms char=%dms word=%dms message=%dms (poll %dms)\n",
		t.KeypressMS, t.DitDahMS, t.CharMS, t.WordMS, t.MessageMS, t.PollIntervalMS)
	fmt.Printf("Confirm: quiet=%.1fs window=%.1fs timeout=%.1fs\n",
		c.Confirm.ThresholdSeconds, c.Confirm.DurationSeconds, c.Confirm.SendTimeoutSeconds)
	if c.GPIO.Enabled {
		fmt.Printf("GPIO: key=%s (pull %s) led=%s buzzer=%s@%dHz\n",
			c.GPIO.KeyPin, c.GPIO.Pull, c.GPIO.LEDPin, c.GPIO.BuzzerPin, c.GPIO.BuzzerFreqHz)
	}
	if c.Sidetone.Enabled {
		fmt.Printf("Sidetone: %.0fHz volume %.2f\n", c.Sidetone.FrequencyHz, c.Sidetone.Volume)
	}
	fmt.Printf("UI: %s\n", c.UI.Mode)
	switch c.Sender.Kind {
	case SenderMQTT:
		fmt.Printf("Sender: mqtt %s:%d (topic: %s, qos %d)\n", c.Sender.MQTT.Broker, c.Sender.MQTT.Port, c.Sender.MQTT.Topic, c.Sender.MQTT.QoS)
	case SenderCluster:
		fmt.Printf("Sender: cluster %s:%d (as %s)\n", c.Sender.Cluster.Host, c.Sender.Cluster.Port, c.Sender.Cluster.Callsign)
	default:
		fmt.Printf("Sender: %s\n", c.Sender.Kind)
	}
	if c.Status.Enabled {
		fmt.Printf("Status: http://%s (history %d)\n", c.Status.Listen, c.Status.HistorySize)
	}
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retention %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
