package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Timing.KeypressMS != 20 || cfg.Timing.DitDahMS != 180 || cfg.Timing.MessageMS != 3000 {
		t.Fatalf("unexpected timing defaults %+v", cfg.Timing)
	}
	if cfg.Delimiters.Char != " " || cfg.Delimiters.Word != " / " {
		t.Fatalf("unexpected delimiter defaults %+v", cfg.Delimiters)
	}
	if cfg.UI.Mode != UIModeConsole || cfg.Sender.Kind != SenderNone {
		t.Fatalf("unexpected mode defaults ui=%q sender=%q", cfg.UI.Mode, cfg.Sender.Kind)
	}
	if cfg.Logging.RetentionDays != 7 || cfg.Logging.Dir == "" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
	if cfg.GPIO.Pull != "down" {
		t.Fatalf("expected pull-down default, got %q", cfg.GPIO.Pull)
	}
}

func TestLoadRejectsThresholdOrder(t *testing.T) {
	cases := map[string]string{
		"keypress above ditdah": "timing:\n  keypress_threshold_ms: 200\n  ditdah_threshold_ms: 150\n",
		"word below char":       "timing:\n  char_threshold_ms: 900\n  word_threshold_ms: 800\n",
		"message equals word":   "timing:\n  word_threshold_ms: 3000\n  message_threshold_ms: 3000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrThresholdOrder) {
				t.Fatalf("expected ErrThresholdOrder, got %v", err)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.UI.Mode = "hologram"
	cfg.Sender.Kind = SenderCluster
	cfg.Sidetone.Volume = 1.5
	err := cfg.Validate()
	for _, want := range []error{ErrUnknownUIMode, ErrMissingSetting, ErrOutOfRange} {
		if !errors.Is(err, want) {
			t.Fatalf("expected %v in %v", want, err)
		}
	}
}

func TestValidateSenderRequirements(t *testing.T) {
	cfg := Default()
	cfg.Sender.Kind = SenderMQTT
	if err := cfg.Validate(); !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("expected missing broker to fail, got %v", err)
	}
	cfg.Sender.MQTT.Broker = "localhost"
	cfg.Sender.MQTT.QoS = 3
	if err := cfg.Validate(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected qos 3 to fail, got %v", err)
	}
	cfg.Sender.MQTT.QoS = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid mqtt config, got %v", err)
	}
	cfg.Sender.Kind = "pigeon"
	if err := cfg.Validate(); !errors.Is(err, ErrUnknownSender) {
		t.Fatalf("expected ErrUnknownSender, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestDurationHelpers(t *testing.T) {
	if got := Millis(150); got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
	if got := Seconds(2.5); got != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s, got %s", got)
	}
}
