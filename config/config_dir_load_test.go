package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()

	app := `timing:
  keypress_threshold_ms: 25
  ditdah_threshold_ms: 160
ui:
  mode: headless
`
	sender := `sender:
  kind: mqtt
  mqtt:
    broker: "broker.local"
    topic: "shack/key"
timing:
  ditdah_threshold_ms: 200
`
	if err := os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(app), 0o644); err != nil {
		t.Fatalf("write app.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sender.yaml"), []byte(sender), 0o644); err != nil {
		t.Fatalf("write sender.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not: [yaml"), 0o644); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := filepath.Clean(cfg.LoadedFrom); got != filepath.Clean(dir) {
		t.Fatalf("expected LoadedFrom=%s, got %s", dir, got)
	}
	if cfg.Timing.KeypressMS != 25 {
		t.Fatalf("expected keypress from app.yaml, got %d", cfg.Timing.KeypressMS)
	}
	if cfg.Timing.DitDahMS != 200 {
		t.Fatalf("expected sender.yaml to override ditdah, got %d", cfg.Timing.DitDahMS)
	}
	if cfg.UI.Mode != UIModeHeadless {
		t.Fatalf("expected ui.mode headless, got %q", cfg.UI.Mode)
	}
	if cfg.Sender.Kind != SenderMQTT || cfg.Sender.MQTT.Broker != "broker.local" || cfg.Sender.MQTT.Topic != "shack/key" {
		t.Fatalf("unexpected sender config %+v", cfg.Sender)
	}
	if cfg.Sender.MQTT.Port != 1883 {
		t.Fatalf("expected default mqtt port 1883, got %d", cfg.Sender.MQTT.Port)
	}
}

func TestLoadEmptyDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); !errors.Is(err, ErrNotConfigSource) {
		t.Fatalf("expected ErrNotConfigSource, got %v", err)
	}
}

func TestLoadRejectsNonYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.conf")
	if err := os.WriteFile(path, []byte("timing:\n  char_threshold_ms: 300\n"), 0o644); err != nil {
		t.Fatalf("write runtime.conf: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load() to reject a non-YAML config path")
	}
}
