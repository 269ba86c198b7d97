package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"morsekey/config"
	"morsekey/replay"
	"morsekey/sender"
)

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	body := "timing:\n  message_threshold_ms: 4000\nsender:\n  kind: log\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Timing.MessageMS != 4000 || cfg.Sender.Kind != config.SenderLog {
		t.Fatalf("unexpected config %+v", cfg.Timing)
	}
	if cfg.LoadedFrom != path {
		t.Fatalf("expected LoadedFrom %q, got %q", path, cfg.LoadedFrom)
	}
}

func TestLoadConfigExplicitMissingFails(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing -config path")
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LoadedFrom != "built-in defaults" || cfg.Timing.DitDahMS != 180 {
		t.Fatalf("expected built-in defaults, got %q ditdah=%d", cfg.LoadedFrom, cfg.Timing.DitDahMS)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("ui:\n  mode: headless\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(envConfigPath, path)
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.UI.Mode != config.UIModeHeadless {
		t.Fatalf("expected headless from env config, got %q", cfg.UI.Mode)
	}
}

func TestBuildSenderKinds(t *testing.T) {
	cfg := config.Default()
	snd, closeFn, err := buildSender(context.Background(), cfg)
	if err != nil || snd != nil {
		t.Fatalf("expected nil sender for kind none, got %v err=%v", snd, err)
	}
	closeFn()

	cfg.Sender.Kind = config.SenderLog
	cfg.Sender.Cluster.Callsign = "K1ABC"
	snd, _, err = buildSender(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildSender log: %v", err)
	}
	if _, ok := snd.(*sender.Log); !ok {
		t.Fatalf("expected *sender.Log, got %T", snd)
	}
	receipt, err := snd.Send(context.Background(), "CQ")
	if err != nil || receipt.ID == "" {
		t.Fatalf("expected a receipt from the log sender, got %+v err=%v", receipt, err)
	}

	cfg.Sender.Kind = "pigeon"
	if _, _, err := buildSender(context.Background(), cfg); !errors.Is(err, config.ErrUnknownSender) {
		t.Fatalf("expected ErrUnknownSender, got %v", err)
	}
}

func TestStationNamePrefersMQTTStation(t *testing.T) {
	cfg := config.Default()
	cfg.Sender.Cluster.Callsign = "K1ABC"
	if got := stationName(cfg); got != "K1ABC" {
		t.Fatalf("expected callsign fallback, got %q", got)
	}
	cfg.Sender.MQTT.Station = "shack-pi"
	if got := stationName(cfg); got != "shack-pi" {
		t.Fatalf("expected shack-pi, got %q", got)
	}
}

func TestOpenKeyInputReplayText(t *testing.T) {
	cfg := config.Default()
	key, err := openKeyInput(cfg, "", "SOS", 20)
	if err != nil {
		t.Fatalf("openKeyInput: %v", err)
	}
	if key.player == nil || key.input == nil || key.outputs != nil {
		t.Fatalf("expected a replay player without GPIO outputs, got %+v", key)
	}
	if key.timing == nil {
		t.Fatalf("expected synthesised text to carry its own thresholds")
	}
	if total := key.player.Timeline().Total(); total <= key.timing.Message {
		t.Fatalf("expected the timeline to outlast the message threshold, got %s", total)
	}
}

func TestOpenKeyInputReplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.txt")
	if err := os.WriteFile(path, []byte("+60 -5000\n"), 0o644); err != nil {
		t.Fatalf("write timeline: %v", err)
	}
	key, err := openKeyInput(config.Default(), path, "", 20)
	if err != nil {
		t.Fatalf("openKeyInput: %v", err)
	}
	if got := key.player.Timeline().String(); got != "+60 -5000" {
		t.Fatalf("unexpected timeline %q", got)
	}
	if _, err := openKeyInput(config.Default(), filepath.Join(t.TempDir(), "none.txt"), "", 20); err == nil {
		t.Fatalf("expected an error for a missing timeline file")
	}
}

func TestOpenKeyInputRequiresSource(t *testing.T) {
	cfg := config.Default()
	cfg.GPIO.Enabled = false
	if _, err := openKeyInput(cfg, "", "", 20); !errors.Is(err, errNoKeyInput) {
		t.Fatalf("expected errNoKeyInput, got %v", err)
	}
}

func TestPrefixed(t *testing.T) {
	got := prefixed("Stats: ", []string{"a", "b"})
	if len(got) != 2 || got[0] != "Stats: a" || got[1] != "Stats: b" {
		t.Fatalf("unexpected prefixed lines %q", got)
	}
}

func TestReplayTextDecodesWithDefaultConfig(t *testing.T) {
	cfg := config.Default()
	key, err := openKeyInput(cfg, "", "HELLO WORLD", 20)
	if err != nil {
		t.Fatalf("openKeyInput: %v", err)
	}
	sc := stationConfig(cfg, key)
	if sc.Decoder.Timing.Char != 120*time.Millisecond || sc.Gate.Keypress != sc.Decoder.Timing.Keypress {
		t.Fatalf("expected thresholds derived from a 60ms dit, got %+v", sc.Decoder.Timing)
	}
	res, err := replay.Decode(key.player.Timeline(), sc.Decoder, sc.PollInterval, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := res.Text(); got != "HELLO WORLD" {
		t.Fatalf("expected HELLO WORLD, got %q", got)
	}
}

func TestReplayFileKeepsConfiguredTiming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.txt")
	if err := os.WriteFile(path, []byte("+60 -5000\n"), 0o644); err != nil {
		t.Fatalf("write timeline: %v", err)
	}
	cfg := config.Default()
	key, err := openKeyInput(cfg, path, "", 20)
	if err != nil {
		t.Fatalf("openKeyInput: %v", err)
	}
	if got := stationConfig(cfg, key).Decoder.Timing; got != cfg.KeyerTiming() {
		t.Fatalf("expected configured timing for a recorded timeline, got %+v", got)
	}
}

func TestReplayTextRejectsNonPositiveWPM(t *testing.T) {
	if _, err := openKeyInput(config.Default(), "", "SOS", 0); err == nil {
		t.Fatalf("expected an error for -wpm 0")
	}
}
