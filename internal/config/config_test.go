package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PORT", "")
	t.Setenv("SERIAL_PORT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected addrs: %q %q", cfg.Server.Addr, cfg.Redis.Addr)
	}
	if !cfg.SerialEnabled() || cfg.Serial.Baud != 115200 || cfg.Serial.Retry != 5*time.Second {
		t.Fatalf("unexpected serial defaults: %+v", cfg.Serial)
	}
	if cfg.Dashboard.HeapCapacity != 40000 || cfg.Dashboard.UptimeCapacity != 86400 {
		t.Fatalf("unexpected gauge capacities: %+v", cfg.Dashboard)
	}
	if cfg.Alerts.Cooldown != 5*time.Minute || cfg.Cleanup.BanMaxAge != 168*time.Hour {
		t.Fatalf("unexpected durations: %+v %+v", cfg.Alerts, cfg.Cleanup)
	}
	if len(cfg.Palette.Colors) != 16 || cfg.Palette.Reserved["anomaly_high"] != "#ef4444" {
		t.Fatalf("unexpected palette: %+v", cfg.Palette)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
serial:
  enabled: false
  retry: 2s
dashboard:
  heap_capacity: 65536
  anomaly_threshold: 0.5
  theme: light
palette:
  colors: ["#000000", "#ffffff"]
tracker:
  max_points: 10
alerts:
  cooldown: 30s
`)
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("PORT", "7000")
	t.Setenv("SERIAL_PORT", "/dev/ttyACM0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Fatalf("PORT override not applied: %q", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Serial.Port != "/dev/ttyACM0" {
		t.Fatalf("env overrides not applied: %q %q", cfg.Redis.Addr, cfg.Serial.Port)
	}
	if cfg.SerialEnabled() {
		t.Fatalf("serial should be disabled")
	}
	if cfg.Serial.Retry != 2*time.Second || cfg.Alerts.Cooldown != 30*time.Second {
		t.Fatalf("durations not parsed: %v %v", cfg.Serial.Retry, cfg.Alerts.Cooldown)
	}

	rc := cfg.ReducerConfig()
	if rc.HeapCapacity != 65536 || rc.UptimeCapacity != 86400 || rc.AnomalyThreshold != 0.5 {
		t.Fatalf("unexpected reducer config: %+v", rc)
	}
	tc := cfg.TrackerConfig()
	if tc.MaxPoints != 10 || tc.MaxSSIDHistory != 20 || tc.AnomalyThreshold != 0.5 {
		t.Fatalf("unexpected tracker config: %+v", tc)
	}

	p, err := cfg.PaletteColors()
	if err != nil {
		t.Fatalf("PaletteColors: %v", err)
	}
	// "a" hashes to 97, index 1 of a two-color palette.
	if got := p.ColorFor("a", 1); got != "#ffffff" {
		t.Fatalf("expected configured palette, got %s", got)
	}
	if got := p.ColorFor("normal", 0.7); got != "rgba(34, 197, 94, 0.7)" {
		t.Fatalf("expected default reserved color, got %s", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"threshold": "dashboard:\n  anomaly_threshold: 1.5\n",
		"theme":     "dashboard:\n  theme: neon\n",
		"color":     "palette:\n  colors: [\"green\"]\n",
		"capacity":  "dashboard:\n  heap_capacity: -1\n",
		"yaml":      "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadKeepsExplicitZeroThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, "dashboard:\n  anomaly_threshold: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.ReducerConfig().AnomalyThreshold; got != 0 {
		t.Fatalf("expected explicit 0 threshold to survive defaults, got %v", got)
	}
	if got := cfg.TrackerConfig().AnomalyThreshold; got != 0 {
		t.Fatalf("expected tracker threshold 0, got %v", got)
	}

	cfg, err = Load(writeConfig(t, "server:\n  addr: \":9000\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.ReducerConfig().AnomalyThreshold; got != 0.8 {
		t.Fatalf("expected default threshold 0.8, got %v", got)
	}
}

func TestLoadReservedLabels(t *testing.T) {
	path := writeConfig(t, `
dashboard:
  labels:
    anomaly: hot
    channel: probes
palette:
  reserved:
    probes: "#0000ff"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rc := cfg.ReducerConfig()
	if rc.AnomalyLabel != "hot" || rc.NormalLabel != "normal" || rc.ChannelLabel != "probes" {
		t.Fatalf("unexpected labels: %+v", rc)
	}

	p, err := cfg.PaletteColors()
	if err != nil {
		t.Fatalf("PaletteColors: %v", err)
	}
	if got := p.ColorFor("hot", 1); got != "rgba(239, 68, 68, 1)" {
		t.Fatalf("renamed anomaly label should keep the anomaly color, got %s", got)
	}
	if got := p.ColorFor("probes", 0.5); got != "rgba(0, 0, 255, 0.5)" {
		t.Fatalf("expected configured channel color, got %s", got)
	}

	if _, err := Load(writeConfig(t, "dashboard:\n  labels:\n    anomaly: normal\n")); err == nil {
		t.Fatalf("expected duplicate labels to be rejected")
	}
}
