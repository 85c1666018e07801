package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AsHfIEXE/SigVoid/internal/analytics"
	"github.com/AsHfIEXE/SigVoid/internal/cache"
	"github.com/AsHfIEXE/SigVoid/internal/palette"
	"github.com/AsHfIEXE/SigVoid/internal/serial"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Serial    SerialConfig    `yaml:"serial"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Palette   PaletteConfig   `yaml:"palette"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Export    ExportConfig    `yaml:"export"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	PoolSize      int    `yaml:"pool_size"`
	PacketLogSize int64  `yaml:"packet_log_size"`
}

type SerialConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	Retry       time.Duration `yaml:"retry"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	MaxLine     int           `yaml:"max_line"`
}

type DashboardConfig struct {
	HeapCapacity   int64 `yaml:"heap_capacity"`
	UptimeCapacity int64 `yaml:"uptime_capacity"`
	// AnomalyThreshold is a pointer so an explicit 0 survives defaulting.
	AnomalyThreshold *float64    `yaml:"anomaly_threshold"`
	Theme            string      `yaml:"theme"`
	Labels           LabelConfig `yaml:"labels"`
}

// LabelConfig names the reserved chart labels. Each one is drawn in its
// palette.reserved color.
type LabelConfig struct {
	Anomaly string `yaml:"anomaly"`
	Normal  string `yaml:"normal"`
	Channel string `yaml:"channel"`
}

// PaletteConfig holds colors as "#rrggbb" strings.
type PaletteConfig struct {
	Reserved map[string]string `yaml:"reserved"`
	Colors   []string          `yaml:"colors"`
}

type TrackerConfig struct {
	MaxPoints      int `yaml:"max_points"`
	MaxSSIDHistory int `yaml:"max_ssid_history"`
	EventBuffer    int `yaml:"event_buffer"`
}

type AlertsConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	File     string        `yaml:"file"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type CleanupConfig struct {
	MaxAge    time.Duration `yaml:"max_age"`
	BanMaxAge time.Duration `yaml:"ban_max_age"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.PacketLogSize == 0 {
		c.Redis.PacketLogSize = 10000
	}
	if c.Serial.Enabled == nil {
		enabled := true
		c.Serial.Enabled = &enabled
	}
	if c.Serial.Port == "" {
		c.Serial.Port = "/dev/ttyUSB0"
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
	if c.Serial.Retry == 0 {
		c.Serial.Retry = 5 * time.Second
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = time.Second
	}
	if c.Serial.MaxLine == 0 {
		c.Serial.MaxLine = serial.DefaultMaxLine
	}
	if c.Dashboard.HeapCapacity == 0 {
		c.Dashboard.HeapCapacity = 40000
	}
	if c.Dashboard.UptimeCapacity == 0 {
		c.Dashboard.UptimeCapacity = 86400
	}
	if c.Dashboard.AnomalyThreshold == nil {
		threshold := 0.8
		c.Dashboard.AnomalyThreshold = &threshold
	}
	if c.Dashboard.Theme == "" {
		c.Dashboard.Theme = "dark"
	}
	if c.Dashboard.Labels.Anomaly == "" {
		c.Dashboard.Labels.Anomaly = palette.LabelAnomalyHigh
	}
	if c.Dashboard.Labels.Normal == "" {
		c.Dashboard.Labels.Normal = palette.LabelNormal
	}
	if c.Dashboard.Labels.Channel == "" {
		c.Dashboard.Labels.Channel = palette.LabelChannelProbes
	}
	if c.Palette.Reserved == nil {
		c.Palette.Reserved = make(map[string]string)
	}
	// A renamed label keeps its role's color unless one is configured.
	defaults := palette.DefaultReserved()
	roles := map[string]string{
		c.Dashboard.Labels.Anomaly: palette.LabelAnomalyHigh,
		c.Dashboard.Labels.Normal:  palette.LabelNormal,
		c.Dashboard.Labels.Channel: palette.LabelChannelProbes,
	}
	for label, role := range roles {
		if _, ok := c.Palette.Reserved[label]; !ok {
			c.Palette.Reserved[label] = defaults[role].Hex()
		}
	}
	if len(c.Palette.Colors) == 0 {
		for _, rgb := range palette.DefaultColors {
			c.Palette.Colors = append(c.Palette.Colors, rgb.Hex())
		}
	}
	if c.Tracker.MaxPoints == 0 {
		c.Tracker.MaxPoints = 100
	}
	if c.Tracker.MaxSSIDHistory == 0 {
		c.Tracker.MaxSSIDHistory = 20
	}
	if c.Tracker.EventBuffer == 0 {
		c.Tracker.EventBuffer = 10000
	}
	if c.Alerts.Cooldown == 0 {
		c.Alerts.Cooldown = 5 * time.Minute
	}
	if c.Alerts.File == "" {
		c.Alerts.File = "alerts.log"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "."
	}
	if c.Cleanup.MaxAge == 0 {
		c.Cleanup.MaxAge = 24 * time.Hour
	}
	if c.Cleanup.BanMaxAge == 0 {
		c.Cleanup.BanMaxAge = 7 * 24 * time.Hour
	}
}

func (c *Config) validate() error {
	if c.Dashboard.HeapCapacity < 0 {
		return fmt.Errorf("dashboard.heap_capacity must not be negative")
	}
	if c.Dashboard.UptimeCapacity < 0 {
		return fmt.Errorf("dashboard.uptime_capacity must not be negative")
	}
	if t := *c.Dashboard.AnomalyThreshold; t < 0 || t > 1 {
		return fmt.Errorf("dashboard.anomaly_threshold must be within [0, 1]")
	}
	labels := c.Dashboard.Labels
	if labels.Anomaly == labels.Normal || labels.Anomaly == labels.Channel || labels.Normal == labels.Channel {
		return fmt.Errorf("dashboard.labels must be distinct")
	}
	if c.Serial.MaxLine < 0 || c.Redis.PacketLogSize < 0 {
		return fmt.Errorf("serial.max_line and redis.packet_log_size must not be negative")
	}
	if c.Dashboard.Theme != "dark" && c.Dashboard.Theme != "light" {
		return fmt.Errorf("dashboard.theme must be dark or light, got %q", c.Dashboard.Theme)
	}
	if c.Tracker.MaxPoints < 1 || c.Tracker.MaxSSIDHistory < 1 || c.Tracker.EventBuffer < 1 {
		return fmt.Errorf("tracker limits must be positive")
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must not be negative")
	}
	if _, err := c.PaletteColors(); err != nil {
		return fmt.Errorf("palette: %w", err)
	}
	return nil
}

func (c *Config) SerialEnabled() bool {
	return c.Serial.Enabled != nil && *c.Serial.Enabled
}

// PaletteColors parses the configured palette.
func (c *Config) PaletteColors() (*palette.Palette, error) {
	colors := make([]palette.RGB, 0, len(c.Palette.Colors))
	for _, hex := range c.Palette.Colors {
		rgb, err := palette.ParseHex(hex)
		if err != nil {
			return nil, err
		}
		colors = append(colors, rgb)
	}
	reserved := make(map[string]palette.RGB, len(c.Palette.Reserved))
	for label, hex := range c.Palette.Reserved {
		rgb, err := palette.ParseHex(hex)
		if err != nil {
			return nil, fmt.Errorf("reserved %s: %w", label, err)
		}
		reserved[label] = rgb
	}
	return palette.New(colors, reserved), nil
}

func (c *Config) ReducerConfig() analytics.ReducerConfig {
	rc := analytics.DefaultReducerConfig()
	rc.HeapCapacity = c.Dashboard.HeapCapacity
	rc.UptimeCapacity = c.Dashboard.UptimeCapacity
	rc.AnomalyThreshold = *c.Dashboard.AnomalyThreshold
	rc.AnomalyLabel = c.Dashboard.Labels.Anomaly
	rc.NormalLabel = c.Dashboard.Labels.Normal
	rc.ChannelLabel = c.Dashboard.Labels.Channel
	return rc
}

func (c *Config) TrackerConfig() analytics.TrackerConfig {
	tc := analytics.DefaultTrackerConfig()
	tc.MaxPoints = c.Tracker.MaxPoints
	tc.MaxSSIDHistory = c.Tracker.MaxSSIDHistory
	tc.AnomalyThreshold = *c.Dashboard.AnomalyThreshold
	return tc
}

func (c *Config) RedisOptions() cache.Options {
	return cache.Options{
		Addr:          c.Redis.Addr,
		Password:      c.Redis.Password,
		DB:            c.Redis.DB,
		PoolSize:      c.Redis.PoolSize,
		PacketLogSize: c.Redis.PacketLogSize,
	}
}

func (c *Config) SerialConfig() serial.Config {
	return serial.Config{
		Port:        c.Serial.Port,
		Baud:        c.Serial.Baud,
		Retry:       c.Serial.Retry,
		ReadTimeout: c.Serial.ReadTimeout,
		MaxLine:     c.Serial.MaxLine,
	}
}
