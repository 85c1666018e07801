package analytics

import (
	"math"
	"sync"
	"time"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

type TrackerConfig struct {
	MaxPoints        int
	MaxSSIDHistory   int
	AnomalyThreshold float64
	DeauthAlertCount int
	TwinWindow       time.Duration
	TwinPenalty      float64
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxPoints:        100,
		MaxSSIDHistory:   20,
		AnomalyThreshold: 0.8,
		DeauthAlertCount: 5,
		TwinWindow:       5 * time.Minute,
		TwinPenalty:      0.3,
	}
}

// VendorLookup resolves a hardware address to a manufacturer name.
type VendorLookup interface {
	Vendor(mac string) string
}

type unknownVendor struct{}

func (unknownVendor) Vendor(string) string { return "Unknown" }

// Result describes the device state after one event.
type Result struct {
	MAC        string
	Device     models.DeviceRecord
	Suspicious bool
	Ignored    bool
}

type deviceState struct {
	record   models.DeviceRecord
	ssidSeen map[string]struct{}
	history  []string
}

// Tracker accumulates sensor events into per-device state and hands out
// immutable snapshots of it.
type Tracker struct {
	cfg         TrackerConfig
	vendors     VendorLookup
	now         func() time.Time
	devices     map[string]*deviceState
	banned      map[string]struct{}
	diagnostics models.Diagnostics
	mu          sync.RWMutex
}

func NewTracker(cfg TrackerConfig, vendors VendorLookup) *Tracker {
	if vendors == nil {
		vendors = unknownVendor{}
	}
	return &Tracker{
		cfg:     cfg,
		vendors: vendors,
		now:     time.Now,
		devices: make(map[string]*deviceState),
		banned:  make(map[string]struct{}),
	}
}

func (t *Tracker) Apply(ev models.Event) Result {
	if ev.Type == models.EventDiagnostics {
		t.mu.Lock()
		if ev.FreeHeap != nil {
			t.diagnostics.FreeHeap = models.Int64(*ev.FreeHeap)
		}
		if ev.Uptime != nil {
			t.diagnostics.Uptime = models.Int64(*ev.Uptime)
		}
		t.mu.Unlock()
		return Result{Ignored: true}
	}

	// Vendor lookups may hit the network, so resolve before taking the lock.
	t.mu.RLock()
	_, known := t.devices[ev.MAC]
	_, banned := t.banned[ev.MAC]
	t.mu.RUnlock()
	if banned {
		return Result{MAC: ev.MAC, Ignored: true}
	}
	vendor := ""
	if !known {
		vendor = t.vendors.Vendor(ev.MAC)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, banned := t.banned[ev.MAC]; banned {
		return Result{MAC: ev.MAC, Ignored: true}
	}
	dev, ok := t.devices[ev.MAC]
	if !ok {
		dev = &deviceState{
			record: models.DeviceRecord{
				Vendor:        vendor,
				Timestamps:    []int64{},
				RSSIList:      []int{},
				SSIDList:      []string{},
				ChannelCounts: models.ChannelCounts{},
			},
			ssidSeen: make(map[string]struct{}),
		}
		t.devices[ev.MAC] = dev
	}

	switch ev.Type {
	case models.EventProbe:
		t.applyProbe(ev, dev)
	case models.EventDeauth:
		dev.record.DeauthCount++
		dev.record.AnomalyScore = AnomalyScore(dev.record, len(t.devices))
	}

	rec := dev.record
	return Result{
		MAC:        ev.MAC,
		Device:     rec.Clone(),
		Suspicious: rec.AnomalyScore > t.cfg.AnomalyThreshold || rec.DeauthCount > t.cfg.DeauthAlertCount,
	}
}

func (t *Tracker) applyProbe(ev models.Event, dev *deviceState) {
	ts := ev.Timestamp
	if ts == 0 {
		ts = t.now().UnixMilli()
	}
	rec := &dev.record
	rec.Timestamps = appendBounded(rec.Timestamps, ts, t.cfg.MaxPoints)
	rec.RSSIList = appendBounded(rec.RSSIList, ev.RSSI, t.cfg.MaxPoints)
	rec.ChannelCounts.Add(ev.Channel, 1)

	if ev.SSID != "" {
		if _, ok := dev.ssidSeen[ev.SSID]; !ok {
			dev.ssidSeen[ev.SSID] = struct{}{}
			rec.SSIDList = append(rec.SSIDList, ev.SSID)
		}
		dev.history = appendBounded(dev.history, ev.SSID, t.cfg.MaxSSIDHistory)
	}

	rec.AnomalyScore = AnomalyScore(*rec, len(t.devices))
	rec.PersistenceScore = PersistenceScore(rec.Timestamps)
	rec.PatternScore = PatternScore(dev.history)

	if t.twinSuspect(ev) {
		rec.AnomalyScore = math.Min(1, rec.AnomalyScore+t.cfg.TwinPenalty)
	}
}

// twinSuspect reports whether another recently active device also lists the
// probed SSID. Caller holds the write lock.
func (t *Tracker) twinSuspect(ev models.Event) bool {
	if ev.SSID == "" || ev.BSSID == "" {
		return false
	}
	cutoff := t.now().Add(-t.cfg.TwinWindow).UnixMilli()
	for mac, other := range t.devices {
		if mac == ev.MAC {
			continue
		}
		if _, ok := other.ssidSeen[ev.SSID]; ok && other.record.LastSeen() >= cutoff {
			return true
		}
	}
	return false
}

func (t *Tracker) Snapshot() models.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := models.Snapshot{Devices: make(map[string]models.DeviceRecord, len(t.devices))}
	for mac, dev := range t.devices {
		out.Devices[mac] = dev.record.Clone()
	}
	out.Diagnostics = t.diagnosticsLocked()
	return out
}

func (t *Tracker) Diagnostics() models.Diagnostics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.diagnosticsLocked()
}

func (t *Tracker) diagnosticsLocked() models.Diagnostics {
	var d models.Diagnostics
	if t.diagnostics.FreeHeap != nil {
		d.FreeHeap = models.Int64(*t.diagnostics.FreeHeap)
	}
	if t.diagnostics.Uptime != nil {
		d.Uptime = models.Int64(*t.diagnostics.Uptime)
	}
	return d
}

// Prune drops devices whose newest sample is older than cutoff. Devices that
// never reported a sample are kept.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := cutoff.UnixMilli()
	removed := 0
	for mac, dev := range t.devices {
		if len(dev.record.Timestamps) > 0 && dev.record.LastSeen() < limit {
			delete(t.devices, mac)
			removed++
		}
	}
	return removed
}

// Ban forgets the device and ignores its future events.
func (t *Tracker) Ban(macs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, mac := range macs {
		t.banned[mac] = struct{}{}
		delete(t.devices, mac)
	}
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

func appendBounded[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if max > 0 && len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

