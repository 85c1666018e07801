package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrInvalidChannel = errors.New("channel key is not an integer")
	ErrInvalidEvent   = errors.New("invalid event")
)

// Snapshot is one telemetry update covering every tracked device plus the
// sensor diagnostics. It is never mutated after it has been built.
type Snapshot struct {
	Devices     map[string]DeviceRecord `json:"devices"`
	Diagnostics Diagnostics             `json:"diagnostics"`
}

// DeviceIDs returns the device identifiers in ascending order. Every
// consumer that needs index alignment across views iterates in this order.
func (s Snapshot) DeviceIDs() []string {
	ids := make([]string, 0, len(s.Devices))
	for id := range s.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate rejects snapshots that cannot be reduced meaningfully.
func (s Snapshot) Validate() error {
	for _, id := range s.DeviceIDs() {
		for key := range s.Devices[id].ChannelCounts {
			if _, err := strconv.Atoi(key); err != nil {
				return fmt.Errorf("device %s: %q: %w", id, key, ErrInvalidChannel)
			}
		}
	}
	return nil
}

type DeviceRecord struct {
	Vendor           string        `json:"vendor"`
	Timestamps       []int64       `json:"timestamps"`
	RSSIList         []int         `json:"rssi_list"`
	SSIDList         []string      `json:"ssid_list"`
	PersistenceScore float64       `json:"persistence_score"`
	AnomalyScore     float64       `json:"anomaly_score"`
	PatternScore     float64       `json:"pattern_score"`
	DeauthCount      int           `json:"deauth_count"`
	ChannelCounts    ChannelCounts `json:"channel_counts"`
}

// LastSeen returns the newest timestamp, or 0 for a device without samples.
func (d DeviceRecord) LastSeen() int64 {
	if len(d.Timestamps) == 0 {
		return 0
	}
	return d.Timestamps[len(d.Timestamps)-1]
}

func (d DeviceRecord) Clone() DeviceRecord {
	out := d
	out.Timestamps = make([]int64, len(d.Timestamps))
	copy(out.Timestamps, d.Timestamps)
	out.RSSIList = make([]int, len(d.RSSIList))
	copy(out.RSSIList, d.RSSIList)
	out.SSIDList = make([]string, len(d.SSIDList))
	copy(out.SSIDList, d.SSIDList)
	out.ChannelCounts = make(ChannelCounts, len(d.ChannelCounts))
	for k, v := range d.ChannelCounts {
		out.ChannelCounts[k] = v
	}
	return out
}

// ChannelCounts maps a channel number, encoded as a JSON object key, to the
// number of probes seen on it.
type ChannelCounts map[string]int

func (c ChannelCounts) Add(channel, n int) {
	c[strconv.Itoa(channel)] += n
}

// Diagnostics fields are optional on the wire; absent or negative values
// read as zero.
type Diagnostics struct {
	FreeHeap *int64 `json:"free_heap,omitempty"`
	Uptime   *int64 `json:"uptime,omitempty"`
}

func (d Diagnostics) HeapOrZero() int64   { return orZero(d.FreeHeap) }
func (d Diagnostics) UptimeOrZero() int64 { return orZero(d.Uptime) }

func orZero(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func Int64(v int64) *int64 { return &v }

type EventType string

const (
	EventProbe       EventType = "probe"
	EventDeauth      EventType = "deauth"
	EventDiagnostics EventType = "diagnostics"
)

// Event is one line reported by the sensor.
type Event struct {
	Type      EventType `json:"type"`
	MAC       string    `json:"mac,omitempty"`
	SSID      string    `json:"ssid,omitempty"`
	BSSID     string    `json:"bssid,omitempty"`
	RSSI      int       `json:"rssi,omitempty"`
	Channel   int       `json:"channel,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	FreeHeap  *int64    `json:"free_heap,omitempty"`
	Uptime    *int64    `json:"uptime,omitempty"`
}

func (e Event) Validate() error {
	switch e.Type {
	case EventProbe, EventDeauth:
		if e.MAC == "" {
			return fmt.Errorf("%w: %s event without mac", ErrInvalidEvent, e.Type)
		}
	case EventDiagnostics:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}
