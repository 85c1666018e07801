// Package export writes filtered device listings to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidPreset = errors.New("invalid preset")
	ErrInvalidFilter = errors.New("invalid filter")
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"

	PresetAll      = "all"
	PresetRecent   = "recent"
	PresetHighRisk = "high_risk"
)

type Filter struct {
	MinScore    float64
	MACPattern  string
	SSIDPattern string
	Preset      string

	// HighRiskScore and HighRiskDeauths define the high_risk preset.
	HighRiskScore   float64
	HighRiskDeauths int
	RecentWindow    time.Duration
}

func DefaultFilter() Filter {
	return Filter{
		Preset:          PresetAll,
		HighRiskScore:   0.8,
		HighRiskDeauths: 5,
		RecentWindow:    time.Hour,
	}
}

type Device struct {
	MAC string `json:"mac"`
	models.DeviceRecord
}

// Select applies f to devices and returns matches ordered by address.
func Select(devices map[string]models.DeviceRecord, f Filter, now time.Time) ([]Device, error) {
	preset := f.Preset
	if preset == "" {
		preset = PresetAll
	}
	if preset != PresetAll && preset != PresetRecent && preset != PresetHighRisk {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPreset, f.Preset)
	}
	macRe, err := compile(f.MACPattern)
	if err != nil {
		return nil, err
	}
	ssidRe, err := compile(f.SSIDPattern)
	if err != nil {
		return nil, err
	}

	recentCutoff := now.Add(-f.RecentWindow).UnixMilli()
	macs := make([]string, 0, len(devices))
	for mac := range devices {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	out := []Device{}
	for _, mac := range macs {
		d := devices[mac]
		if f.MinScore > 0 && d.AnomalyScore < f.MinScore {
			continue
		}
		if macRe != nil && !macRe.MatchString(mac) {
			continue
		}
		if ssidRe != nil && !anyMatch(ssidRe, d.SSIDList) {
			continue
		}
		switch preset {
		case PresetRecent:
			if !seenSince(d.Timestamps, recentCutoff) {
				continue
			}
		case PresetHighRisk:
			if !(d.AnomalyScore > f.HighRiskScore || d.DeauthCount > f.HighRiskDeauths) {
				continue
			}
		}
		out = append(out, Device{MAC: mac, DeviceRecord: d})
	}
	return out, nil
}

// Write selects devices and writes export.<format> into dir, returning the
// written path and the number of devices.
func Write(dir, format string, devices map[string]models.DeviceRecord, f Filter, now time.Time) (string, int, error) {
	if format != FormatCSV && format != FormatJSON {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	selected, err := Select(devices, f, now)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, "export."+format)
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	if format == FormatCSV {
		err = WriteCSV(file, selected)
	} else {
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		err = enc.Encode(selected)
	}
	if err != nil {
		return "", 0, fmt.Errorf("write %s: %w", path, err)
	}
	return path, len(selected), file.Close()
}

var csvHeader = []string{"MAC", "Vendor", "SSIDs", "Anomaly Score", "Persistence Score", "Pattern Score", "Deauth Count", "Channels"}

func WriteCSV(w io.Writer, devices []Device) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range devices {
		channels := make([]int, 0, len(d.ChannelCounts))
		for key := range d.ChannelCounts {
			if ch, err := strconv.Atoi(key); err == nil {
				channels = append(channels, ch)
			}
		}
		sort.Ints(channels)
		chText := make([]string, len(channels))
		for i, ch := range channels {
			chText[i] = strconv.Itoa(ch)
		}

		row := []string{
			d.MAC,
			d.Vendor,
			strings.Join(d.SSIDList, ", "),
			strconv.FormatFloat(d.AnomalyScore, 'f', 2, 64),
			strconv.FormatFloat(d.PersistenceScore, 'f', 2, 64),
			strconv.FormatFloat(d.PatternScore, 'f', 2, 64),
			strconv.Itoa(d.DeauthCount),
			strings.Join(chText, ", "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return re, nil
}

func anyMatch(re *regexp.Regexp, values []string) bool {
	for _, v := range values {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

func seenSince(timestamps []int64, cutoff int64) bool {
	for _, ts := range timestamps {
		if ts >= cutoff {
			return true
		}
	}
	return false
}
