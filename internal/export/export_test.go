package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

var now = time.UnixMilli(10 * 3600 * 1000)

func fixture() map[string]models.DeviceRecord {
	return map[string]models.DeviceRecord{
		"aa:aa:aa:00:00:01": {
			Vendor:        "Apple",
			Timestamps:    []int64{now.Add(-2 * time.Hour).UnixMilli()},
			SSIDList:      []string{"HomeNet"},
			AnomalyScore:  0.9,
			ChannelCounts: models.ChannelCounts{"11": 1, "1": 2},
		},
		"bb:bb:bb:00:00:02": {
			Vendor:       "Intel",
			Timestamps:   []int64{now.Add(-10 * time.Minute).UnixMilli()},
			SSIDList:     []string{"cafe"},
			AnomalyScore: 0.2,
			DeauthCount:  7,
		},
		"cc:cc:cc:00:00:03": {
			Vendor:       "Unknown",
			Timestamps:   []int64{now.Add(-5 * time.Minute).UnixMilli()},
			SSIDList:     []string{"guest"},
			AnomalyScore: 0.1,
		},
	}
}

func macs(devices []Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.MAC
	}
	return out
}

func TestSelect(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Filter)
		want   string
	}{
		{"all", func(f *Filter) {}, "aa:aa:aa:00:00:01,bb:bb:bb:00:00:02,cc:cc:cc:00:00:03"},
		{"min score", func(f *Filter) { f.MinScore = 0.15 }, "aa:aa:aa:00:00:01,bb:bb:bb:00:00:02"},
		{"mac regex is case insensitive", func(f *Filter) { f.MACPattern = "^BB" }, "bb:bb:bb:00:00:02"},
		{"ssid regex", func(f *Filter) { f.SSIDPattern = "home" }, "aa:aa:aa:00:00:01"},
		{"recent", func(f *Filter) { f.Preset = PresetRecent }, "bb:bb:bb:00:00:02,cc:cc:cc:00:00:03"},
		{"high risk", func(f *Filter) { f.Preset = PresetHighRisk }, "aa:aa:aa:00:00:01,bb:bb:bb:00:00:02"},
	}
	for _, tc := range cases {
		f := DefaultFilter()
		tc.mutate(&f)
		got, err := Select(fixture(), f, now)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if joined := strings.Join(macs(got), ","); joined != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, joined)
		}
	}
}

func TestSelectRejectsBadInput(t *testing.T) {
	f := DefaultFilter()
	f.Preset = "everything"
	if _, err := Select(fixture(), f, now); !errors.Is(err, ErrInvalidPreset) {
		t.Fatalf("expected ErrInvalidPreset, got %v", err)
	}

	f = DefaultFilter()
	f.MACPattern = "(["
	if _, err := Select(fixture(), f, now); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	devices, err := Select(fixture(), DefaultFilter(), now)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, devices[:1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if lines[0] != "MAC,Vendor,SSIDs,Anomaly Score,Persistence Score,Pattern Score,Deauth Count,Channels" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != `aa:aa:aa:00:00:01,Apple,HomeNet,0.90,0.00,0.00,0,"1, 11"` {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()

	path, n, err := Write(dir, FormatJSON, fixture(), DefaultFilter(), now)
	if err != nil {
		t.Fatalf("write json: %v", err)
	}
	if n != 3 || path != filepath.Join(dir, "export.json") {
		t.Fatalf("unexpected result %s %d", path, n)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[0]["mac"] != "aa:aa:aa:00:00:01" || decoded[0]["vendor"] != "Apple" {
		t.Fatalf("unexpected json entry %v", decoded[0])
	}

	if _, _, err := Write(dir, FormatCSV, fixture(), DefaultFilter(), now); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "export.csv")); err != nil {
		t.Fatalf("expected csv file: %v", err)
	}

	if _, _, err := Write(dir, "xml", fixture(), DefaultFilter(), now); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
