package analytics

import (
	"math"
	"testing"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAnomalyScore(t *testing.T) {
	cases := []struct {
		name  string
		dev   models.DeviceRecord
		total int
		want  float64
	}{
		{"empty", models.DeviceRecord{}, 1, 0},
		{
			"ssids only",
			models.DeviceRecord{SSIDList: []string{"a", "b", "c", "d", "e"}},
			0,
			0.3,
		},
		{
			"ssids channels deauths",
			models.DeviceRecord{
				SSIDList:      []string{"a", "b", "c", "d", "e"},
				DeauthCount:   5,
				ChannelCounts: models.ChannelCounts{"1": 1, "6": 1, "11": 1},
			},
			0,
			0.6,
		},
		{
			"capped",
			models.DeviceRecord{
				SSIDList:    []string{"a", "b", "c", "d", "e"},
				Timestamps:  []int64{0, 500, 1000},
				RSSIList:    []int{-40, -60, -80},
				DeauthCount: 10,
			},
			10,
			1,
		},
	}
	for _, tc := range cases {
		if got := AnomalyScore(tc.dev, tc.total); !approx(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPersistenceScore(t *testing.T) {
	if got := PersistenceScore([]int64{5}); got != 0 {
		t.Fatalf("expected 0 for a single sample, got %v", got)
	}
	if got := PersistenceScore([]int64{0, 3_600_000}); got != 1 {
		t.Fatalf("expected cap at 1, got %v", got)
	}
	if got := PersistenceScore([]int64{0, 36_000_000}); !approx(got, 2/10.1) {
		t.Fatalf("expected %v, got %v", 2/10.1, got)
	}
}

func TestPatternScore(t *testing.T) {
	if got := PatternScore([]string{"a"}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := PatternScore([]string{"a", "b", "a", "b"}); !approx(got, 2.0/3.0) {
		t.Fatalf("expected 2/3, got %v", got)
	}
	if got := PatternScore([]string{"a", "a", "a"}); !approx(got, 0.5) {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestSampleVariance(t *testing.T) {
	if got := sampleVariance([]int{-40, -60, -80}); !approx(got, 400) {
		t.Fatalf("expected 400, got %v", got)
	}
	if got := sampleVariance([]int{-50, -50, -50}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
