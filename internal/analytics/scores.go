package analytics

import (
	"math"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

// AnomalyScore weighs SSID diversity, probe frequency, deauth count, RSSI
// variance and channel spread. Weights grow with device density up to ten
// tracked devices. The result is capped at 1.
func AnomalyScore(d models.DeviceRecord, totalDevices int) float64 {
	density := math.Min(float64(totalDevices)/10, 1)
	score := 0.0

	ssidWeight := 0.3 + 0.1*density
	score += ssidWeight * math.Min(1, float64(len(d.SSIDList))/5)

	freqWeight := 0.2 + 0.1*density
	if n := len(d.Timestamps); n > 1 {
		spanMs := d.Timestamps[n-1] - d.Timestamps[0]
		if spanMs > 0 {
			perSec := float64(n) / (float64(spanMs) / 1000)
			score += freqWeight * math.Min(1, perSec/2)
		}
	}

	score += 0.2 * math.Min(1, float64(d.DeauthCount)/5)

	rssiWeight := 0.1 + 0.05*density
	if len(d.RSSIList) > 2 {
		score += rssiWeight * math.Min(1, sampleVariance(d.RSSIList)/100)
	}

	score += 0.1 * math.Min(1, float64(len(d.ChannelCounts))/3)

	return math.Min(1, score)
}

// PersistenceScore is probes per hour of presence, capped at 1.
func PersistenceScore(timestamps []int64) float64 {
	n := len(timestamps)
	if n < 2 {
		return 0
	}
	spanSec := float64(timestamps[n-1]-timestamps[0]) / 1000
	return math.Min(1, float64(n)/(spanSec/3600+0.1))
}

// PatternScore is the share of distinct SSID transitions in the history.
func PatternScore(history []string) float64 {
	if len(history) < 2 {
		return 0
	}
	type pair struct{ from, to string }
	seen := make(map[pair]struct{})
	for i := 0; i+1 < len(history); i++ {
		seen[pair{history[i], history[i+1]}] = struct{}{}
	}
	return math.Min(1, float64(len(seen))/float64(len(history)-1))
}

func sampleVariance(values []int) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		diff := float64(v) - mean
		sq += diff * diff
	}
	return sq / float64(len(values)-1)
}
