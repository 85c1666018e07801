package analytics

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/models"
	"github.com/AsHfIEXE/SigVoid/internal/palette"
)

// ReducerConfig carries every constant a reduction pass depends on.
type ReducerConfig struct {
	HeapCapacity     int64
	UptimeCapacity   int64
	AnomalyThreshold float64
	AnomalyLabel     string
	NormalLabel      string
	ChannelLabel     string
	FillAlpha        float64
}

func DefaultReducerConfig() ReducerConfig {
	return ReducerConfig{
		HeapCapacity:     40000,
		UptimeCapacity:   86400,
		AnomalyThreshold: 0.8,
		AnomalyLabel:     palette.LabelAnomalyHigh,
		NormalLabel:      palette.LabelNormal,
		ChannelLabel:     palette.LabelChannelProbes,
		FillAlpha:        0.7,
	}
}

type Colorer interface {
	ColorFor(label string, alpha float64) string
}

// Reducer derives the dashboard view-models from a snapshot. It holds no
// state between passes, so Reduce is a pure function of its input.
//
// Malformed numbers never fail a pass: absent diagnostics read as zero and
// gauge segments are clamped at zero. Each view is built under its own
// recover guard; a panicking step leaves its view empty and the rest of the
// pass completes.
type Reducer struct {
	cfg         ReducerConfig
	colors      Colorer
	logger      *zap.Logger
	onStepPanic func(step string)
}

func NewReducer(cfg ReducerConfig, colors Colorer, logger *zap.Logger) *Reducer {
	if colors == nil {
		colors = palette.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{cfg: cfg, colors: colors, logger: logger}
}

// OnStepPanic registers a hook called with the step name whenever a step is
// recovered.
func (r *Reducer) OnStepPanic(fn func(step string)) {
	r.onStepPanic = fn
}

func (r *Reducer) Reduce(s models.Snapshot) models.View {
	view := models.EmptyView()
	ids := s.DeviceIDs()

	r.guard("signal", func() { view.Signal = r.signalSeries(s, ids) })
	r.guard("categories", func() { view.Categories = r.categories(s, ids) })
	r.guard("persistence", func() { view.Persistence = r.persistenceBars(s, ids) })
	r.guard("channels", func() { view.Channels = r.channelHistogram(s, ids) })
	r.guard("gauges", func() { view.Heap, view.Uptime = r.gauges(s.Diagnostics) })

	return view
}

func (r *Reducer) guard(step string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reduction step recovered", zap.String("step", step), zap.Any("panic", rec))
			if r.onStepPanic != nil {
				r.onStepPanic(step)
			}
		}
	}()
	fn()
}

// signalSeries emits one series per device, empty ones included so the
// legend stays stable. Mismatched timestamp/rssi lengths are truncated to the
// shorter of the two.
func (r *Reducer) signalSeries(s models.Snapshot, ids []string) []models.SignalSeries {
	out := make([]models.SignalSeries, 0, len(ids))
	for _, id := range ids {
		d := s.Devices[id]
		n := len(d.Timestamps)
		if len(d.RSSIList) < n {
			n = len(d.RSSIList)
		}
		points := make([]models.Point, n)
		for i := 0; i < n; i++ {
			points[i] = models.Point{X: d.Timestamps[i], Y: d.RSSIList[i]}
		}
		out = append(out, models.SignalSeries{
			Label:  id + " (" + d.Vendor + ")",
			Color:  r.colors.ColorFor(id, 1),
			Points: points,
		})
	}
	return out
}

func (r *Reducer) categories(s models.Snapshot, ids []string) []models.CategorySlice {
	index := make(map[string]int)
	out := []models.CategorySlice{}
	for _, id := range ids {
		for _, ssid := range s.Devices[id].SSIDList {
			if i, ok := index[ssid]; ok {
				out[i].Count++
				continue
			}
			index[ssid] = len(out)
			out = append(out, models.CategorySlice{
				Label:  ssid,
				Count:  1,
				Fill:   r.colors.ColorFor(ssid, r.cfg.FillAlpha),
				Border: r.colors.ColorFor(ssid, 1),
			})
		}
	}
	return out
}

func (r *Reducer) persistenceBars(s models.Snapshot, ids []string) []models.PersistenceBar {
	out := make([]models.PersistenceBar, 0, len(ids))
	for _, id := range ids {
		d := s.Devices[id]
		class := r.Classify(d.AnomalyScore)
		out = append(out, models.PersistenceBar{
			Label:  id,
			Score:  d.PersistenceScore,
			Class:  class,
			Fill:   r.colors.ColorFor(class, r.cfg.FillAlpha),
			Border: r.colors.ColorFor(class, 1),
		})
	}
	return out
}

// Classify is strict: a score equal to the threshold is normal.
func (r *Reducer) Classify(anomaly float64) string {
	if anomaly > r.cfg.AnomalyThreshold {
		return r.cfg.AnomalyLabel
	}
	return r.cfg.NormalLabel
}

// channelHistogram sums channel counts across devices, ascending by channel
// number. Keys that are not integers are skipped; Snapshot.Validate rejects
// them before a snapshot reaches the reducer.
func (r *Reducer) channelHistogram(s models.Snapshot, ids []string) models.ChannelHistogram {
	sums := make(map[int]int)
	for _, id := range ids {
		for key, n := range s.Devices[id].ChannelCounts {
			ch, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			sums[ch] += n
		}
	}
	bins := make([]models.ChannelBin, 0, len(sums))
	for ch, n := range sums {
		bins = append(bins, models.ChannelBin{Channel: ch, Count: n})
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].Channel < bins[j].Channel })

	return models.ChannelHistogram{
		Bins:   bins,
		Fill:   r.colors.ColorFor(r.cfg.ChannelLabel, r.cfg.FillAlpha),
		Border: r.colors.ColorFor(r.cfg.ChannelLabel, 1),
	}
}

func (r *Reducer) gauges(d models.Diagnostics) (heap, uptime models.Gauge) {
	used := d.HeapOrZero()
	heap = models.Gauge{Filled: used, Remaining: clampZero(r.cfg.HeapCapacity - used)}

	elapsed := d.UptimeOrZero()
	if elapsed > r.cfg.UptimeCapacity {
		elapsed = clampZero(r.cfg.UptimeCapacity)
	}
	uptime = models.Gauge{Filled: elapsed, Remaining: clampZero(r.cfg.UptimeCapacity - elapsed)}
	return heap, uptime
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
