package alerts

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

// Alerter writes one line per suspicious device to an alert log, at most
// once per cooldown window for the same address.
type Alerter struct {
	cooldown time.Duration
	out      io.Writer
	logger   *zap.Logger
	last     map[string]time.Time
	mu       sync.Mutex
}

func New(out io.Writer, cooldown time.Duration, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		cooldown: cooldown,
		out:      out,
		logger:   logger,
		last:     make(map[string]time.Time),
	}
}

// Notify reports whether an alert was emitted. A throttled alert returns
// false without error.
func (a *Alerter) Notify(mac string, dev models.DeviceRecord, now time.Time) (bool, error) {
	a.mu.Lock()
	if prev, ok := a.last[mac]; ok && now.Sub(prev) < a.cooldown {
		a.mu.Unlock()
		return false, nil
	}
	a.last[mac] = now
	a.mu.Unlock()

	line := fmt.Sprintf("%s: Suspicious - MAC=%s, Score=%.2f, Persistence=%.2f, Pattern=%.2f, Deauths=%d, Vendor=%s\n",
		now.Format(time.ANSIC), mac, dev.AnomalyScore, dev.PersistenceScore, dev.PatternScore, dev.DeauthCount, dev.Vendor)

	a.logger.Warn("suspicious device",
		zap.String("mac", mac),
		zap.Float64("anomaly_score", dev.AnomalyScore),
		zap.Int("deauth_count", dev.DeauthCount),
		zap.String("vendor", dev.Vendor),
	)

	if a.out == nil {
		return true, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := io.WriteString(a.out, line); err != nil {
		return true, fmt.Errorf("write alert: %w", err)
	}
	return true, nil
}
