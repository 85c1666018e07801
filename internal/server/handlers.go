package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/dashboard"
	"github.com/AsHfIEXE/SigVoid/internal/export"
	"github.com/AsHfIEXE/SigVoid/internal/layout"
	"github.com/AsHfIEXE/SigVoid/internal/models"
	"github.com/AsHfIEXE/SigVoid/internal/serial"
)

const (
	settingTheme       = "theme"
	settingAPSSID      = "esp_ap_ssid"
	settingAPPassword  = "esp_ap_password"
	defaultAPSSID      = "FreeWiFi_Honeypot"
	defaultAlertCount  = 10
	defaultPacketCount = 100
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":           "healthy",
		"timestamp":        time.Now().UTC(),
		"version":          version,
		"devices":          s.tracker.Len(),
		"serial_connected": s.commander != nil && s.commander.Connected(),
		"clients":          0,
	}
	if s.push != nil {
		health["clients"] = s.push.Clients()
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) diagnosticsHandler(w http.ResponseWriter, r *http.Request) {
	d := s.tracker.Diagnostics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"free_heap":   d.HeapOrZero(),
		"uptime":      d.UptimeOrZero(),
		"uptime_text": models.FormatUptime(d.UptimeOrZero()),
	})
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	fr, ok := s.controller.Last()
	if !ok {
		t := s.controller.Theme().Current()
		fr = dashboard.Frame{Theme: t, Style: dashboard.StyleFor(t), View: s.reduce(s.tracker.Snapshot())}
	}
	fr.Snapshot = nil
	writeJSON(w, http.StatusOK, fr)
}

// countParam reads the optional positive "count" query parameter.
func countParam(r *http.Request, def int64) (int64, bool) {
	v := r.URL.Query().Get("count")
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	count, ok := countParam(r, defaultAlertCount)
	if !ok {
		writeError(w, http.StatusBadRequest, "count must be a positive integer")
		return
	}

	recent, err := s.store.RecentAlerts(count)
	if err != nil {
		s.logger.Error("failed to read alerts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read alerts")
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

func (s *Server) packetsHandler(w http.ResponseWriter, r *http.Request) {
	count, ok := countParam(r, defaultPacketCount)
	if !ok {
		writeError(w, http.StatusBadRequest, "count must be a positive integer")
		return
	}

	packets, err := s.store.RecentPackets(count)
	if err != nil {
		s.logger.Error("failed to read packet log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read packet log")
		return
	}
	writeJSON(w, http.StatusOK, packets)
}

func (s *Server) ingestHandler(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.Timestamp == 0 && ev.Type != models.EventDiagnostics {
		ev.Timestamp = s.now().UnixMilli()
	}

	select {
	case s.events <- ev:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		s.metrics.EventsDropped.Inc()
		s.logger.Warn("event queue full, dropping event", zap.String("type", string(ev.Type)))
		writeError(w, http.StatusServiceUnavailable, "queue full")
	}
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := export.DefaultFilter()
	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be a number")
			return
		}
		f.MinScore = score
	}
	f.MACPattern = q.Get("mac_filter")
	f.SSIDPattern = q.Get("ssid_filter")
	if v := q.Get("preset"); v != "" {
		f.Preset = v
	}

	snap := s.tracker.Snapshot()
	path, n, err := export.Write(s.opts.ExportDir, mux.Vars(r)["format"], snap.Devices, f, s.now())
	switch {
	case errors.Is(err, export.ErrInvalidFormat), errors.Is(err, export.ErrInvalidPreset), errors.Is(err, export.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "exported", "file": path, "count": n})
}

func (s *Server) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	logs, err := s.store.PrunePackets(now.Add(-s.opts.MaxAge))
	if err != nil {
		s.logger.Error("failed to prune packet log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to prune packet log")
		return
	}
	removed := s.tracker.Prune(now.Add(-s.opts.MaxAge))
	bans, err := s.store.PruneBans(now.Add(-s.opts.BanMaxAge))
	if err != nil {
		s.logger.Error("failed to prune bans", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to prune bans")
		return
	}
	if removed > 0 {
		s.requestRefresh()
	}

	s.logger.Info("cleanup finished",
		zap.Int64("logs_removed", logs),
		zap.Int("devices_removed", removed),
		zap.Int64("bans_removed", bans),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "cleaned",
		"logs_removed":    logs,
		"devices_removed": removed,
		"bans_removed":    bans,
	})
}

func (s *Server) banHandler(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["mac"]
	if !macPattern.MatchString(mac) {
		writeError(w, http.StatusBadRequest, "invalid MAC address")
		return
	}

	already, err := s.store.IsBanned(mac)
	if err != nil {
		s.logger.Error("failed to check ban list", zap.String("mac", mac), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to check ban list")
		return
	}
	if already {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already banned", "mac": mac})
		return
	}

	if err := s.store.Ban(mac, s.now()); err != nil {
		s.logger.Error("failed to ban mac", zap.String("mac", mac), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to ban mac")
		return
	}
	s.tracker.Ban(mac)
	s.requestRefresh()

	writeJSON(w, http.StatusOK, map[string]string{"status": "banned", "mac": mac})
}

type apConfig struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) espConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		ssid, err := s.store.Setting(settingAPSSID, defaultAPSSID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read settings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ssid": ssid})
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := apConfig{SSID: r.PostForm.Get("ssid"), Password: r.PostForm.Get("password")}
	if n := len(cfg.SSID); n < 1 || n > 32 {
		writeError(w, http.StatusBadRequest, "ssid must be 1 to 32 characters")
		return
	}
	if n := len(cfg.Password); n != 0 && (n < 8 || n > 63) {
		writeError(w, http.StatusBadRequest, "password must be empty or 8 to 63 characters")
		return
	}

	if err := s.store.SetSettings(map[string]string{settingAPSSID: cfg.SSID, settingAPPassword: cfg.Password}); err != nil {
		s.logger.Error("failed to save ap settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	if s.commander == nil {
		writeError(w, http.StatusServiceUnavailable, serial.ErrNotConnected.Error())
		return
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.commander.Send("AP_CONFIG " + string(payload)); err != nil {
		if errors.Is(err, serial.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("failed to send ap config", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send config")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "configured", "ssid": cfg.SSID})
}

type layoutBody struct {
	Widgets []string `json:"widgets"`
}

type moveBody struct {
	Widget string `json:"widget"`
	Target string `json:"target"`
}

func (s *Server) currentLayout() ([]string, error) {
	order, err := s.store.Layout()
	if err != nil {
		return nil, err
	}
	return layout.Normalize(order), nil
}

func (s *Server) getLayoutHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.currentLayout()
	if err != nil {
		s.logger.Error("failed to load layout", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load layout")
		return
	}
	writeJSON(w, http.StatusOK, layoutBody{Widgets: order})
}

func (s *Server) putLayoutHandler(w http.ResponseWriter, r *http.Request) {
	var body layoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.saveLayout(w, layout.Normalize(body.Widgets))
}

func (s *Server) moveWidgetHandler(w http.ResponseWriter, r *http.Request) {
	var body moveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := s.currentLayout()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load layout")
		return
	}
	order, err = layout.Move(order, body.Widget, body.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.saveLayout(w, order)
}

func (s *Server) saveLayout(w http.ResponseWriter, order []string) {
	if err := s.store.SaveLayout(order); err != nil {
		s.logger.Error("failed to save layout", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save layout")
		return
	}
	writeJSON(w, http.StatusOK, layoutBody{Widgets: order})
}

type themeBody struct {
	Theme string `json:"theme"`
}

func (s *Server) getThemeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, themeBody{Theme: string(s.controller.Theme().Current())})
}

func (s *Server) putThemeHandler(w http.ResponseWriter, r *http.Request) {
	var body themeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := dashboard.ParseTheme(body.Theme)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SetSettings(map[string]string{settingTheme: string(t)}); err != nil {
		s.logger.Error("failed to save theme", zap.Error(err))
	}
	s.controller.Theme().Set(t)
	writeJSON(w, http.StatusOK, themeBody{Theme: string(t)})
}
