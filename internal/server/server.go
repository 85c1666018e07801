package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/alerts"
	"github.com/AsHfIEXE/SigVoid/internal/analytics"
	"github.com/AsHfIEXE/SigVoid/internal/cache"
	"github.com/AsHfIEXE/SigVoid/internal/dashboard"
	"github.com/AsHfIEXE/SigVoid/internal/models"
	"github.com/AsHfIEXE/SigVoid/internal/observability"
)

const version = "1.0.0"

// Store is the persistence the HTTP surface and the event loop rely on.
type Store interface {
	SaveSnapshot(s models.Snapshot) error
	LatestSnapshot() (models.Snapshot, bool, error)
	StoreAlert(a cache.Alert) error
	RecentAlerts(count int64) ([]cache.Alert, error)
	LogPacket(p cache.Packet) error
	RecentPackets(count int64) ([]cache.Packet, error)
	PrunePackets(cutoff time.Time) (int64, error)
	Ban(mac string, at time.Time) error
	IsBanned(mac string) (bool, error)
	BannedMACs() ([]string, error)
	PruneBans(cutoff time.Time) (int64, error)
	Setting(key, def string) (string, error)
	SetSettings(values map[string]string) error
	SaveLayout(order []string) error
	Layout() ([]string, error)
}

// Commander sends a control line to the sensor.
type Commander interface {
	Send(command string) error
	Connected() bool
}

// PushChannel serves the dashboard websocket.
type PushChannel interface {
	http.Handler
	Clients() int
}

type Options struct {
	ExportDir   string
	MaxAge      time.Duration
	BanMaxAge   time.Duration
	EventBuffer int
}

type Deps struct {
	Store      Store
	Tracker    *analytics.Tracker
	Reducer    *analytics.Reducer
	Controller *dashboard.Controller
	Alerter    *alerts.Alerter
	Push       PushChannel
	Commander  Commander
	Metrics    *observability.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

type Server struct {
	router     *mux.Router
	opts       Options
	store      Store
	tracker    *analytics.Tracker
	reducer    *analytics.Reducer
	controller *dashboard.Controller
	alerter    *alerts.Alerter
	push       PushChannel
	commander  Commander
	metrics    *observability.Metrics
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	events     chan models.Event
	refresh    chan struct{}
	now        func() time.Time
}

func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Tracker == nil || deps.Reducer == nil || deps.Controller == nil || deps.Metrics == nil {
		return nil, fmt.Errorf("server: store, tracker, reducer, controller and metrics are required")
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 10000
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:     mux.NewRouter(),
		opts:       opts,
		store:      deps.Store,
		tracker:    deps.Tracker,
		reducer:    deps.Reducer,
		controller: deps.Controller,
		alerter:    deps.Alerter,
		push:       deps.Push,
		commander:  deps.Commander,
		metrics:    deps.Metrics,
		gatherer:   deps.Gatherer,
		logger:     deps.Logger,
		events:     make(chan models.Event, opts.EventBuffer),
		refresh:    make(chan struct{}, 1),
		now:        time.Now,
	}

	if err := s.restore(); err != nil {
		return nil, err
	}
	s.setupRoutes()
	return s, nil
}

// restore reapplies persisted bans and theme, and redraws the last cached
// snapshot so clients see data before the sensor reports again.
func (s *Server) restore() error {
	banned, err := s.store.BannedMACs()
	if err != nil {
		return fmt.Errorf("failed to load banned macs: %w", err)
	}
	s.tracker.Ban(banned...)

	theme, err := s.store.Setting(settingTheme, string(s.controller.Theme().Current()))
	if err != nil {
		s.logger.Warn("failed to load theme setting", zap.Error(err))
	} else if t, err := dashboard.ParseTheme(theme); err == nil {
		s.controller.Theme().Set(t)
	}

	snap, ok, err := s.store.LatestSnapshot()
	if err != nil {
		s.logger.Warn("failed to load cached snapshot", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if err := snap.Validate(); err != nil {
		s.logger.Warn("discarding invalid cached snapshot", zap.Error(err))
		return nil
	}
	s.controller.Render(s.reduce(snap), &snap)
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/diagnostics", s.diagnosticsHandler).Methods("GET")
	s.router.HandleFunc("/snapshot", s.snapshotHandler).Methods("GET")
	s.router.HandleFunc("/view", s.viewHandler).Methods("GET")
	s.router.HandleFunc("/alerts", s.alertsHandler).Methods("GET")
	s.router.HandleFunc("/packets", s.packetsHandler).Methods("GET")
	s.router.HandleFunc("/ingest", s.ingestHandler).Methods("POST")
	s.router.HandleFunc("/export/{format}", s.exportHandler).Methods("GET")
	s.router.HandleFunc("/cleanup", s.cleanupHandler).Methods("POST")
	s.router.HandleFunc("/ban/{mac}", s.banHandler).Methods("POST")
	s.router.HandleFunc("/esp-config", s.espConfigHandler).Methods("GET", "POST")
	s.router.HandleFunc("/layout", s.getLayoutHandler).Methods("GET")
	s.router.HandleFunc("/layout", s.putLayoutHandler).Methods("PUT")
	s.router.HandleFunc("/layout/move", s.moveWidgetHandler).Methods("POST")
	s.router.HandleFunc("/theme", s.getThemeHandler).Methods("GET")
	s.router.HandleFunc("/theme", s.putThemeHandler).Methods("PUT")
	if s.push != nil {
		s.router.Handle("/ws", s.push).Methods("GET")
	}
	s.router.Handle("/metrics/prometheus", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) Handler() http.Handler { return s.router }

// Events is the queue the sensor link feeds.
func (s *Server) Events() chan<- models.Event { return s.events }

// ProcessEvents applies queued events one at a time until ctx is done. It is
// the only goroutine that publishes, so snapshots are cached and rendered in
// the order they were taken.
func (s *Server) ProcessEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-s.refresh:
			s.publish()
		}
	}
}

// requestRefresh asks the event loop to republish after an out-of-band
// tracker change. Pending requests coalesce.
func (s *Server) requestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *Server) handleEvent(ev models.Event) {
	res := s.tracker.Apply(ev)
	s.metrics.EventsProcessed.WithLabelValues(string(ev.Type)).Inc()
	if res.Ignored && ev.Type != models.EventDiagnostics {
		return
	}
	if ev.Type != models.EventDiagnostics {
		s.logPacket(ev, res.Device)
	}

	if res.Suspicious && s.alerter != nil {
		now := s.now()
		sent, err := s.alerter.Notify(res.MAC, res.Device, now)
		if err != nil {
			s.logger.Error("failed to write alert", zap.String("mac", res.MAC), zap.Error(err))
		}
		if sent {
			s.metrics.AlertsSent.Inc()
			if err := s.store.StoreAlert(cache.Alert{MAC: res.MAC, At: now, Device: res.Device}); err != nil {
				s.logger.Error("failed to cache alert", zap.Error(err))
			}
		}
	}

	s.publish()
}

func (s *Server) logPacket(ev models.Event, dev models.DeviceRecord) {
	at := ev.Timestamp
	if at == 0 {
		at = s.now().UnixMilli()
	}
	p := cache.Packet{
		At:               time.UnixMilli(at).UTC(),
		Type:             string(ev.Type),
		MAC:              ev.MAC,
		SSID:             ev.SSID,
		RSSI:             ev.RSSI,
		Channel:          ev.Channel,
		AnomalyScore:     dev.AnomalyScore,
		PersistenceScore: dev.PersistenceScore,
		PatternScore:     dev.PatternScore,
		DeauthCount:      dev.DeauthCount,
	}
	if err := s.store.LogPacket(p); err != nil {
		s.logger.Error("failed to log packet", zap.String("mac", ev.MAC), zap.Error(err))
	}
}

// publish snapshots the tracker, caches the snapshot and renders its view.
// Only the event loop calls it once the server is running.
func (s *Server) publish() {
	snap := s.tracker.Snapshot()
	s.metrics.TrackedDevices.Set(float64(len(snap.Devices)))

	if err := s.store.SaveSnapshot(snap); err != nil {
		s.logger.Error("failed to cache snapshot", zap.Error(err))
	}
	s.controller.Render(s.reduce(snap), &snap)
}

func (s *Server) reduce(snap models.Snapshot) models.View {
	start := time.Now()
	view := s.reducer.Reduce(snap)
	s.metrics.ReduceDuration.Observe(time.Since(start).Seconds())
	s.metrics.Reductions.Inc()
	return view
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info("server is shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("could not gracefully shutdown the server", zap.Error(err))
		}
	}()

	go s.ProcessEvents(ctx)

	s.logger.Info("server is ready to handle requests", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	<-done
	s.logger.Info("server stopped")
	return nil
}
