package session

import (
	"context"
	"log/slog"
	"sync"

	"loop-drive/config"
	"loop-drive/internal/domain"
	"loop-drive/internal/geocode"
	"loop-drive/internal/location"
	"loop-drive/internal/rest"
	"loop-drive/internal/route"
	"loop-drive/internal/stream"
	"loop-drive/internal/telemetry"
	"loop-drive/internal/trip"
)

// Session owns the per-login object graph: sampler, event channel, trip
// machine, route controller and telemetry publishers. Nothing here is a
// process-wide singleton — everything is constructed at session start and
// passed by handle.
//
// A reload (rider cancel, dropoff, driver cancel) tears the whole graph
// down and rebuilds it; the fresh graph rehydrates from polling, never
// from the stream.
type Session struct {
	slogger  *slog.Logger
	cfg      *config.Config
	rest     *rest.Client
	driver   domain.DriverSession
	provider location.Provider
	router   route.Router
	canvas   route.Canvas
	geocoder *geocode.Reverser

	mu      sync.Mutex
	machine *trip.Machine
	sampler *location.Sampler
}

func New(
	slogger *slog.Logger,
	cfg *config.Config,
	restClient *rest.Client,
	driver domain.DriverSession,
	provider location.Provider,
	router route.Router,
	canvas route.Canvas,
	geocoder *geocode.Reverser,
) *Session {
	return &Session{
		slogger:  slogger,
		cfg:      cfg,
		rest:     restClient,
		driver:   driver,
		provider: provider,
		router:   router,
		canvas:   canvas,
		geocoder: geocoder,
	}
}

// Run keeps the session alive until ctx is cancelled, rebuilding the
// graph on every reload request.
func (s *Session) Run(ctx context.Context) error {
	for {
		reload := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !reload {
			return nil
		}
		s.slogger.Info("session reload", "driver_id", s.driver.DriverID)
	}
}

// runOnce builds one instance of the graph and blocks until teardown.
// Returns true when teardown was a reload request rather than logout.
func (s *Session) runOnce(parent context.Context) bool {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	reloadCh := make(chan struct{}, 1)
	requestReload := func() {
		select {
		case reloadCh <- struct{}{}:
		default:
		}
	}

	sampler := location.NewSampler(s.slogger, s.provider)
	sampler.Start()
	defer sampler.Close()

	latestPoint := func() *domain.LatLng {
		sample := sampler.Latest()
		if sample == nil {
			return nil
		}
		cp := sample.Point
		return &cp
	}

	ctrl := route.NewController(ctx, s.slogger, s.router, s.canvas, latestPoint, s.cfg.IntervalsCfg.RouteRefresh())

	// realtime telemetry runs only while an offer is bound; the hook
	// opens and closes its scope
	var rtMu sync.Mutex
	var rtCancel context.CancelFunc
	var wg sync.WaitGroup

	var bcast *telemetry.Broadcaster

	hooks := trip.Hooks{
		OnDestination: ctrl.SetDestination,
		OnReload:      requestReload,
		OnOfferActive: func(active bool) {
			rtMu.Lock()
			defer rtMu.Unlock()
			if active {
				if rtCancel != nil {
					return
				}
				rtCtx, cancelRT := context.WithCancel(ctx)
				rtCancel = cancelRT
				wg.Add(1)
				go func() {
					defer wg.Done()
					bcast.RunRealtime(rtCtx)
				}()
				return
			}
			if rtCancel != nil {
				rtCancel()
				rtCancel = nil
			}
		},
	}

	machine := trip.NewMachine(s.slogger, s.driver.DriverID, s.rest, nil, hooks, s.cfg.IntervalsCfg.TripPoll())
	conn := stream.NewConn(s.slogger, s.cfg.WebSocketCfg.URL, s.driver.DriverID, machine)
	conn.SetStateListener(func(state domain.ConnectionState) {
		s.slogger.Info("channel state", "state", string(state), "driver_id", s.driver.DriverID)
	})
	machine.SetSender(conn)

	bcast = telemetry.NewBroadcaster(
		s.slogger,
		s.driver,
		sampler.Latest,
		s.rest,
		conn,
		machine,
		s.cfg.IntervalsCfg.TelemetryREST(),
		s.cfg.IntervalsCfg.TelemetryStream(),
	)

	s.mu.Lock()
	s.machine = machine
	s.sampler = sampler
	s.mu.Unlock()

	wg.Add(3)
	go func() {
		defer wg.Done()
		conn.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		machine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		ctrl.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		bcast.RunPersistence(ctx)
	}()

	var reload bool
	select {
	case <-ctx.Done():
	case <-reloadCh:
		reload = true
	}

	cancel()
	wg.Wait() // zero leaked timers, watches or listeners
	s.mu.Lock()
	s.machine = nil
	s.sampler = nil
	s.mu.Unlock()
	return reload
}

// Trips returns the live trip machine, nil between reloads.
func (s *Session) Trips() *trip.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine
}

// Location returns the current {latLng, status, error} view.
func (s *Session) Location() (*domain.LatLng, domain.LocationStatus, string) {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler == nil {
		return nil, domain.LocationIdle, ""
	}
	return sampler.Snapshot()
}

// CurrentAddress resolves the latest fix into a display string, with the
// loading/unknown fallbacks when no fix or no geocoder is available.
func (s *Session) CurrentAddress(ctx context.Context) string {
	pt, _, _ := s.Location()
	if pt == nil || s.geocoder == nil {
		return domain.FormatAddress(nil)
	}
	return domain.FormatAddress(s.geocoder.Reverse(ctx, *pt))
}

// RequestLocationAccess restarts the device watch after a denial.
func (s *Session) RequestLocationAccess() {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler != nil {
		sampler.RequestAccess()
	}
}
