package location

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"loop-drive/internal/domain"
)

var watchOptions = WatchOptions{
	HighAccuracy: true,
	MaxSampleAge: time.Second,
	Timeout:      10 * time.Second,
}

// Sampler keeps the single latest device fix (last-write-wins) and the
// permission/availability status machine around the platform watch.
// Exactly one watch is active at any time: restarting replaces it.
type Sampler struct {
	slogger  *slog.Logger
	provider Provider

	mu     sync.Mutex
	latest *domain.LocationSample
	status domain.LocationStatus
	errMsg string
	stop   func()
}

func NewSampler(slogger *slog.Logger, provider Provider) *Sampler {
	s := &Sampler{
		slogger:  slogger,
		provider: provider,
		status:   domain.LocationIdle,
	}
	if !provider.Supported() {
		// terminal: detected once, never leaves this state
		s.status = domain.LocationUnsupported
		s.errMsg = "Geolocation is not supported on this device"
	}
	return s
}

// Start begins the continuous watch. No-op on an unsupported platform.
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.status == domain.LocationUnsupported {
		s.mu.Unlock()
		return
	}
	s.status = domain.LocationLocating
	s.errMsg = ""
	s.mu.Unlock()
	s.restartWatch()
}

// RequestAccess is the manual retry: resets to locating, clears the
// error and replaces the active watch.
func (s *Sampler) RequestAccess() {
	s.mu.Lock()
	if s.status == domain.LocationUnsupported {
		s.mu.Unlock()
		return
	}
	s.status = domain.LocationLocating
	s.errMsg = ""
	s.mu.Unlock()
	s.restartWatch()
}

func (s *Sampler) restartWatch() {
	s.mu.Lock()
	prev := s.stop
	s.stop = nil
	s.mu.Unlock()
	if prev != nil {
		prev()
	}

	stop, err := s.provider.Watch(watchOptions, s.onSample, s.onError)
	if err != nil {
		s.onError(err)
		return
	}
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
}

func (s *Sampler) onSample(sample domain.LocationSample) {
	s.mu.Lock()
	s.latest = &sample
	s.status = domain.LocationReady
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Sampler) onError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, ErrPermissionDenied) {
		s.status = domain.LocationBlocked
		s.errMsg = "Location permission denied. Please allow access to continue."
		return
	}
	// previous fix, if any, stays usable
	s.status = domain.LocationIdle
	s.errMsg = err.Error()
}

// Latest returns the most recent fix, nil when none arrived yet.
func (s *Sampler) Latest() *domain.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil
	}
	cp := *s.latest
	return &cp
}

// Snapshot exposes the current {latLng, status, error} triple.
func (s *Sampler) Snapshot() (*domain.LatLng, domain.LocationStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pt *domain.LatLng
	if s.latest != nil {
		cp := s.latest.Point
		pt = &cp
	}
	return pt, s.status, s.errMsg
}

// Close releases the active watch.
func (s *Sampler) Close() {
	s.mu.Lock()
	prev := s.stop
	s.stop = nil
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}
