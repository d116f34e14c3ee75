package location

import (
	"sync"
	"time"

	"loop-drive/internal/domain"
)

// SimProvider replays a synthetic drive: one fix per second, drifting
// from the start point by a fixed step. Used by the dev binary and by
// tests; real deployments plug in a platform provider instead.
type SimProvider struct {
	start    domain.LatLng
	stepLat  float64
	stepLng  float64
	interval time.Duration

	mu    sync.Mutex
	ticks int
}

func NewSimProvider(start domain.LatLng, stepLat, stepLng float64) *SimProvider {
	return &SimProvider{
		start:    start,
		stepLat:  stepLat,
		stepLng:  stepLng,
		interval: time.Second,
	}
}

func (p *SimProvider) Supported() bool { return true }

func (p *SimProvider) Watch(opts WatchOptions, onSample func(domain.LocationSample), onError func(error)) (func(), error) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.mu.Lock()
				p.ticks++
				n := float64(p.ticks)
				p.mu.Unlock()
				onSample(domain.LocationSample{
					Point: domain.LatLng{
						Lat: p.start.Lat + n*p.stepLat,
						Lng: p.start.Lng + n*p.stepLng,
					},
					Timestamp: time.Now(),
				})
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() { close(done) })
	}
	return stop, nil
}
