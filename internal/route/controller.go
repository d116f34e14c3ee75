package route

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loop-drive/internal/domain"
)

const (
	// displacement below which the periodic check skips recomputation
	minMoveMeters = 100
	// origin-destination distance under which the destination marker is
	// hidden (trip effectively arrived)
	arrivedMeters = 20
	fitPadding    = 70
)

// Controller recomputes and redraws the route between the moving driver
// origin and the phase-dependent destination. Recomputation triggers on
// destination change and on a fixed-interval displacement check, so the
// routing collaborator is never hammered by raw GPS ticks.
type Controller struct {
	slogger    *slog.Logger
	ctx        context.Context
	router     Router
	canvas     Canvas
	origin     func() *domain.LatLng
	checkEvery time.Duration

	mu          sync.Mutex
	destination *domain.LatLng
	lastRouted  *domain.LatLng
	snapshot    *domain.RouteSnapshot
	generation  uint64
}

// NewController binds the controller to the session context: every
// computation it starts, even one triggered before Run, dies with the
// session.
func NewController(ctx context.Context, slogger *slog.Logger, router Router, canvas Canvas, origin func() *domain.LatLng, checkEvery time.Duration) *Controller {
	return &Controller{
		slogger:    slogger,
		ctx:        ctx,
		router:     router,
		canvas:     canvas,
		origin:     origin,
		checkEvery: checkEvery,
	}
}

// Run drives the periodic displacement check until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Clear()
			return
		case <-ticker.C:
			c.Check()
		}
	}
}

// Check runs one displacement comparison against the last-routed origin
// and recomputes only when the driver moved at least minMoveMeters.
func (c *Controller) Check() {
	latest := c.origin()
	if latest == nil {
		return
	}

	c.mu.Lock()
	if c.destination == nil {
		c.mu.Unlock()
		return
	}
	if c.lastRouted != nil && domain.DistanceMeters(*c.lastRouted, *latest) < minMoveMeters {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.recompute(*latest)
}

// SetDestination switches the routed target (nil clears the overlay).
// Any in-flight computation for the old destination is invalidated before
// the new one starts.
func (c *Controller) SetDestination(pt *domain.LatLng) {
	c.mu.Lock()
	c.generation++ // supersede whatever is in flight
	if pt == nil {
		c.destination = nil
		c.lastRouted = nil
		c.snapshot = nil
		c.canvas.RemoveRoute()
		c.canvas.RemoveDestinationMarker()
		c.mu.Unlock()
		return
	}
	cp := *pt
	c.destination = &cp
	c.lastRouted = nil
	c.mu.Unlock()

	if latest := c.origin(); latest != nil {
		c.recompute(*latest)
	}
}

// recompute runs one cancellable routing unit: the generation taken
// before the asynchronous call is re-checked on completion, so a
// superseded result can never mutate the live overlay. The check and the
// canvas mutation happen under one lock hold, so a Clear racing the
// completion either lands before the check (result discarded) or after
// the full draw (overlay wiped).
func (c *Controller) recompute(origin domain.LatLng) {
	c.mu.Lock()
	if c.destination == nil {
		c.mu.Unlock()
		return
	}
	dest := *c.destination
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	go func() {
		snap, err := c.router.Route(c.ctx, origin, dest)
		if err != nil {
			c.slogger.Warn("route computation failed", "error", err)
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			// superseded while in flight, discard silently
			return
		}
		cp := origin
		c.lastRouted = &cp
		c.snapshot = snap
		c.draw(snap)
	}()
}

func (c *Controller) draw(snap *domain.RouteSnapshot) {
	c.canvas.UpsertRoute(snap.Geometry)
	// the live position marker already shows the car; the origin marker
	// would duplicate it under the drawn route
	c.canvas.RemoveOriginMarker()

	if domain.DistanceMeters(snap.Origin, snap.Destination) < arrivedMeters {
		c.canvas.RemoveDestinationMarker()
	} else {
		c.canvas.UpsertDestinationMarker(snap.Destination)
	}

	c.canvas.FitBounds(snap.Geometry, fitPadding)
}

// Clear invalidates in-flight work and wipes the overlay.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.destination = nil
	c.lastRouted = nil
	c.snapshot = nil
	c.canvas.RemoveRoute()
	c.canvas.RemoveDestinationMarker()
}

// Snapshot returns the currently displayed route, nil when none.
func (c *Controller) Snapshot() *domain.RouteSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}
