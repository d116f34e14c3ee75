package route

import (
	"sync"

	"loop-drive/internal/domain"
)

// Canvas is the map/overlay surface the controller draws on. All mutating
// calls are idempotent upserts (replace-if-present, else create) so
// repeated redraws cannot duplicate or tear overlay state. Rendering
// technology stays behind this interface.
type Canvas interface {
	UpsertRoute(geometry []domain.LatLng)
	RemoveRoute()
	RemoveOriginMarker()
	UpsertDestinationMarker(pt domain.LatLng)
	RemoveDestinationMarker()
	FitBounds(geometry []domain.LatLng, padding int)
}

// MemoryCanvas is an in-process canvas: it records the overlay state so a
// renderer (or a test) can read it back. One per session.
type MemoryCanvas struct {
	mu          sync.Mutex
	route       []domain.LatLng
	destination *domain.LatLng
	origin      bool
	fits        int
	padding     int
}

func NewMemoryCanvas() *MemoryCanvas {
	return &MemoryCanvas{origin: true}
}

func (c *MemoryCanvas) UpsertRoute(geometry []domain.LatLng) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.route = append([]domain.LatLng(nil), geometry...)
}

func (c *MemoryCanvas) RemoveRoute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.route = nil
}

func (c *MemoryCanvas) RemoveOriginMarker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = false
}

func (c *MemoryCanvas) UpsertDestinationMarker(pt domain.LatLng) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := pt
	c.destination = &cp
}

func (c *MemoryCanvas) RemoveDestinationMarker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destination = nil
}

func (c *MemoryCanvas) FitBounds(geometry []domain.LatLng, padding int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fits++
	c.padding = padding
}

// Route returns the drawn geometry, nil when no route is shown.
func (c *MemoryCanvas) Route() []domain.LatLng {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LatLng(nil), c.route...)
}

// DestinationMarker returns the marker position, nil when suppressed.
func (c *MemoryCanvas) DestinationMarker() *domain.LatLng {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destination == nil {
		return nil
	}
	cp := *c.destination
	return &cp
}

func (c *MemoryCanvas) HasOriginMarker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

// Fits reports how many viewport refits happened and the last padding.
func (c *MemoryCanvas) Fits() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fits, c.padding
}
