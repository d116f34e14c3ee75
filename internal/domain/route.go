package domain

import "time"

// RouteSnapshot is the currently displayed path between origin and
// destination. Snapshots replace each other, they never accumulate.
type RouteSnapshot struct {
	Origin      LatLng    `json:"origin"`
	Destination LatLng    `json:"destination"`
	Geometry    []LatLng  `json:"polyline_geometry"`
	DistanceM   float64   `json:"distance_m"`
	ComputedAt  time.Time `json:"computed_at"`
}

type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)
