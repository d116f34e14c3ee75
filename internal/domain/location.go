package domain

import "time"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationSample is a single device fix. Only the latest one is ever
// retained: each new sample overwrites the previous (no history).
type LocationSample struct {
	Point     LatLng    `json:"lat_lng"`
	Timestamp time.Time `json:"timestamp"`
}

type LocationStatus string

const (
	LocationIdle        LocationStatus = "idle"
	LocationLocating    LocationStatus = "locating"
	LocationReady       LocationStatus = "ready"
	LocationBlocked     LocationStatus = "blocked"
	LocationUnsupported LocationStatus = "unsupported"
)
