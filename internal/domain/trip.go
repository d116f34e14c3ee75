package domain

import "time"

// TripPhase is where the driver currently stands in a trip's lifecycle.
// Completed and Cancelled are not held: reaching either collapses the
// session straight back to PhaseNone.
type TripPhase string

const (
	PhaseNone      TripPhase = "none"
	PhaseOffered   TripPhase = "offered"
	PhaseAssigned  TripPhase = "assigned"
	PhaseOnRoute   TripPhase = "on_route"
	PhaseCompleted TripPhase = "completed"
	PhaseCancelled TripPhase = "cancelled"
)

// TripStatus is the backend's notion of a trip, as reported by polling.
type TripStatus string

const (
	StatusSearching TripStatus = "searching"
	StatusAccepted  TripStatus = "accepted"
	StatusOnRoute   TripStatus = "on_route"
	StatusCompleted TripStatus = "completed"
	StatusCancelled TripStatus = "cancelled"
)

// PhaseForStatus maps a polled trip status onto the local phase used when
// rehydrating after a reload. Anything not active maps to PhaseNone.
func PhaseForStatus(s TripStatus) TripPhase {
	switch s {
	case StatusAccepted:
		return PhaseAssigned
	case StatusOnRoute:
		return PhaseOnRoute
	default:
		return PhaseNone
	}
}

type Stop struct {
	Point LatLng `json:"point"`
	Label string `json:"label"`
}

// TripOffer is a proposed or active trip. At most one exists per driver.
type TripOffer struct {
	TripID               string    `json:"trip_id"`
	RiderID              string    `json:"rider_id"`
	Pickup               Stop      `json:"pickup"`
	Dropoff              Stop      `json:"dropoff"`
	EstimatedDistanceKm  float64   `json:"estimated_distance_km"`
	EstimatedDurationMin float64   `json:"estimated_duration_min"`
	EstimatedPrice       float64   `json:"estimated_price"`
	ExpiresAt            time.Time `json:"expires_at"`
}

// Destination is pickup until the rider is on board, dropoff after.
func (o *TripOffer) Destination(phase TripPhase) LatLng {
	if phase == PhaseOnRoute {
		return o.Dropoff.Point
	}
	return o.Pickup.Point
}
