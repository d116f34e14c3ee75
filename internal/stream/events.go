package stream

import (
	"time"

	"loop-drive/internal/domain"
)

// Inbound message types the dispatcher recognizes. Everything else is
// noise or an unknown tag.
const (
	TypeTripRequest       = "TRIP_REQUEST"
	TypeTripCanceledRider = "TRIP_CANCELED_BY_RIDER"
)

// Outbound message types.
const (
	TypeTripAccepted         = "TRIP_ACCEPTED"
	TypeTripRejected         = "TRIP_REJECTED"
	TypeDriverLocationUpdate = "DRIVER_LOCATION_UPDATE"
)

// envelope is the minimal shape every inbound payload is probed with
// before full decoding.
type envelope struct {
	Type   string `json:"type"`
	TripID string `json:"trip_id"`
}

// TripRequestEvent is the full TRIP_REQUEST payload.
type TripRequestEvent struct {
	Type                 string  `json:"type"`
	TripID               string  `json:"trip_id"`
	RiderID              string  `json:"rider_id"`
	DriverID             string  `json:"driver_id"`
	PickupLat            float64 `json:"pickup_lat"`
	PickupLng            float64 `json:"pickup_lng"`
	DropoffLat           float64 `json:"dropoff_lat"`
	DropoffLng           float64 `json:"dropoff_lng"`
	PickupLocation       string  `json:"pickup_location"`
	DropoffLocation      string  `json:"dropoff_location"`
	EstimatedDistanceKm  float64 `json:"estimated_distance_km"`
	EstimatedDurationMin float64 `json:"estimated_duration_min"`
	EstimatedPrice       float64 `json:"estimated_price"`
	ExpiresAt            int64   `json:"expires_at"` // unix millis
	RiderName            string  `json:"rider_name"`
	RiderAge             int     `json:"rider_age"`
	RiderGender          string  `json:"rider_gender"`
}

// Offer converts the wire payload into the domain offer.
func (e *TripRequestEvent) Offer() domain.TripOffer {
	return domain.TripOffer{
		TripID:  e.TripID,
		RiderID: e.RiderID,
		Pickup: domain.Stop{
			Point: domain.LatLng{Lat: e.PickupLat, Lng: e.PickupLng},
			Label: e.PickupLocation,
		},
		Dropoff: domain.Stop{
			Point: domain.LatLng{Lat: e.DropoffLat, Lng: e.DropoffLng},
			Label: e.DropoffLocation,
		},
		EstimatedDistanceKm:  e.EstimatedDistanceKm,
		EstimatedDurationMin: e.EstimatedDurationMin,
		EstimatedPrice:       e.EstimatedPrice,
		ExpiresAt:            time.UnixMilli(e.ExpiresAt),
	}
}

// TripCanceledEvent is the TRIP_CANCELED_BY_RIDER payload.
type TripCanceledEvent struct {
	Type   string `json:"type"`
	TripID string `json:"trip_id"`
}

// TripDecisionEvent is the outbound accept/reject answer to an offer.
type TripDecisionEvent struct {
	Type   string `json:"type"`
	TripID string `json:"trip_id"`
}

// DriverLocationUpdateEvent is the light realtime telemetry event pushed
// over the channel while a trip is active.
type DriverLocationUpdateEvent struct {
	Type              string  `json:"type"`
	TripID            string  `json:"trip_id"`
	RiderID           string  `json:"rider_id"`
	DriverID          string  `json:"driver_id"`
	DriverName        string  `json:"driver_name"`
	DriverCarColor    string  `json:"driver_car_color"`
	DriverCarNumber   string  `json:"driver_car_number"`
	DriverProfilePic  string  `json:"driver_profile_pic"`
	DriverPhoneNumber string  `json:"driver_phone_number"`
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Status            string  `json:"status"` // assigned | on_route
}
