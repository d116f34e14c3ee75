package rest

import (
	"encoding/json"

	"loop-drive/internal/domain"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

type DriverDetails struct {
	ID            string `json:"id"`
	LicenseNumber string `json:"license_number"`
	LicensePlate  string `json:"license_plate"`
	PhoneNumber   string `json:"phone_number"`
	VehicleColor  string `json:"vehicle_color"`
	VehicleMake   string `json:"vehicle_make"`
	VehicleModel  string `json:"vehicle_model"`
	VehicleType   string `json:"vehicle_type"`
}

type UserDetails struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	PhoneNumber   string `json:"phone_number"`
	ProfilePicURL string `json:"profile_picture_url"`
}

type DriverResponse struct {
	Success bool          `json:"success"`
	Status  int           `json:"status"`
	Message string        `json:"message"`
	Details DriverDetails `json:"details"`
	User    UserDetails   `json:"user"`
}

// Session builds the immutable per-session driver identity.
func (r *DriverResponse) Session() domain.DriverSession {
	return domain.DriverSession{
		DriverID:      r.Details.ID,
		Name:          r.User.FullName,
		Email:         r.User.Email,
		PhoneNumber:   r.User.PhoneNumber,
		ProfilePicURL: r.User.ProfilePicURL,
		Vehicle: domain.Vehicle{
			Make:         r.Details.VehicleMake,
			Model:        r.Details.VehicleModel,
			Color:        r.Details.VehicleColor,
			LicensePlate: r.Details.LicensePlate,
		},
	}
}

// LocationSnapshot is the full driver state pushed to persistence every
// telemetry tick.
type LocationSnapshot struct {
	DriverID     string        `json:"driver_id"`
	Name         string        `json:"name"`
	CarMake      string        `json:"car_make"`
	CarModel     string        `json:"car_model"`
	CarColor     string        `json:"car_color"`
	CarPlate     string        `json:"car_plate"`
	LatLng       domain.LatLng `json:"lat_lng"`
	LastUpdated  int64         `json:"last_updated"` // unix millis
	Status       string        `json:"status"`       // available | busy
	IsOnline     bool          `json:"is_online"`
	CurrentTrip  string        `json:"current_trip"`
	CurrentRider string        `json:"current_rider,omitempty"`
}

type AcceptTripRequest struct {
	DriverID string `json:"driver_id"`
	TripID   string `json:"trip_id"`
}

type TripPartiesRequest struct {
	DriverID string `json:"driver_id"`
	RiderID  string `json:"rider_id"`
	TripID   string `json:"trip_id"`
}

type CancelTripRequest struct {
	DriverID      string `json:"driver_id"`
	RiderID       string `json:"rider_id"`
	TripID        string `json:"trip_id"`
	Reason        string `json:"reason"`
	IsRiderPicked bool   `json:"is_rider_picked"`
}

type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusProbe is the polled trip status. The backend answers with either
// a bare boolean ("do you have a trip at all") or a trip status string,
// so both shapes decode into one value.
type StatusProbe struct {
	Bool   bool
	IsBool bool
	Status domain.TripStatus
}

func (p *StatusProbe) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		p.Bool = b
		p.IsBool = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.Status = domain.TripStatus(s)
	return nil
}

func (p *StatusProbe) MarshalJSON() ([]byte, error) {
	if p.IsBool {
		return json.Marshal(p.Bool)
	}
	return json.Marshal(string(p.Status))
}

// Active reports whether the poll reveals a live trip for this driver.
func (p *StatusProbe) Active() bool {
	if p.IsBool {
		return p.Bool
	}
	return p.Status == domain.StatusAccepted || p.Status == domain.StatusOnRoute
}

type DriverTripStatusResponse struct {
	TripID string      `json:"trip_id"`
	Status StatusProbe `json:"status"`
}

// ActiveTrip is the trip-details record fetched by id, used to rehydrate
// local state after a reload.
type ActiveTrip struct {
	TripID               string            `json:"trip_id"`
	RiderID              string            `json:"rider_id"`
	DriverID             string            `json:"driver_id"`
	PaymentID            string            `json:"payment_id"`
	PickupLocation       string            `json:"pickup_location"`
	DropoffLocation      string            `json:"dropoff_location"`
	PickupLat            float64           `json:"pickup_lat"`
	PickupLng            float64           `json:"pickup_lng"`
	DropoffLat           float64           `json:"dropoff_lat"`
	DropoffLng           float64           `json:"dropoff_lng"`
	EstimatedDistanceKm  float64           `json:"estimated_distance_km"`
	EstimatedDurationMin float64           `json:"estimated_duration_min"`
	EstimatedPrice       float64           `json:"estimated_price"`
	Status               domain.TripStatus `json:"status"`
}
