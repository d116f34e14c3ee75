package domain

// DriverSession is the authenticated driver identity plus vehicle attrs.
// It is owned by the auth collaborator: read-only for the whole session
// except via an explicit profile refresh.
type DriverSession struct {
	DriverID      string `json:"driver_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number"`
	ProfilePicURL string `json:"profile_picture_url"`
	Vehicle       Vehicle
}

type Vehicle struct {
	Make         string `json:"vehicle_make"`
	Model        string `json:"vehicle_model"`
	Color        string `json:"vehicle_color"`
	LicensePlate string `json:"license_plate"`
}

type DriverPresence string

const (
	PresenceOnline  DriverPresence = "online"
	PresenceOffline DriverPresence = "offline"
)

// AvailabilityOf is the driver availability pushed with telemetry:
// busy iff an offer exists, available otherwise.
func AvailabilityOf(hasOffer bool) string {
	if hasOffer {
		return "busy"
	}
	return "available"
}
