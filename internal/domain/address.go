package domain

import "fmt"

// Address is a reverse-geocoded place description.
type Address struct {
	PlaceName string `json:"place_name"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
}

// FormatAddress renders "street, city, region" when all three are known,
// otherwise falls back to the raw place name.
func FormatAddress(a *Address) string {
	if a == nil {
		return "Loading address..."
	}
	if a.Street != "" && a.City != "" && a.Region != "" {
		return fmt.Sprintf("%s, %s, %s", a.Street, a.City, a.Region)
	}
	if a.PlaceName != "" {
		return a.PlaceName
	}
	return "Unknown location"
}
