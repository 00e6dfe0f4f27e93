package domain

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// ParseRole converts a raw role string. The second return is false for
// anything outside the closed set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleRider, RoleDriver, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// CanActAsRider reports whether the role may request and cancel rides as a rider.
func (r Role) CanActAsRider() bool {
	return r == RoleRider
}

// CanActAsDriver reports whether the role may accept and drive rides.
func (r Role) CanActAsDriver() bool {
	return r == RoleDriver
}

// SelfRegisterable reports whether the role may be created through signup.
func (r Role) SelfRegisterable() bool {
	return r == RoleRider || r == RoleDriver
}

// Vehicle describes a driver's car.
type Vehicle struct {
	Type        string `json:"type"`
	Model       string `json:"model,omitempty"`
	PlateNumber string `json:"plateNumber,omitempty"`
	Color       string `json:"color,omitempty"`
}

// DefaultVehicleType is used when a driver has not described their vehicle.
const DefaultVehicleType = "Sedan"

// Document is one verifiable driver document.
type Document struct {
	Verified bool       `json:"verified"`
	Expiry   *time.Time `json:"expiry,omitempty"`
}

// Documents groups the driver documents checked before onboarding.
type Documents struct {
	License      Document `json:"license"`
	Insurance    Document `json:"insurance"`
	Registration Document `json:"registration"`
}

// User represents a rider, driver or admin account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Avatar       string
	Role         Role
	Rating       float64
	TotalRides   int

	// Driver-only attributes.
	Online    bool
	Lat       float64
	Lng       float64
	Vehicle   Vehicle
	Documents Documents

	CreatedAt time.Time
	UpdatedAt time.Time
}
