package service

import (
	"context"

	"rapidride/internal/domain"
)

// EventPublisher delivers events to real-time subscribers. Delivery is
// fire-and-forget; implementations must not block on slow connections.
type EventPublisher interface {
	// Publish delivers e to every connection subscribed to e.RideID.
	Publish(ctx context.Context, e domain.Event)

	// BroadcastToRole delivers e to every connection of the given role.
	BroadcastToRole(ctx context.Context, role domain.Role, e domain.Event)
}

// RideCache is a read-through snapshot cache for rides. A miss returns
// (nil, nil).
type RideCache interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// LocationStore keeps drivers' last-known positions.
type LocationStore interface {
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error
	RemoveLocation(ctx context.Context, driverID string) error
}

// Notifier records user-facing notifications for lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	List(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

// IncentiveProvider reports a driver's incentive programmes.
type IncentiveProvider interface {
	Incentives(ctx context.Context, driver *domain.User) (*Incentives, error)
}

// CouponProvider lists coupons available to a rider.
type CouponProvider interface {
	Coupons(ctx context.Context, riderID string) ([]Coupon, error)
}

// Coupon is a discount offered to a rider.
type Coupon struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Discount    float64 `json:"discount"`
}

// NoCoupons is a CouponProvider with nothing on offer.
type NoCoupons struct{}

// Coupons returns an empty list.
func (NoCoupons) Coupons(context.Context, string) ([]Coupon, error) {
	return []Coupon{}, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event)                      {}
func (nopPublisher) BroadcastToRole(context.Context, domain.Role, domain.Event) {}
