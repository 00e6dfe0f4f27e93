package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// Invoice is the itemized bill for a completed ride.
type Invoice struct {
	InvoiceID   string          `json:"invoiceId"`
	RideID      string          `json:"rideId"`
	RiderID     string          `json:"riderId"`
	DriverID    string          `json:"driverId"`
	DriverName  string          `json:"driverName,omitempty"`
	Pickup      string          `json:"pickup"`
	Drop        string          `json:"drop"`
	RideType    domain.RideType `json:"rideType"`
	DistanceKm  float64         `json:"distanceKm"`
	DurationMin float64         `json:"durationMin"`
	Breakdown   FareBreakdown   `json:"breakdown"`
	Adjustment  float64         `json:"adjustment"`
	Total       float64         `json:"total"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
	InvoiceURL  string          `json:"invoiceUrl"`
}

// ReceiptService builds invoices for completed rides.
type ReceiptService struct {
	rides   repository.RideRepository
	users   repository.UserRepository
	timeout time.Duration
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(rides repository.RideRepository, users repository.UserRepository, storeTimeout time.Duration) *ReceiptService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &ReceiptService{rides: rides, users: users, timeout: storeTimeout}
}

// GenerateInvoice returns the invoice of the rider's completed ride.
func (s *ReceiptService) GenerateInvoice(ctx context.Context, rideID string, rider Actor) (*Invoice, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.rides.GetByID(storeCtx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != rider.ID {
		return nil, ErrNotRideOwner
	}
	if ride.Status != domain.RideStatusCompleted || ride.CompletedAt == nil {
		return nil, ErrRideNotCompleted
	}

	// The breakdown is what the cost model charges for the measured trip;
	// any difference from the recorded fare is shown as an adjustment.
	breakdown := CalculateFare(ride.Type, ride.DistanceKm, ride.DurationMin)
	inv := &Invoice{
		InvoiceID:   invoiceID(ride.ID),
		RideID:      ride.ID,
		RiderID:     ride.RiderID,
		DriverID:    ride.DriverID,
		Pickup:      ride.Pickup.Address,
		Drop:        ride.Dropoff.Address,
		RideType:    ride.Type,
		DistanceKm:  ride.DistanceKm,
		DurationMin: ride.DurationMin,
		Breakdown:   breakdown,
		Adjustment:  math.Round((ride.Fare-breakdown.Total)*100) / 100,
		Total:       ride.Fare,
		StartedAt:   ride.StartedAt,
		CompletedAt: *ride.CompletedAt,
		InvoiceURL:  fmt.Sprintf("/api/rides/%s/invoice?format=text", ride.ID),
	}

	if driver, err := s.users.GetByID(storeCtx, ride.DriverID); err == nil {
		inv.DriverName = driver.Name
	}
	return inv, nil
}

// FormatInvoice formats the invoice as plain text (for email/print).
func (s *ReceiptService) FormatInvoice(inv *Invoice) string {
	return `
=====================================
        RIDE INVOICE
=====================================
Invoice ID: ` + inv.InvoiceID + `
Ride ID: ` + inv.RideID + `
Date: ` + inv.CompletedAt.Format("Jan 02, 2006 3:04 PM") + `

TRIP DETAILS
-------------------------------------
Pickup:    ` + inv.Pickup + `
Drop:      ` + inv.Drop + `
Type:      ` + string(inv.RideType) + `
Driver:    ` + inv.DriverName + `
Duration:  ` + formatFloat(inv.DurationMin) + ` min
Distance:  ` + formatFloat(inv.DistanceKm) + ` km

FARE BREAKDOWN
-------------------------------------
Base Fare:        ` + formatFloat(inv.Breakdown.Base) + `
Distance:         ` + formatFloat(inv.Breakdown.DistanceCost) + `
Time:             ` + formatFloat(inv.Breakdown.TimeCost) + `
Adjustment:       ` + formatFloat(inv.Adjustment) + `
-------------------------------------
TOTAL:            ` + formatFloat(inv.Total) + `

=====================================
     Thank you for riding with us!
=====================================
`
}

func invoiceID(rideID string) string {
	id := strings.ToUpper(strings.ReplaceAll(rideID, "-", ""))
	if len(id) > 12 {
		id = id[:12]
	}
	return "INV-" + id
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
