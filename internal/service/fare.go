package service

import (
	"math"

	"rapidride/internal/domain"
)

// Published estimate bases per ride type.
var estimateBase = map[domain.RideType]float64{
	domain.RideTypeEconomy: 120,
	domain.RideTypeComfort: 180,
	domain.RideTypePremium: 250,
	domain.RideTypeShared:  80,
}

// estimateSpread is the ratio between the upper and lower bound of an estimate.
const estimateSpread = 1.25

// Rate is the cost model for one ride type.
type Rate struct {
	Base      float64 `json:"base"`
	PerKm     float64 `json:"perKm"`
	PerMinute float64 `json:"perMinute"`
}

// Rates is the published cost model per ride type.
var Rates = map[domain.RideType]Rate{
	domain.RideTypeEconomy: {Base: 50, PerKm: 10, PerMinute: 1},
	domain.RideTypeComfort: {Base: 80, PerKm: 15, PerMinute: 1.5},
	domain.RideTypePremium: {Base: 120, PerKm: 22, PerMinute: 2},
	domain.RideTypeShared:  {Base: 40, PerKm: 8, PerMinute: 0.8},
}

// FareEstimate is the price range shown before a ride is requested.
type FareEstimate struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FareBreakdown itemizes a computed fare.
type FareBreakdown struct {
	Base         float64 `json:"base"`
	DistanceCost float64 `json:"distanceCost"`
	TimeCost     float64 `json:"timeCost"`
	Total        float64 `json:"total"`
}

// EstimateFare returns the fare range for a ride type. Distance does not
// affect the estimate. Unknown types are priced as economy.
func EstimateFare(rideType domain.RideType) FareEstimate {
	base, ok := estimateBase[rideType]
	if !ok {
		base = estimateBase[domain.RideTypeEconomy]
	}
	return FareEstimate{
		Min: base,
		Max: math.Round(base * estimateSpread),
	}
}

// CalculateFare prices a trip from its distance and duration. Unknown types
// are priced as economy; negative inputs count as zero.
func CalculateFare(rideType domain.RideType, distanceKm, durationMin float64) FareBreakdown {
	rate, ok := Rates[rideType]
	if !ok {
		rate = Rates[domain.RideTypeEconomy]
	}
	distanceKm = math.Max(distanceKm, 0)
	durationMin = math.Max(durationMin, 0)

	b := FareBreakdown{
		Base:         rate.Base,
		DistanceCost: distanceKm * rate.PerKm,
		TimeCost:     durationMin * rate.PerMinute,
	}
	b.Total = math.Round(b.Base + b.DistanceCost + b.TimeCost)
	return b
}

// finalFare picks the fare recorded on completion: an explicit final fare,
// else the cost model when the trip was measured, else the estimate.
func finalFare(ride *domain.Ride, fare, distanceKm, durationMin float64) float64 {
	switch {
	case fare > 0:
		return fare
	case distanceKm > 0 || durationMin > 0:
		return CalculateFare(ride.Type, distanceKm, durationMin).Total
	default:
		return ride.EstimatedFare
	}
}
