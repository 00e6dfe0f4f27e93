package service

import (
	"errors"
	"testing"

	"rapidride/internal/domain"
)

func TestEstimateFare(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		rideType domain.RideType
		min, max float64
	}{
		{domain.RideTypeEconomy, 120, 150},
		{domain.RideTypeComfort, 180, 225},
		{domain.RideTypePremium, 250, 313},
		{domain.RideTypeShared, 80, 100},
		{"unknown", 120, 150},
	}

	for _, tc := range testCases {
		t.Run(string(tc.rideType), func(t *testing.T) {
			got := EstimateFare(tc.rideType)
			if got.Min != tc.min || got.Max != tc.max {
				t.Errorf("expected %v-%v, got %v-%v", tc.min, tc.max, got.Min, got.Max)
			}
		})
	}
}

func TestCalculateFare(t *testing.T) {
	t.Parallel()

	b := CalculateFare(domain.RideTypeComfort, 12, 30)
	if b.Base != 80 || b.DistanceCost != 180 || b.TimeCost != 45 {
		t.Errorf("unexpected breakdown: %+v", b)
	}
	if b.Total != 305 {
		t.Errorf("expected total 305, got %v", b.Total)
	}

	if got := CalculateFare(domain.RideTypeEconomy, -5, -1); got.Total != 50 {
		t.Errorf("negative inputs should count as zero, got %+v", got)
	}
}

func TestFinalFare(t *testing.T) {
	t.Parallel()

	ride := &domain.Ride{Type: domain.RideTypeEconomy, EstimatedFare: 150}

	if got := finalFare(ride, 99, 10, 10); got != 99 {
		t.Errorf("explicit fare should win, got %v", got)
	}
	if got := finalFare(ride, 0, 10, 20); got != 170 {
		t.Errorf("measured trip should use the cost model, got %v", got)
	}
	if got := finalFare(ride, 0, 0, 0); got != 150 {
		t.Errorf("unmeasured trip should use the estimate, got %v", got)
	}
}

func TestRideService_Estimate(t *testing.T) {
	t.Parallel()

	s := NewRideService(RideServiceDeps{Logger: discardLogger()})

	quote, err := s.Estimate("Premium", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.RideType != domain.RideTypePremium || quote.Min != 250 || quote.Max != 313 {
		t.Errorf("unexpected quote: %+v", quote)
	}
	if quote.Estimate != "₹250 - ₹313" {
		t.Errorf("unexpected estimate text %q", quote.Estimate)
	}
	if quote.Breakdown != nil {
		t.Error("expected no breakdown without distance or duration")
	}

	// Distance does not move the range, only the breakdown.
	measured, err := s.Estimate("economy", 40, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if measured.Min != 120 || measured.Max != 150 {
		t.Errorf("expected 120-150, got %v-%v", measured.Min, measured.Max)
	}
	if measured.Breakdown == nil || measured.Breakdown.Total != 510 {
		t.Errorf("expected breakdown total 510, got %+v", measured.Breakdown)
	}

	if _, err := s.Estimate("economy", -1, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
