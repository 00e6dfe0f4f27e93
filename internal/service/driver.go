package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// commissionRate is the platform's share of each completed fare.
const commissionRate = 0.20

// DriverServiceDeps holds the collaborators of a DriverService.
type DriverServiceDeps struct {
	Users        repository.UserRepository
	Rides        repository.RideRepository
	Positions    *PositionRecorder
	Publisher    EventPublisher
	Incentives   IncentiveProvider
	Logger       *slog.Logger
	StoreTimeout time.Duration
}

// DriverService handles driver operations outside the ride lifecycle.
type DriverService struct {
	users      repository.UserRepository
	rides      repository.RideRepository
	positions  *PositionRecorder
	publisher  EventPublisher
	incentives IncentiveProvider
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewDriverService creates a new DriverService.
func NewDriverService(deps DriverServiceDeps) *DriverService {
	s := &DriverService{
		users:      deps.Users,
		rides:      deps.Rides,
		positions:  deps.Positions,
		publisher:  deps.Publisher,
		incentives: deps.Incentives,
		logger:     deps.Logger,
		timeout:    deps.StoreTimeout,
		now:        time.Now,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.incentives == nil {
		s.incentives = RideTargetIncentives{Targets: DefaultRideTargets}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultStoreTimeout
	}
	if s.positions == nil {
		s.positions = NewPositionRecorder(s.users, nil, s.logger, s.timeout)
	}
	return s
}

// SetStatus marks the driver online or offline. Going offline drops the
// driver from the real-time location store.
func (s *DriverService) SetStatus(ctx context.Context, driverID string, online bool) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.users.SetOnline(storeCtx, driverID, online); err != nil {
		return err
	}
	if !online {
		s.positions.Forget(ctx, driverID)
	}

	s.logger.Info("driver status changed", "driver_id", driverID, "online", online)
	return nil
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Lat      float64
	Lng      float64
}

// UpdateLocation records the driver's position and relays it to the room of
// the ride they are currently serving, if any.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if err := s.positions.Record(ctx, req.DriverID, req.Lat, req.Lng); err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.rides.GetCurrentByDriver(storeCtx, req.DriverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	s.publisher.Publish(ctx, domain.Event{
		Name:   domain.EventDriverLocationUpdate,
		RideID: ride.ID,
		Data: map[string]any{
			"rideId":   ride.ID,
			"driverId": req.DriverID,
			"lat":      req.Lat,
			"lng":      req.Lng,
		},
	})
	return nil
}

// Rides lists the driver's rides, optionally filtered by status ("all" or
// empty for every status).
func (s *DriverService) Rides(ctx context.Context, driverID, status string, page, limit int) (*RidePage, error) {
	page, limit = normalizePage(page, limit)

	filter := repository.RideFilter{Page: repository.Page{Limit: limit, Offset: (page - 1) * limit}}
	if status != "" && status != "all" {
		st, ok := domain.ParseRideStatus(status)
		if !ok {
			return nil, ErrInvalidStatusFilter
		}
		filter.Statuses = []domain.RideStatus{st}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rides, total, err := s.rides.ListByDriver(storeCtx, driverID, filter)
	if err != nil {
		return nil, err
	}
	return &RidePage{Rides: rides, Total: total, Page: page, Limit: limit}, nil
}

// Available lists rides waiting for a driver, oldest first.
func (s *DriverService) Available(ctx context.Context, limit int) ([]*domain.Ride, error) {
	_, limit = normalizePage(1, limit)

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.rides.ListSearching(storeCtx, limit)
}

// EarningsItem is one completed ride in an earnings report.
type EarningsItem struct {
	RideID      string    `json:"rideId"`
	Date        time.Time `json:"date"`
	Fare        float64   `json:"fare"`
	DistanceKm  float64   `json:"distance"`
	DurationMin float64   `json:"duration"`
}

// Earnings is a driver's income over a period.
type Earnings struct {
	Period         string         `json:"period"`
	TotalEarnings  float64        `json:"totalEarnings"`
	Commission     float64        `json:"commission"`
	NetEarnings    float64        `json:"netEarnings"`
	TotalRides     int            `json:"totalRides"`
	AveragePerRide float64        `json:"averagePerRide"`
	Breakdown      []EarningsItem `json:"breakdown"`
}

// Earnings totals the driver's completed fares for period (today, week,
// month or all) and deducts the platform commission.
func (s *DriverService) Earnings(ctx context.Context, driverID, period string) (*Earnings, error) {
	if period == "" {
		period = "today"
	}
	since, err := periodStart(s.now(), period)
	if err != nil {
		return nil, err
	}

	rides, err := s.completedSince(ctx, driverID, since)
	if err != nil {
		return nil, err
	}

	out := &Earnings{Period: period, TotalRides: len(rides), Breakdown: make([]EarningsItem, 0, len(rides))}
	for _, r := range rides {
		out.TotalEarnings += r.Fare
		out.Breakdown = append(out.Breakdown, EarningsItem{
			RideID:      r.ID,
			Date:        *r.CompletedAt,
			Fare:        r.Fare,
			DistanceKm:  r.DistanceKm,
			DurationMin: r.DurationMin,
		})
	}
	out.Commission = round2(out.TotalEarnings * commissionRate)
	out.NetEarnings = round2(out.TotalEarnings - out.Commission)
	out.TotalEarnings = round2(out.TotalEarnings)
	if out.TotalRides > 0 {
		out.AveragePerRide = round2(out.TotalEarnings / float64(out.TotalRides))
	}
	return out, nil
}

// AnalyticsSummary aggregates a driver's completed rides.
type AnalyticsSummary struct {
	TotalRides    int     `json:"totalRides"`
	TotalEarnings float64 `json:"totalEarnings"`
	TotalDistance float64 `json:"totalDistance"`
	Rating        float64 `json:"rating"`
}

// AnalyticsChart counts completed rides per bucket.
type AnalyticsChart struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// DriverAnalytics is the driver dashboard summary.
type DriverAnalytics struct {
	Summary AnalyticsSummary `json:"summary"`
	Chart   AnalyticsChart   `json:"chart"`
}

// Analytics summarizes completed rides for period (day, week or month),
// bucketed per hour for day and per date otherwise.
func (s *DriverService) Analytics(ctx context.Context, driverID, period string) (*DriverAnalytics, error) {
	if period == "" {
		period = "week"
	}
	bucket := "2006-01-02"
	startPeriod := period
	switch period {
	case "day":
		bucket = "2006-01-02 15:00"
		startPeriod = "today"
	case "week", "month":
	default:
		return nil, ErrInvalidPeriod
	}
	since, err := periodStart(s.now(), startPeriod)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	driver, err := s.users.GetByID(storeCtx, driverID)
	if err != nil {
		return nil, err
	}

	rides, err := s.completedSince(ctx, driverID, since)
	if err != nil {
		return nil, err
	}

	out := &DriverAnalytics{Summary: AnalyticsSummary{TotalRides: len(rides), Rating: driver.Rating}}
	counts := map[string]int{}
	for _, r := range rides {
		out.Summary.TotalEarnings += r.Fare
		out.Summary.TotalDistance += r.DistanceKm
		counts[r.CompletedAt.UTC().Format(bucket)]++
	}
	out.Summary.TotalEarnings = round2(out.Summary.TotalEarnings)
	out.Summary.TotalDistance = round2(out.Summary.TotalDistance)

	out.Chart.Labels = make([]string, 0, len(counts))
	for label := range counts {
		out.Chart.Labels = append(out.Chart.Labels, label)
	}
	sort.Strings(out.Chart.Labels)
	out.Chart.Data = make([]int, len(out.Chart.Labels))
	for i, label := range out.Chart.Labels {
		out.Chart.Data[i] = counts[label]
	}
	return out, nil
}

// Incentives reports the driver's incentive programmes.
func (s *DriverService) Incentives(ctx context.Context, driverID string) (*Incentives, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	driver, err := s.users.GetByID(storeCtx, driverID)
	if err != nil {
		return nil, err
	}
	return s.incentives.Incentives(ctx, driver)
}

func (s *DriverService) completedSince(ctx context.Context, driverID string, since time.Time) ([]*domain.Ride, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := repository.RideFilter{Statuses: []domain.RideStatus{domain.RideStatusCompleted}}
	if !since.IsZero() {
		filter.CompletedSince = &since
	}
	rides, _, err := s.rides.ListByDriver(storeCtx, driverID, filter)
	return rides, err
}

// periodStart returns the start of a reporting period ending at now. The
// zero time means no lower bound.
func periodStart(now time.Time, period string) (time.Time, error) {
	switch period {
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "all":
		return time.Time{}, nil
	default:
		return time.Time{}, ErrInvalidPeriod
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
