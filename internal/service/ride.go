package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// pointsPerRide is the reward for each completed ride.
const pointsPerRide = 10

// Default and maximum page sizes for listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// RideService serves the rider-facing queries around rides.
type RideService struct {
	rides     repository.RideRepository
	users     repository.UserRepository
	cache     RideCache
	publisher EventPublisher
	notifier  Notifier
	coupons   CouponProvider
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// RideServiceDeps holds the collaborators of a RideService.
type RideServiceDeps struct {
	Rides        repository.RideRepository
	Users        repository.UserRepository
	Cache        RideCache
	Publisher    EventPublisher
	Notifier     Notifier
	Coupons      CouponProvider
	Logger       *slog.Logger
	StoreTimeout time.Duration
}

// NewRideService creates a new RideService.
func NewRideService(deps RideServiceDeps) *RideService {
	s := &RideService{
		rides:     deps.Rides,
		users:     deps.Users,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		coupons:   deps.Coupons,
		logger:    deps.Logger,
		timeout:   deps.StoreTimeout,
		now:       time.Now,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.coupons == nil {
		s.coupons = NoCoupons{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultStoreTimeout
	}
	return s
}

// DriverSummary is the public view of a ride's driver.
type DriverSummary struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Phone   string         `json:"phone,omitempty"`
	Rating  float64        `json:"rating"`
	Vehicle domain.Vehicle `json:"vehicle"`
}

// RideDetails is a ride with its driver, when one is assigned.
type RideDetails struct {
	Ride   *domain.Ride
	Driver *DriverSummary
}

// RidePage is one page of a ride listing.
type RidePage struct {
	Rides []*domain.Ride
	Total int
	Page  int
	Limit int
}

// Pages returns the number of pages in the listing.
func (p *RidePage) Pages() int {
	if p.Limit <= 0 {
		return 1
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// Current returns the rider's current ride, or nil if there is none.
func (s *RideService) Current(ctx context.Context, riderID string) (*RideDetails, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.rides.GetCurrentByRider(storeCtx, riderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.details(storeCtx, ride)
}

// Get returns a ride visible to the caller: its rider or assigned driver.
func (s *RideService) Get(ctx context.Context, rideID string, actor Actor) (*RideDetails, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ride, err := s.cachedRide(storeCtx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(actor.ID) {
		return nil, ErrNotRideParticipant
	}
	return s.details(storeCtx, ride)
}

// Scheduled lists the rider's upcoming scheduled rides, soonest first.
func (s *RideService) Scheduled(ctx context.Context, riderID string) ([]*domain.Ride, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rides, _, err := s.rides.ListByRider(storeCtx, riderID, repository.RideFilter{
		Statuses: []domain.RideStatus{domain.RideStatusScheduled},
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].ScheduledAt.Before(*rides[j].ScheduledAt) })
	return rides, nil
}

// History lists the rider's finished rides, newest first.
func (s *RideService) History(ctx context.Context, riderID string, page, limit int) (*RidePage, error) {
	page, limit = normalizePage(page, limit)

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rides, total, err := s.rides.ListByRider(storeCtx, riderID, repository.RideFilter{
		Statuses: []domain.RideStatus{domain.RideStatusCompleted, domain.RideStatusCancelled},
		Page:     repository.Page{Limit: limit, Offset: (page - 1) * limit},
	})
	if err != nil {
		return nil, err
	}
	return &RidePage{Rides: rides, Total: total, Page: page, Limit: limit}, nil
}

// FareQuote is the response to a fare estimate request.
type FareQuote struct {
	RideType  domain.RideType `json:"rideType"`
	Min       float64         `json:"min"`
	Max       float64         `json:"max"`
	Estimate  string          `json:"estimate"`
	Breakdown *FareBreakdown  `json:"breakdown,omitempty"`
}

// Estimate quotes a fare range and, when the trip is measured, an itemized
// fare from the cost model.
func (s *RideService) Estimate(rideType string, distanceKm, durationMin float64) (*FareQuote, error) {
	if distanceKm < 0 || durationMin < 0 {
		return nil, ErrInvalidTripMeasurements
	}
	t, ok := domain.ParseRideType(strings.ToLower(strings.TrimSpace(rideType)))
	if !ok {
		t = domain.RideTypeEconomy
	}
	est := EstimateFare(t)
	quote := &FareQuote{
		RideType: t,
		Min:      est.Min,
		Max:      est.Max,
		Estimate: fmt.Sprintf("₹%.0f - ₹%.0f", est.Min, est.Max),
	}
	if distanceKm > 0 || durationMin > 0 {
		b := CalculateFare(t, distanceKm, durationMin)
		quote.Breakdown = &b
	}
	return quote, nil
}

// Rewards is a rider's loyalty balance.
type Rewards struct {
	Points  int      `json:"points"`
	Coupons []Coupon `json:"coupons"`
}

// RewardPoints awards a fixed number of points per completed ride.
func (s *RideService) RewardPoints(ctx context.Context, riderID string) (*Rewards, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, completed, err := s.rides.ListByRider(storeCtx, riderID, repository.RideFilter{
		Statuses: []domain.RideStatus{domain.RideStatusCompleted},
		Page:     repository.Page{Limit: 1},
	})
	if err != nil {
		return nil, err
	}
	coupons, err := s.coupons.Coupons(ctx, riderID)
	if err != nil {
		return nil, err
	}
	return &Rewards{Points: completed * pointsPerRide, Coupons: coupons}, nil
}

// RideAnalytics counts a rider's completed rides per weekday over the last week.
type RideAnalytics struct {
	TotalRides int      `json:"totalRides"`
	Labels     []string `json:"labels"`
	Rides      []int    `json:"rides"`
}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Analytics summarizes the rider's completed rides over the last seven days.
func (s *RideService) Analytics(ctx context.Context, riderID string) (*RideAnalytics, error) {
	since := s.now().AddDate(0, 0, -7)

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rides, _, err := s.rides.ListByRider(storeCtx, riderID, repository.RideFilter{
		Statuses:       []domain.RideStatus{domain.RideStatusCompleted},
		CompletedSince: &since,
	})
	if err != nil {
		return nil, err
	}

	out := &RideAnalytics{TotalRides: len(rides), Labels: weekdayLabels, Rides: make([]int, 7)}
	for _, r := range rides {
		// Monday first.
		out.Rides[(int(r.CompletedAt.Weekday())+6)%7]++
	}
	return out, nil
}

// SOSInput contains the parameters of an emergency alert.
type SOSInput struct {
	Lat    *float64
	Lng    *float64
	Reason string
}

// SOSAlert is the acknowledgement of an emergency alert.
type SOSAlert struct {
	AlertID string `json:"alertId"`
	RideID  string `json:"rideId,omitempty"`
}

// SOS publishes an emergency alert to the caller's current ride, if any.
func (s *RideService) SOS(ctx context.Context, actor Actor, in SOSInput) (*SOSAlert, error) {
	if (in.Lat == nil) != (in.Lng == nil) || (in.Lat != nil && !validCoordinates(*in.Lat, *in.Lng)) {
		return nil, ErrInvalidLocation
	}

	alert := &SOSAlert{AlertID: "SOS-" + uuid.New().String()}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var ride *domain.Ride
	var err error
	if actor.Role.CanActAsDriver() {
		ride, err = s.rides.GetCurrentByDriver(storeCtx, actor.ID)
	} else {
		ride, err = s.rides.GetCurrentByRider(storeCtx, actor.ID)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	s.logger.Warn("sos alert",
		"alert_id", alert.AlertID,
		"user_id", actor.ID,
		"role", actor.Role,
		"reason", in.Reason,
		"has_ride", ride != nil,
	)

	if ride == nil {
		return alert, nil
	}
	alert.RideID = ride.ID

	e := domain.NewRideEvent(domain.EventSOSAlert, ride).
		With("alertId", alert.AlertID).
		With("from", actor.ID).
		With("reason", in.Reason)
	if in.Lat != nil {
		e = e.With("lat", *in.Lat).With("lng", *in.Lng)
	}
	s.publisher.Publish(ctx, e)

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, Notification{
			Type:        NotificationSOS,
			RecipientID: ride.Counterpart(actor.ID),
			Title:       "Emergency alert",
			Message:     "An emergency alert was raised on your ride",
			RideID:      ride.ID,
		})
		if err != nil {
			s.logger.Warn("sos notification failed", "ride_id", ride.ID, "alert_id", alert.AlertID, "error", err)
		}
	}
	return alert, nil
}

// SupportInput contains a support request.
type SupportInput struct {
	Subject string
	Message string
	Type    string
}

// SubmitSupportRequest records a support request and returns its ticket id.
func (s *RideService) SubmitSupportRequest(ctx context.Context, actor Actor, in SupportInput) (string, error) {
	subject := strings.TrimSpace(in.Subject)
	message := strings.TrimSpace(in.Message)
	if subject == "" || message == "" {
		return "", ErrMissingSupportFields
	}
	ticketID := "TICKET-" + uuid.New().String()
	s.logger.Info("support request",
		"ticket_id", ticketID,
		"user_id", actor.ID,
		"role", actor.Role,
		"type", in.Type,
		"subject", subject,
	)
	return ticketID, nil
}

func (s *RideService) cachedRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if s.cache != nil {
		ride, err := s.cache.GetRide(ctx, rideID)
		if err != nil {
			s.logger.Warn("ride cache read failed", "ride_id", rideID, "error", err)
		}
		if ride != nil {
			return ride, nil
		}
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	// Only terminal rides are cached; anything else may still change.
	if s.cache != nil && ride.Status.IsTerminal() {
		if err := s.cache.SetRide(ctx, ride); err != nil {
			s.logger.Warn("ride cache write failed", "ride_id", rideID, "error", err)
		}
	}
	return ride, nil
}

func (s *RideService) details(ctx context.Context, ride *domain.Ride) (*RideDetails, error) {
	d := &RideDetails{Ride: ride}
	if ride.DriverID == "" || s.users == nil {
		return d, nil
	}
	driver, err := s.users.GetByID(ctx, ride.DriverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return d, nil
		}
		return nil, err
	}
	d.Driver = &DriverSummary{
		ID:      driver.ID,
		Name:    driver.Name,
		Phone:   driver.Phone,
		Rating:  driver.Rating,
		Vehicle: driver.Vehicle,
	}
	return d, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
