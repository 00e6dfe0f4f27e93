package service

import (
	"context"
	"fmt"

	"rapidride/internal/domain"
)

// Incentive is one bonus programme and the driver's progress in it.
type Incentive struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Progress    int     `json:"progress"`
	Target      int     `json:"target"`
	Reward      float64 `json:"reward"`
}

// Incentives groups a driver's active and completed programmes.
type Incentives struct {
	Active      []Incentive `json:"active"`
	Completed   []Incentive `json:"completed"`
	TotalEarned float64     `json:"totalEarned"`
}

// RideTarget pays Reward once a driver has completed Rides rides.
type RideTarget struct {
	Rides  int
	Reward float64
}

// DefaultRideTargets are the lifetime ride milestones.
var DefaultRideTargets = []RideTarget{
	{Rides: 50, Reward: 2000},
	{Rides: 100, Reward: 5000},
	{Rides: 250, Reward: 15000},
}

// RideTargetIncentives derives incentives from a driver's completed ride count.
type RideTargetIncentives struct {
	Targets []RideTarget
}

// Incentives reports progress against each ride target.
func (p RideTargetIncentives) Incentives(ctx context.Context, driver *domain.User) (*Incentives, error) {
	out := &Incentives{Active: []Incentive{}, Completed: []Incentive{}}
	for _, t := range p.Targets {
		inc := Incentive{
			ID:          fmt.Sprintf("rides-%d", t.Rides),
			Title:       fmt.Sprintf("Complete %d rides", t.Rides),
			Description: fmt.Sprintf("Earn %.0f bonus", t.Reward),
			Progress:    min(driver.TotalRides, t.Rides),
			Target:      t.Rides,
			Reward:      t.Reward,
		}
		if driver.TotalRides >= t.Rides {
			out.Completed = append(out.Completed, inc)
			out.TotalEarned += t.Reward
			continue
		}
		out.Active = append(out.Active, inc)
	}
	return out, nil
}
