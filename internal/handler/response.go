package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/middleware"
	"rapidride/internal/repository"
	"rapidride/internal/service"
)

const internalErrorMessage = "internal server error"

// bindOptionalJSON binds a JSON body that may be absent. A chunked request
// has no declared length, so an empty body is detected by the decoder.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Unmapped errors are recorded on the context for logging and hidden from
// the client.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	msg := service.PublicMessage(err)
	switch code {
	case http.StatusNotFound:
		msg = "resource not found"
	case http.StatusInternalServerError:
		_ = c.Error(err)
		msg = internalErrorMessage
	}
	c.JSON(code, Envelope{Success: false, Message: msg})
}

// respondBadRequest rejects a malformed request body or query.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Success: false, Message: message})
}

// respondJSON sends a successful response with the given status code.
func respondJSON(c *gin.Context, code int, message string, data any) {
	c.JSON(code, Envelope{Success: true, Message: message, Data: data})
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// actor returns the authenticated caller.
func actor(c *gin.Context) service.Actor {
	return service.Actor{ID: middleware.UserID(c), Role: middleware.Role(c)}
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone,omitempty"`
	Avatar     string            `json:"avatar,omitempty"`
	Role       domain.Role       `json:"role"`
	Rating     float64           `json:"rating"`
	TotalRides int               `json:"totalRides"`
	Online     *bool             `json:"online,omitempty"`
	Vehicle    *domain.Vehicle   `json:"vehicle,omitempty"`
	Documents  *domain.Documents `json:"documents,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func toUserResponse(u *domain.User) UserResponse {
	resp := UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Phone:      u.Phone,
		Avatar:     u.Avatar,
		Role:       u.Role,
		Rating:     u.Rating,
		TotalRides: u.TotalRides,
		CreatedAt:  u.CreatedAt,
	}
	if u.Role.CanActAsDriver() {
		online := u.Online
		vehicle := u.Vehicle
		documents := u.Documents
		resp.Online = &online
		resp.Vehicle = &vehicle
		resp.Documents = &documents
	}
	return resp
}

// RideResponse is the public view of a ride.
type RideResponse struct {
	ID            string                 `json:"id"`
	RiderID       string                 `json:"riderId"`
	DriverID      string                 `json:"driverId,omitempty"`
	Pickup        domain.Location        `json:"pickup"`
	Drop          domain.Location        `json:"drop"`
	RideType      domain.RideType        `json:"rideType"`
	Status        domain.RideStatus      `json:"status"`
	EstimatedFare float64                `json:"estimatedFare"`
	Fare          float64                `json:"fare,omitempty"`
	Distance      float64                `json:"distance,omitempty"`
	Duration      float64                `json:"duration,omitempty"`
	ScheduledAt   *time.Time             `json:"scheduledAt,omitempty"`
	AssignedAt    *time.Time             `json:"assignedAt,omitempty"`
	StartedAt     *time.Time             `json:"startedAt,omitempty"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	CancelledAt   *time.Time             `json:"cancelledAt,omitempty"`
	CancelledBy   domain.CancelledBy     `json:"cancelledBy,omitempty"`
	CancelReason  string                 `json:"cancelReason,omitempty"`
	Driver        *service.DriverSummary `json:"driver,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:            r.ID,
		RiderID:       r.RiderID,
		DriverID:      r.DriverID,
		Pickup:        r.Pickup,
		Drop:          r.Dropoff,
		RideType:      r.Type,
		Status:        r.Status,
		EstimatedFare: r.EstimatedFare,
		Fare:          r.Fare,
		Distance:      r.DistanceKm,
		Duration:      r.DurationMin,
		ScheduledAt:   r.ScheduledAt,
		AssignedAt:    r.AssignedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		CancelledAt:   r.CancelledAt,
		CancelledBy:   r.CancelledBy,
		CancelReason:  r.CancelReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toRideDetailsResponse(d *service.RideDetails) RideResponse {
	resp := toRideResponse(d.Ride)
	resp.Driver = d.Driver
	return resp
}

func toRideResponses(rides []*domain.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	return out
}
