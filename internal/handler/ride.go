package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// RideHandler handles HTTP requests for riders' rides.
type RideHandler struct {
	lifecycle      *service.Lifecycle
	rideService    *service.RideService
	receiptService *service.ReceiptService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(lifecycle *service.Lifecycle, rideService *service.RideService, receiptService *service.ReceiptService) *RideHandler {
	return &RideHandler{
		lifecycle:      lifecycle,
		rideService:    rideService,
		receiptService: receiptService,
	}
}

// CreateRideRequest is the HTTP request body for requesting or scheduling a ride.
type CreateRideRequest struct {
	Pickup      string     `json:"pickup"`
	Drop        string     `json:"drop"`
	RideType    string     `json:"rideType"`
	PickupLat   *float64   `json:"pickupLat"`
	PickupLng   *float64   `json:"pickupLng"`
	DropLat     *float64   `json:"dropLat"`
	DropLng     *float64   `json:"dropLng"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

func (r CreateRideRequest) input(rider service.Actor) service.RequestRideInput {
	return service.RequestRideInput{
		Rider:    rider,
		Pickup:   domain.Location{Address: r.Pickup, Lat: r.PickupLat, Lng: r.PickupLng},
		Dropoff:  domain.Location{Address: r.Drop, Lat: r.DropLat, Lng: r.DropLng},
		RideType: r.RideType,
	}
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EstimateFareRequest is the HTTP request body for a fare estimate.
type EstimateFareRequest struct {
	RideType    string  `json:"rideType"`
	DistanceKm  float64 `json:"distanceKm"`
	DurationMin float64 `json:"durationMin"`
}

// RideHistoryResponse is one page of a rider's past rides.
type RideHistoryResponse struct {
	Items []RideResponse `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Pages int            `json:"pages"`
}

// RequestRide handles POST /api/rides/request
func (h *RideHandler) RequestRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.lifecycle.Request(c.Request.Context(), req.input(actor(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, "ride requested", toRideResponse(ride))
}

// ScheduleRide handles POST /api/rides/schedule
func (h *RideHandler) ScheduleRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.ScheduledAt == nil {
		respondBadRequest(c, "scheduledAt is required")
		return
	}

	ride, err := h.lifecycle.Schedule(c.Request.Context(), service.ScheduleRideInput{
		RequestRideInput: req.input(actor(c)),
		ScheduledAt:      *req.ScheduledAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, "ride scheduled", toRideResponse(ride))
}

// CurrentRide handles GET /api/rides/current
func (h *RideHandler) CurrentRide(c *gin.Context) {
	details, err := h.rideService.Current(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if details == nil {
		respondJSON(c, http.StatusOK, "no active ride", nil)
		return
	}
	respondJSON(c, http.StatusOK, "", toRideDetailsResponse(details))
}

// ScheduledRides handles GET /api/rides/scheduled
func (h *RideHandler) ScheduledRides(c *gin.Context) {
	rides, err := h.rideService.Scheduled(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", toRideResponses(rides))
}

// History handles GET /api/rides/history
func (h *RideHandler) History(c *gin.Context) {
	page, okPage := queryInt(c, "page")
	limit, okLimit := queryInt(c, "limit")
	if !okPage || !okLimit {
		respondBadRequest(c, "page and limit must be integers")
		return
	}

	result, err := h.rideService.History(c.Request.Context(), middleware.UserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", RideHistoryResponse{
		Items: toRideResponses(result.Rides),
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
		Pages: result.Pages(),
	})
}

// GetRide handles GET /api/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	details, err := h.rideService.Get(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", toRideDetailsResponse(details))
}

// CancelRide handles POST /api/rides/:id/cancel and POST /api/driver/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.lifecycle.Cancel(c.Request.Context(), service.CancelRideInput{
		RideID: c.Param("id"),
		Actor:  actor(c),
		Reason: req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "ride cancelled", toRideResponse(ride))
}

// EstimateFare handles POST /api/rides/estimate-fare
func (h *RideHandler) EstimateFare(c *gin.Context) {
	var req EstimateFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	quote, err := h.rideService.Estimate(req.RideType, req.DistanceKm, req.DurationMin)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", quote)
}

// Invoice handles GET /api/rides/:id/invoice. ?format=text returns the
// printable invoice.
func (h *RideHandler) Invoice(c *gin.Context) {
	inv, err := h.receiptService.GenerateInvoice(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if strings.EqualFold(c.Query("format"), "text") {
		c.String(http.StatusOK, h.receiptService.FormatInvoice(inv))
		return
	}
	respondJSON(c, http.StatusOK, "", inv)
}

// RewardPoints handles GET /api/rewards/points
func (h *RideHandler) RewardPoints(c *gin.Context) {
	rewards, err := h.rideService.RewardPoints(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", rewards)
}

// Analytics handles GET /api/rides/analytics
func (h *RideHandler) Analytics(c *gin.Context) {
	analytics, err := h.rideService.Analytics(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", analytics)
}
