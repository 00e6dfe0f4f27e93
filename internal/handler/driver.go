package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	lifecycle     *service.Lifecycle
	driverService *service.DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(lifecycle *service.Lifecycle, driverService *service.DriverService) *DriverHandler {
	return &DriverHandler{
		lifecycle:     lifecycle,
		driverService: driverService,
	}
}

// SetStatusRequest is the HTTP request body for going online or offline.
type SetStatusRequest struct {
	Online *bool `json:"online"`
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// DriverRidesResponse is one page of a driver's rides.
type DriverRidesResponse struct {
	Rides []RideResponse `json:"rides"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

// SetStatus handles POST /api/driver/status
func (h *DriverHandler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		respondBadRequest(c, "online is required")
		return
	}

	if err := h.driverService.SetStatus(c.Request.Context(), middleware.UserID(c), *req.Online); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "status updated", gin.H{"online": *req.Online})
}

// UpdateLocation handles POST /api/driver/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		respondBadRequest(c, "latitude and longitude are required")
		return
	}

	err := h.driverService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: middleware.UserID(c),
		Lat:      *req.Latitude,
		Lng:      *req.Longitude,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "location updated", nil)
}

// Rides handles GET /api/driver/rides
func (h *DriverHandler) Rides(c *gin.Context) {
	page, okPage := queryInt(c, "page")
	limit, okLimit := queryInt(c, "limit")
	if !okPage || !okLimit {
		respondBadRequest(c, "page and limit must be integers")
		return
	}

	result, err := h.driverService.Rides(c.Request.Context(), middleware.UserID(c), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", DriverRidesResponse{
		Rides: toRideResponses(result.Rides),
		Total: result.Total,
		Page:  result.Page,
		Pages: result.Pages(),
	})
}

// AvailableRides handles GET /api/driver/rides/available
func (h *DriverHandler) AvailableRides(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		respondBadRequest(c, "limit must be an integer")
		return
	}

	rides, err := h.driverService.Available(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", toRideResponses(rides))
}

// AcceptRide handles POST /api/driver/rides/:id/accept
func (h *DriverHandler) AcceptRide(c *gin.Context) {
	ride, err := h.lifecycle.Accept(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "ride accepted", toRideResponse(ride))
}

// Earnings handles GET /api/driver/earnings
func (h *DriverHandler) Earnings(c *gin.Context) {
	earnings, err := h.driverService.Earnings(c.Request.Context(), middleware.UserID(c), c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", earnings)
}

// Analytics handles GET /api/driver/analytics
func (h *DriverHandler) Analytics(c *gin.Context) {
	analytics, err := h.driverService.Analytics(c.Request.Context(), middleware.UserID(c), c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", analytics)
}

// Incentives handles GET /api/driver/incentives
func (h *DriverHandler) Incentives(c *gin.Context) {
	incentives, err := h.driverService.Incentives(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "", incentives)
}
