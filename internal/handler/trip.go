package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rapidride/internal/service"
)

// CompleteRideRequest is the HTTP request body for completing a ride.
type CompleteRideRequest struct {
	FinalFare float64 `json:"finalFare"`
	Distance  float64 `json:"distance"`
	Duration  float64 `json:"duration"`
}

// ArriveAtPickup handles POST /api/driver/rides/:id/arrive
func (h *DriverHandler) ArriveAtPickup(c *gin.Context) {
	ride, err := h.lifecycle.Arrive(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "arrived at pickup", toRideResponse(ride))
}

// StartRide handles POST /api/driver/rides/:id/start
func (h *DriverHandler) StartRide(c *gin.Context) {
	ride, err := h.lifecycle.Start(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "ride started", toRideResponse(ride))
}

// CompleteRide handles POST /api/driver/rides/:id/complete
func (h *DriverHandler) CompleteRide(c *gin.Context) {
	var req CompleteRideRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.lifecycle.Complete(c.Request.Context(), service.CompleteRideInput{
		RideID:      c.Param("id"),
		Driver:      actor(c),
		FinalFare:   req.FinalFare,
		DistanceKm:  req.Distance,
		DurationMin: req.Duration,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "ride completed", toRideResponse(ride))
}
