package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// SupportHandler handles notifications, support tickets and emergency alerts.
type SupportHandler struct {
	rideService *service.RideService
	notifier    service.Notifier
}

// NewSupportHandler creates a new SupportHandler.
func NewSupportHandler(rideService *service.RideService, notifier service.Notifier) *SupportHandler {
	return &SupportHandler{
		rideService: rideService,
		notifier:    notifier,
	}
}

// SupportRequest is the HTTP request body for a support ticket.
type SupportRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// SOSRequest is the HTTP request body for an emergency alert.
type SOSRequest struct {
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Reason string   `json:"reason"`
}

// Notifications handles GET /api/notifications
func (h *SupportHandler) Notifications(c *gin.Context) {
	list, err := h.notifier.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []service.Notification{}
	}
	respondJSON(c, http.StatusOK, "", list)
}

// MarkNotificationRead handles PUT /api/notifications/:id/read
func (h *SupportHandler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifier.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "notification marked as read", nil)
}

// SubmitSupportRequest handles POST /api/support/request
func (h *SupportHandler) SubmitSupportRequest(c *gin.Context) {
	var req SupportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ticketID, err := h.rideService.SubmitSupportRequest(c.Request.Context(), actor(c), service.SupportInput{
		Subject: req.Subject,
		Message: req.Message,
		Type:    req.Type,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, "support request submitted", gin.H{"ticketId": ticketID})
}

// SOS handles POST /api/emergency/sos
func (h *SupportHandler) SOS(c *gin.Context) {
	var req SOSRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	alert, err := h.rideService.SOS(c.Request.Context(), actor(c), service.SOSInput{
		Lat:    req.Lat,
		Lng:    req.Lng,
		Reason: req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, "emergency alert sent", alert)
}
