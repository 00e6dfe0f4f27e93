package relay

import (
	"context"
	"encoding/json"
	"errors"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
	"rapidride/internal/service"
)

// Inbound message types.
const (
	msgSubscribeRide   = "subscribe_ride"
	msgUnsubscribeRide = "unsubscribe_ride"
	msgUpdateLocation  = "driver:updateLocation"
)

type rideRef struct {
	RideID string `json:"rideId"`
}

type locationUpdate struct {
	RideID string   `json:"rideId"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

func (h *Hub) handleMessage(c *Client, msg inbound) {
	switch msg.Type {
	case msgSubscribeRide:
		h.subscribe(c, msg.Data)
	case msgUnsubscribeRide:
		h.unsubscribe(c, msg.Data)
	case msgUpdateLocation:
		h.updateLocation(c, msg.Data)
	default:
		h.replyError(c, "unknown message type")
	}
}

// subscribe adds c to the ride's room if its user is the ride's rider or
// assigned driver.
func (h *Hub) subscribe(c *Client, data json.RawMessage) {
	var ref rideRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.RideID == "" {
		h.replyError(c, "rideId is required")
		return
	}

	ride, err := h.lookup(ref.RideID)
	if err != nil {
		h.replyError(c, lookupMessage(err))
		return
	}
	if !ride.IsParticipant(c.UserID) {
		h.logger.Info("relay subscribe denied", "ride_id", ref.RideID, "user_id", c.UserID)
		h.replyError(c, service.PublicMessage(service.ErrNotRideParticipant))
		return
	}

	if !h.join(c, ref.RideID) {
		return
	}
	h.replyFrame(c, "subscribed", map[string]any{"rideId": ref.RideID})
}

func (h *Hub) unsubscribe(c *Client, data json.RawMessage) {
	var ref rideRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.RideID == "" {
		h.replyError(c, "rideId is required")
		return
	}
	h.leave(c, ref.RideID)
	h.replyFrame(c, "unsubscribed", map[string]any{"rideId": ref.RideID})
}

// updateLocation records the assigned driver's position and relays it to
// the ride's room.
func (h *Hub) updateLocation(c *Client, data json.RawMessage) {
	if !c.Role.CanActAsDriver() {
		h.replyError(c, service.PublicMessage(service.ErrRoleNotAllowed))
		return
	}

	var upd locationUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		h.replyError(c, "malformed location update")
		return
	}
	if upd.RideID == "" {
		h.replyError(c, "rideId is required")
		return
	}
	if upd.Lat == nil || upd.Lng == nil {
		h.replyError(c, service.PublicMessage(service.ErrInvalidLocation))
		return
	}

	ride, err := h.lookup(upd.RideID)
	if err != nil {
		h.replyError(c, lookupMessage(err))
		return
	}
	if ride.DriverID != c.UserID || !ride.Status.IsActive() {
		h.replyError(c, service.PublicMessage(service.ErrNotAssignedDriver))
		return
	}

	if h.positions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.positions.Record(ctx, c.UserID, *upd.Lat, *upd.Lng)
		cancel()
		if err != nil {
			h.logger.Warn("relay location update failed", "driver_id", c.UserID, "error", err)
			h.replyError(c, errorMessage(err))
			return
		}
	}

	h.Publish(context.Background(), domain.Event{
		Name:   domain.EventDriverLocationUpdate,
		RideID: ride.ID,
		Data: map[string]any{
			"rideId":   ride.ID,
			"driverId": c.UserID,
			"lat":      *upd.Lat,
			"lng":      *upd.Lng,
		},
	})
}

func (h *Hub) lookup(rideID string) (*domain.Ride, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.rides.GetByID(ctx, rideID)
}

func (h *Hub) replyFrame(c *Client, typ string, data any) {
	frame, err := encodeFrame(typ, data)
	if err != nil {
		h.logger.Error("relay frame encoding failed", "type", typ, "error", err)
		return
	}
	h.reply(c, frame)
}

func (h *Hub) replyError(c *Client, message string) {
	h.replyFrame(c, "error", errorData(message))
}

func errorData(message string) map[string]any {
	return map[string]any{"message": message}
}

func lookupMessage(err error) string {
	if errors.Is(err, repository.ErrNotFound) {
		return "ride not found"
	}
	return "internal error"
}

func errorMessage(err error) string {
	for _, class := range []error{service.ErrValidation, service.ErrForbidden, service.ErrConflict} {
		if errors.Is(err, class) {
			return service.PublicMessage(err)
		}
	}
	return "internal error"
}
