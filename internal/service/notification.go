package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationDriverAssigned NotificationType = "driver_assigned"
	NotificationDriverArriving NotificationType = "driver_arriving"
	NotificationTripStarted    NotificationType = "trip_started"
	NotificationTripCompleted  NotificationType = "trip_completed"
	NotificationRideCancelled  NotificationType = "ride_cancelled"
	NotificationRideReleased   NotificationType = "ride_released"
	NotificationSOS            NotificationType = "sos"
)

// Notification is a message shown in a user's inbox.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"-"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	RideID      string           `json:"rideId,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// defaultInboxSize bounds how many notifications are kept per user.
const defaultInboxSize = 50

// NotificationService keeps a bounded in-process inbox per user.
type NotificationService struct {
	mu      sync.Mutex
	inbox   map[string][]Notification
	maxSize int
	logger  *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *slog.Logger) *NotificationService {
	return &NotificationService{
		inbox:   make(map[string][]Notification),
		maxSize: defaultInboxSize,
		logger:  logger,
	}
}

// Notify appends n to the recipient's inbox, dropping the oldest entry when full.
func (s *NotificationService) Notify(ctx context.Context, n Notification) error {
	if n.RecipientID == "" {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	s.mu.Lock()
	list := append(s.inbox[n.RecipientID], n)
	if len(list) > s.maxSize {
		list = list[len(list)-s.maxSize:]
	}
	s.inbox[n.RecipientID] = list
	s.mu.Unlock()

	s.logger.Debug("notification recorded",
		"type", n.Type,
		"recipient_id", n.RecipientID,
		"ride_id", n.RideID,
	)
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.inbox[userID]
	out := make([]Notification, len(list))
	for i, n := range list {
		out[len(list)-1-i] = n
	}
	return out, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.inbox[userID] {
		if s.inbox[userID][i].ID == notificationID {
			s.inbox[userID][i].Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

// transitionNotification builds the notification sent to the counterpart of
// the user who triggered a transition.
func transitionNotification(t domain.Transition, ride *domain.Ride) (Notification, bool) {
	n := Notification{RideID: ride.ID, RecipientID: ride.RiderID}
	switch t {
	case domain.TransitionRelease:
		n.Type = NotificationRideReleased
		n.Title = "Scheduled ride started"
		n.Message = fmt.Sprintf("Looking for a driver for your pickup at %s", ride.Pickup.Address)
	case domain.TransitionAccept:
		n.Type = NotificationDriverAssigned
		n.Title = "Driver assigned"
		n.Message = "A driver accepted your ride"
	case domain.TransitionArrive:
		n.Type = NotificationDriverArriving
		n.Title = "Driver arriving"
		n.Message = fmt.Sprintf("Your driver is arriving at %s", ride.Pickup.Address)
	case domain.TransitionStart:
		n.Type = NotificationTripStarted
		n.Title = "Trip started"
		n.Message = fmt.Sprintf("Heading to %s", ride.Dropoff.Address)
	case domain.TransitionComplete:
		n.Type = NotificationTripCompleted
		n.Title = "Trip completed"
		n.Message = fmt.Sprintf("Fare: %.2f", ride.Fare)
	case domain.TransitionCancel:
		n.Type = NotificationRideCancelled
		n.Title = "Ride cancelled"
		n.Message = "The ride was cancelled"
		if ride.CancelledBy == domain.CancelledByRider {
			n.RecipientID = ride.DriverID
		}
		if ride.CancelReason != "" {
			n.Message = "The ride was cancelled: " + ride.CancelReason
		}
	default:
		return Notification{}, false
	}
	return n, n.RecipientID != ""
}
