// Package alerts evaluates delay subscriptions against live trip updates and
// records notification events.
package alerts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPersistence marks a failed sweep commit; none of the sweep's writes applied.
	ErrPersistence = errors.New("alert persistence failed")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// DefaultCooldown is the minimum time between two notifications for one subscription.
const DefaultCooldown = 15 * time.Minute

// Subscription asks to be notified when arrivals at StopID, optionally only
// those of RouteID, run more than ThresholdMinutes late.
type Subscription struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	StopID           string     `json:"stop_id"`
	RouteID          *string    `json:"route_id"`
	ThresholdMinutes float64    `json:"threshold_minutes"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at"`
}

// Ready reports whether the subscription is outside its cooldown at now.
func (s Subscription) Ready(now time.Time, cooldown time.Duration) bool {
	if s.LastTriggeredAt == nil {
		return true
	}
	return now.Sub(*s.LastTriggeredAt) >= cooldown
}

// Accepts reports whether a delay entry matches the subscription's stop and
// route filter.
func (s Subscription) Accepts(routeID, stopID string) bool {
	if stopID != s.StopID {
		return false
	}
	return s.RouteID == nil || *s.RouteID == routeID
}

// NewSubscription is the input to CreateSubscription.
type NewSubscription struct {
	UserID           string  `json:"user_id" validate:"required,max=128"`
	StopID           string  `json:"stop_id" validate:"required,max=128"`
	RouteID          *string `json:"route_id" validate:"omitempty,min=1,max=128"`
	ThresholdMinutes float64 `json:"threshold_minutes" validate:"gte=0,lte=240"`
}

// NotificationEvent is created by a sweep and afterwards only has its read
// flag changed.
type NotificationEvent struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

// Trigger is one subscription firing within a sweep: the notification to
// insert and the new last-triggered time, written together or not at all.
type Trigger struct {
	SubscriptionID string
	TriggeredAt    time.Time
	Notification   NotificationEvent
}

// FormatMessage renders the notification text. Minutes are truncated.
func FormatMessage(routeID, stopID string, delayMinutes float64) string {
	return fmt.Sprintf("Delay Alert: Route %s at Stop %s is %d mins late.", routeID, stopID, int(delayMinutes))
}
