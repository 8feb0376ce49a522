package domain

import "time"

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationOffer     NotificationType = "OFFER"
	NotificationAccepted  NotificationType = "ACCEPTED"
	NotificationCompleted NotificationType = "COMPLETED"
	NotificationDeclined  NotificationType = "DECLINED"
	NotificationGuardrail NotificationType = "GUARDRAIL"
	NotificationFailure   NotificationType = "FAILURE"
)

// Notification is the status payload handed to the delivery collaborator.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	TripID    string           `json:"trip_id,omitempty"`
	Title     string           `json:"title"`
	Lines     []string         `json:"lines"`
	Verdict   Verdict          `json:"verdict,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
