// Package edclient is the client side of the ED notification service: a
// REST client, a realtime socket manager, a notification inbox cache, the
// triage board and the helpers that render them.
package edclient

import (
	"encoding/json"
	"time"
)

// Notification mirrors the server's notification document. CreatedAt is
// kept as sent so that rendering can report unparsable timestamps.
type Notification struct {
	ID                string  `json:"_id"`
	Type              string  `json:"type"`
	Message           string  `json:"message"`
	IsRead            bool    `json:"isRead"`
	RelatedEntityID   *string `json:"relatedEntityId,omitempty"`
	RelatedEntityType *string `json:"relatedEntityType,omitempty"`
	CreatedAt         string  `json:"createdAt"`
}

// Inbox is the body of GET /api/notifications.
type Inbox struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

// EmergencyPatient is the subset of an emergency case the triage board shows.
type EmergencyPatient struct {
	ID             string  `json:"_id"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	EmergencyLevel string  `json:"emergencyLevel"`
	Status         string  `json:"status"`
	Symptoms       string  `json:"symptoms"`
	AssignedDoctor *string `json:"assignedDoctor,omitempty"`
	CreatedAt      string  `json:"createdAt"`
}

func (p EmergencyPatient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// User is the authenticated staff member.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// Event is a realtime message received over the socket.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	EntityType string          `json:"entityType,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Realtime event types.
const (
	EventNotification     = "notification"
	EventEmergencyChanged = "emergency.changed"
	EventServerShutdown   = "server.shutdown"
)

// StatusUpdate is the payload of a patient status notification.
type StatusUpdate struct {
	Message        string `json:"message"`
	PatientName    string `json:"patientName"`
	EmergencyLevel string `json:"emergencyLevel"`
	NewStatus      string `json:"newStatus"`
	PatientID      string `json:"patientId"`
}
