package ambulance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is where an ambulance stands in the fleet.
type Status string

const (
	StatusOffDuty     Status = "off_duty"
	StatusAvailable   Status = "available"
	StatusOnMission   Status = "on_mission"
	StatusMaintenance Status = "maintenance"
)

// ValidStatus reports whether s can be set by staff. on_mission is only
// entered through dispatch.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusOffDuty, StatusAvailable, StatusMaintenance:
		return true
	}
	return false
}

// RequestStatus tracks a call for an ambulance.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestAccepted   RequestStatus = "accepted"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

func (s RequestStatus) Closed() bool {
	return s == RequestCompleted || s == RequestCancelled
}

func validRequestStatus(s string) bool {
	switch RequestStatus(s) {
	case RequestPending, RequestAccepted, RequestInProgress, RequestCompleted, RequestCancelled:
		return true
	}
	return false
}

// Emergency types a caller can report.
const (
	TypeCritical  = "critical"
	TypeUrgent    = "urgent"
	TypeNonUrgent = "non_urgent"
)

func validEmergencyType(s string) bool {
	return s == TypeCritical || s == TypeUrgent || s == TypeNonUrgent
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// String is the "lat,lng" form used as an ambulance destination.
func (l Location) String() string {
	return fmt.Sprintf("%g,%g", l.Latitude, l.Longitude)
}

// Ambulance maps to the ambulances table plus its crew.
type Ambulance struct {
	ID          uuid.UUID   `json:"_id"`
	Name        string      `json:"name"`
	Status      Status      `json:"status"`
	Location    *Location   `json:"location,omitempty"`
	Destination *string     `json:"destination,omitempty"`
	Team        []uuid.UUID `json:"team"`
	LastUpdated time.Time   `json:"lastUpdated"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Request maps to the ambulance_requests table.
type Request struct {
	ID            uuid.UUID     `json:"_id"`
	PatientName   string        `json:"patientName"`
	PatientPhone  string        `json:"patientPhone"`
	Location      Location      `json:"location"`
	AmbulanceID   *uuid.UUID    `json:"ambulance,omitempty"`
	Status        RequestStatus `json:"status"`
	EmergencyType string        `json:"emergencyType"`
	Description   *string       `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
