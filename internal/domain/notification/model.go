package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type tags the kind of event a notification reports.
type Type string

const (
	TypeDoctorAssignment        Type = "doctor_assignment"
	TypePatientStatusUpdate     Type = "patient_status_update"
	TypeNewEmergencyCase        Type = "new_emergency_case"
	TypeUnassignedEmergencyCase Type = "unassigned_emergency_case"
	TypePatientAssignedToDoctor Type = "patient_assigned_to_doctor"
	TypeAmbulanceAlert          Type = "ambulance_alert"
	TypeAvailabilityUpdate      Type = "availability_update"
	TypeAdminLog                Type = "admin_log"
	TypePatientFileCreated      Type = "patient_file_created"
	TypePatientFileUpdated      Type = "patient_file_updated"
	TypeGeneric                 Type = "generic"
)

var knownTypes = map[Type]struct{}{
	TypeDoctorAssignment:        {},
	TypePatientStatusUpdate:     {},
	TypeNewEmergencyCase:        {},
	TypeUnassignedEmergencyCase: {},
	TypePatientAssignedToDoctor: {},
	TypeAmbulanceAlert:          {},
	TypeAvailabilityUpdate:      {},
	TypeAdminLog:                {},
	TypePatientFileCreated:      {},
	TypePatientFileUpdated:      {},
	TypeGeneric:                 {},
}

// ParseType maps s to a known Type, falling back to TypeGeneric.
func ParseType(s string) Type {
	if _, ok := knownTypes[Type(s)]; ok {
		return Type(s)
	}
	return TypeGeneric
}

// Related entity types used for client navigation.
const (
	EntityEmergencyPatient = "EmergencyPatient"
	EntityAmbulance        = "Ambulance"
	EntityMedicalDocument  = "MedicalDocument"
	EntityUser             = "User"
)

// Notification maps to the notifications table.
type Notification struct {
	ID                uuid.UUID  `db:"id" json:"_id"`
	RecipientID       uuid.UUID  `db:"recipient_id" json:"recipient"`
	Type              Type       `db:"type" json:"type"`
	Message           string     `db:"message" json:"message"`
	IsRead            bool       `db:"is_read" json:"isRead"`
	RelatedEntityID   *uuid.UUID `db:"related_entity_id" json:"relatedEntityId,omitempty"`
	RelatedEntityType *string    `db:"related_entity_type" json:"relatedEntityType,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// Inbox is the response of the list endpoint.
type Inbox struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unreadCount"`
}

// Draft describes a notification to send. Payload holds extra fields pushed
// with the realtime event (patientName, newStatus, ...); it is not stored.
type Draft struct {
	Type              Type
	Message           string
	RelatedEntityID   *uuid.UUID
	RelatedEntityType string
	Payload           map[string]interface{}
}

func (d Draft) build(recipient uuid.UUID) *Notification {
	n := &Notification{
		RecipientID:     recipient,
		Type:            ParseType(string(d.Type)),
		Message:         d.Message,
		RelatedEntityID: d.RelatedEntityID,
	}
	if d.RelatedEntityType != "" {
		t := d.RelatedEntityType
		n.RelatedEntityType = &t
	}
	return n
}
