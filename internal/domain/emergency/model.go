package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a case through the department.
type Status string

const (
	StatusRegistered       Status = "registered"
	StatusUnderExamination Status = "under_examination"
	StatusDoctorAssigned   Status = "doctor_assigned"
	StatusDoctorEnRoute    Status = "doctor_en_route"
	StatusTreated          Status = "treated"
	StatusCancelled        Status = "cancelled"
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{
		StatusRegistered, StatusUnderExamination, StatusDoctorAssigned,
		StatusDoctorEnRoute, StatusTreated, StatusCancelled,
	}
}

func ValidStatus(s string) bool {
	for _, st := range Statuses() {
		if string(st) == s {
			return true
		}
	}
	return false
}

// Closed reports whether the case no longer occupies a doctor.
func (s Status) Closed() bool {
	return s == StatusTreated || s == StatusCancelled
}

// EmergencyPatient maps to the emergency_patients table.
type EmergencyPatient struct {
	ID                 uuid.UUID  `db:"id" json:"_id"`
	FirstName          string     `db:"first_name" json:"firstName"`
	LastName           string     `db:"last_name" json:"lastName"`
	DateOfBirth        *string    `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Gender             *string    `db:"gender" json:"gender,omitempty"`
	PhoneNumber        *string    `db:"phone_number" json:"phoneNumber,omitempty"`
	Email              *string    `db:"email" json:"email,omitempty"`
	Address            *string    `db:"address" json:"address,omitempty"`
	EmergencyContact   *string    `db:"emergency_contact" json:"emergencyContact,omitempty"`
	InsuranceInfo      *string    `db:"insurance_info" json:"insuranceInfo,omitempty"`
	Allergies          *string    `db:"allergies" json:"allergies,omitempty"`
	CurrentMedications *string    `db:"current_medications" json:"currentMedications,omitempty"`
	MedicalHistory     *string    `db:"medical_history" json:"medicalHistory,omitempty"`
	Symptoms           string     `db:"current_symptoms" json:"symptoms"`
	PainLevel          *int       `db:"pain_level" json:"painLevel,omitempty"`
	EmergencyLevel     string     `db:"emergency_level" json:"emergencyLevel"`
	Status             Status     `db:"status" json:"status"`
	AssignedDoctor     *uuid.UUID `db:"assigned_doctor" json:"assignedDoctor,omitempty"`
	AssignedDoctorName *string    `db:"-" json:"assignedDoctorName,omitempty"`
	ArrivalTime        time.Time  `db:"arrival_time" json:"arrivalTime"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

func (p *EmergencyPatient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Details is returned by the details endpoint.
type Details struct {
	*EmergencyPatient
	Doctor   *DoctorSummary `json:"doctor,omitempty"`
	WaitTime string         `json:"estimatedWaitTime"`
}

type DoctorSummary struct {
	ID             uuid.UUID `json:"_id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Specialization *string   `json:"specialization,omitempty"`
}
