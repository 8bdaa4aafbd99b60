package emergency

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/edhub/edhub/pkg/triage"
)

// CreateRequest is the intake form.
type CreateRequest struct {
	FirstName          string  `json:"firstName"`
	LastName           string  `json:"lastName"`
	DateOfBirth        string  `json:"dateOfBirth"`
	Gender             string  `json:"gender"`
	PhoneNumber        string  `json:"phoneNumber"`
	Email              string  `json:"email"`
	Address            string  `json:"address"`
	EmergencyContact   string  `json:"emergencyContact"`
	InsuranceInfo      string  `json:"insuranceInfo"`
	Allergies          string  `json:"allergies"`
	CurrentMedications string  `json:"currentMedications"`
	MedicalHistory     string  `json:"medicalHistory"`
	CurrentSymptoms    string  `json:"currentSymptoms"`
	Symptoms           string  `json:"symptoms"`
	PainLevel          FlexInt `json:"painLevel"`
	EmergencyLevel     string  `json:"emergencyLevel"`
}

var genders = map[string]bool{"male": true, "female": true, "other": true}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// toPatient validates the form and builds the record to insert.
func (r CreateRequest) toPatient() (*EmergencyPatient, error) {
	var problems []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+" is required")
		}
	}

	symptoms := r.CurrentSymptoms
	if symptoms == "" {
		symptoms = r.Symptoms
	}
	level := strings.ToLower(strings.TrimSpace(r.EmergencyLevel))

	require("firstName", r.FirstName)
	require("lastName", r.LastName)
	require("dateOfBirth", r.DateOfBirth)
	require("phoneNumber", r.PhoneNumber)
	require("address", r.Address)
	require("emergencyContact", r.EmergencyContact)
	require("currentSymptoms", symptoms)

	if r.DateOfBirth != "" {
		if _, err := time.Parse("2006-01-02", r.DateOfBirth); err != nil {
			problems = append(problems, "dateOfBirth must be YYYY-MM-DD")
		}
	}
	gender := strings.ToLower(strings.TrimSpace(r.Gender))
	if !genders[gender] {
		problems = append(problems, "gender must be one of male, female, other")
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			problems = append(problems, "email is not a valid address")
		}
	}
	if r.PainLevel < 1 || r.PainLevel > 10 {
		problems = append(problems, "painLevel must be between 1 and 10")
	}
	if !triage.Valid(level) {
		problems = append(problems, "emergencyLevel must be one of low, medium, high, critical")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	pain := int(r.PainLevel)
	return &EmergencyPatient{
		FirstName:          strings.TrimSpace(r.FirstName),
		LastName:           strings.TrimSpace(r.LastName),
		DateOfBirth:        optional(r.DateOfBirth),
		Gender:             &gender,
		PhoneNumber:        optional(r.PhoneNumber),
		Email:              optional(r.Email),
		Address:            optional(r.Address),
		EmergencyContact:   optional(r.EmergencyContact),
		InsuranceInfo:      optional(r.InsuranceInfo),
		Allergies:          optional(r.Allergies),
		CurrentMedications: optional(r.CurrentMedications),
		MedicalHistory:     optional(r.MedicalHistory),
		Symptoms:           strings.TrimSpace(symptoms),
		PainLevel:          &pain,
		EmergencyLevel:     level,
		Status:             StatusRegistered,
	}, nil
}

// ValidationError lists every problem found in an intake form.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Problems, "; "))
}
