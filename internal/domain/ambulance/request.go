package ambulance

import (
	"fmt"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\d{8,15}$`)

// NewAmbulance is the fleet registration form.
type NewAmbulance struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (n NewAmbulance) toAmbulance() (*Ambulance, error) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	status := StatusOffDuty
	if n.Status != "" {
		if !ValidStatus(n.Status) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, n.Status)
		}
		status = Status(n.Status)
	}
	a := &Ambulance{Name: name, Status: status}
	if n.Latitude != nil || n.Longitude != nil {
		loc, err := locationOf(n.Latitude, n.Longitude)
		if err != nil {
			return nil, err
		}
		a.Location = &loc
	}
	return a, nil
}

// Call is a request for an ambulance to pick a patient up.
type Call struct {
	PatientName   string   `json:"patientName"`
	PatientPhone  string   `json:"patientPhone"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	EmergencyType string   `json:"emergencyType"`
	Description   string   `json:"description"`
}

func (c Call) toRequest() (*Request, error) {
	name := strings.TrimSpace(c.PatientName)
	if name == "" {
		return nil, invalid("patientName is required")
	}
	phone := strings.TrimSpace(c.PatientPhone)
	if !phonePattern.MatchString(phone) {
		return nil, invalid("patientPhone must be 8 to 15 digits")
	}
	loc, err := locationOf(c.Latitude, c.Longitude)
	if err != nil {
		return nil, err
	}
	kind := strings.ToLower(strings.TrimSpace(c.EmergencyType))
	if !validEmergencyType(kind) {
		return nil, invalid("emergencyType must be one of critical, urgent, non_urgent")
	}
	q := &Request{
		PatientName:   name,
		PatientPhone:  phone,
		Location:      loc,
		Status:        RequestPending,
		EmergencyType: kind,
	}
	if d := strings.TrimSpace(c.Description); d != "" {
		q.Description = &d
	}
	return q, nil
}

func locationOf(lat, lng *float64) (Location, error) {
	if lat == nil || lng == nil {
		return Location{}, invalid("latitude and longitude are required")
	}
	loc := Location{Latitude: *lat, Longitude: *lng}
	if !loc.Valid() {
		return Location{}, invalid("coordinates out of range")
	}
	return loc, nil
}
