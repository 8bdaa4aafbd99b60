package edclient

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// Presentation is how a notification type is drawn.
type Presentation struct {
	Icon            string
	Title           string
	ColorClass      string
	BackgroundClass string
}

var fallbackPresentation = Presentation{Icon: "bell", Title: "Notification", ColorClass: "text-slate-600", BackgroundClass: "bg-slate-100"}

var presentations = map[string]Presentation{
	"doctor_assignment":          {Icon: "user", Title: "Doctor Assigned", ColorClass: "text-blue-600", BackgroundClass: "bg-blue-100"},
	"patient_status_update":      {Icon: "activity", Title: "Patient Status Update", ColorClass: "text-amber-600", BackgroundClass: "bg-amber-100"},
	"new_emergency_case":         {Icon: "alert-triangle", Title: "New Emergency Case", ColorClass: "text-red-600", BackgroundClass: "bg-red-100"},
	"unassigned_emergency_case":  {Icon: "alert-triangle", Title: "New Emergency Case", ColorClass: "text-red-600", BackgroundClass: "bg-red-100"},
	"patient_assigned_to_doctor": {Icon: "user", Title: "Patient Assigned to Dr.", ColorClass: "text-sky-600", BackgroundClass: "bg-sky-100"},
	"ambulance_alert":            {Icon: "bell", Title: "Ambulance Alert", ColorClass: "text-fuchsia-600", BackgroundClass: "bg-fuchsia-100"},
	"availability_update":        {Icon: "check-check", Title: "Availability Updated", ColorClass: "text-green-600", BackgroundClass: "bg-green-100"},
	"admin_log":                  {Icon: "clipboard", Title: "Admin Log", ColorClass: "text-gray-600", BackgroundClass: "bg-gray-100"},
	"patient_file_created":       {Icon: "pill", Title: "New Document Added", ColorClass: "text-emerald-600", BackgroundClass: "bg-emerald-100"},
	"patient_file_updated":       {Icon: "stethoscope", Title: "Document Updated", ColorClass: "text-violet-600", BackgroundClass: "bg-violet-100"},
	"generic":                    fallbackPresentation,
}

// Present maps a notification type to its presentation. Unknown types get
// the generic bell.
func Present(notificationType string) Presentation {
	if p, ok := presentations[notificationType]; ok {
		return p
	}
	return fallbackPresentation
}

var timeUnits = []struct {
	seconds float64
	label   string
}{
	{31536000, "years"},
	{2592000, "months"},
	{86400, "days"},
	{3600, "hours"},
	{60, "minutes"},
}

// TimeAgo renders ts relative to now. Each unit applies only when the
// elapsed time is strictly more than one of it, and counts are floored, so
// 90 seconds is "1 minutes ago" and 60 seconds is "60 seconds ago".
func TimeAgo(ts string, now time.Time) string {
	t, ok := parseTimestamp(ts)
	if !ok {
		return "Invalid date"
	}
	seconds := math.Floor(now.Sub(t).Seconds())
	for _, u := range timeUnits {
		if interval := seconds / u.seconds; interval > 1 {
			return fmt.Sprintf("%d %s ago", int64(math.Floor(interval)), u.label)
		}
	}
	if seconds < 5 {
		return "just now"
	}
	return fmt.Sprintf("%d seconds ago", int64(seconds))
}

func parseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NavigationTarget is where selecting n should lead, if anywhere.
func NavigationTarget(n Notification) (string, bool) {
	if n.RelatedEntityType == nil {
		return "", false
	}
	switch *n.RelatedEntityType {
	case "EmergencyPatient":
		if n.RelatedEntityID == nil {
			return "/emergency-status", true
		}
		return "/emergency-status?patientId=" + url.QueryEscape(*n.RelatedEntityID), true
	case "Ambulance":
		return "/ambulance", true
	}
	return "", false
}
