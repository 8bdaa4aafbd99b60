package edclient

import (
	"testing"
	"time"
)

func TestPresent(t *testing.T) {
	p := Present("doctor_assignment")
	if p.Icon != "user" || p.Title != "Doctor Assigned" || p.ColorClass != "text-blue-600" || p.BackgroundClass != "bg-blue-100" {
		t.Errorf("unexpected presentation %+v", p)
	}
	if Present("unassigned_emergency_case") != Present("new_emergency_case") {
		t.Error("new and unassigned cases share a presentation")
	}
	for _, unknown := range []string{"", "mystery", "generic"} {
		if got := Present(unknown); got.Icon != "bell" || got.ColorClass != "text-slate-600" {
			t.Errorf("%q: expected bell fallback, got %+v", unknown, got)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) string { return now.Add(-d).Format(time.RFC3339Nano) }

	cases := []struct {
		ts   string
		want string
	}{
		{ago(90 * time.Second), "1 minutes ago"},
		{ago(60 * time.Second), "60 seconds ago"},
		{ago(59 * time.Second), "59 seconds ago"},
		{ago(3 * time.Second), "just now"},
		{ago(-10 * time.Second), "just now"},
		{ago(5 * time.Second), "5 seconds ago"},
		{ago(150 * time.Minute), "2 hours ago"},
		{ago(36 * time.Hour), "1 days ago"},
		{ago(24 * time.Hour), "24 hours ago"},
		{ago(45 * 24 * time.Hour), "1 months ago"},
		{ago(800 * 24 * time.Hour), "2 years ago"},
		{"not a date", "Invalid date"},
		{"", "Invalid date"},
	}
	for _, tc := range cases {
		if got := TimeAgo(tc.ts, now); got != tc.want {
			t.Errorf("TimeAgo(%q) = %q, want %q", tc.ts, got, tc.want)
		}
	}
}

func TestNavigationTarget(t *testing.T) {
	str := func(s string) *string { return &s }

	target, ok := NavigationTarget(Notification{RelatedEntityType: str("EmergencyPatient"), RelatedEntityID: str("abc")})
	if !ok || target != "/emergency-status?patientId=abc" {
		t.Errorf("unexpected patient target %q", target)
	}
	if target, ok := NavigationTarget(Notification{RelatedEntityType: str("Ambulance")}); !ok || target != "/ambulance" {
		t.Errorf("unexpected ambulance target %q", target)
	}
	if _, ok := NavigationTarget(Notification{RelatedEntityType: str("MedicalDocument")}); ok {
		t.Error("expected no target for documents")
	}
	if _, ok := NavigationTarget(Notification{}); ok {
		t.Error("expected no target without entity")
	}
}
