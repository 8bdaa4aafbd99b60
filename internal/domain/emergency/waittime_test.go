package emergency

import (
	"testing"
	"time"
)

var (
	tuesdayNight   = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	wednesdayNoon  = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	saturdayEve    = time.Date(2024, 1, 6, 20, 0, 0, 0, time.UTC)
	saturdayMorn   = time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	wednesdaySix   = time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC)
	wednesdayEight = time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)
)

func TestEstimateWait(t *testing.T) {
	tests := []struct {
		name string
		in   WaitInputs
		want int
	}{
		{"critical off-peak", WaitInputs{Level: "critical", Arrival: tuesdayNight, DoctorsAvailable: 2}, 5},
		{"unknown level uses default", WaitInputs{Level: "severe", Arrival: tuesdayNight, DoctorsAvailable: 2}, 45},
		{"level is case-insensitive", WaitInputs{Level: "HIGH", Arrival: tuesdayNight, DoctorsAvailable: 2}, 15},
		{"peak with load and one doctor", WaitInputs{Level: "low", Arrival: wednesdayNoon, OtherActive: 2, DoctorsAvailable: 1}, 115},
		{"weekend evening many doctors", WaitInputs{Level: "medium", Arrival: saturdayEve, DoctorsAvailable: 5}, 30},
		{"capped at 180", WaitInputs{Level: "low", Arrival: saturdayMorn, OtherActive: 20, DoctorsAvailable: 0}, 180},
		{"one doctor without load", WaitInputs{Level: "medium", Arrival: tuesdayNight, DoctorsAvailable: 1}, 30},
		{"unknown doctor count skips adjustment", WaitInputs{Level: "medium", Arrival: tuesdayNight, OtherActive: 1, DoctorsAvailable: -1}, 35},
		{"peak starts at 08:00", WaitInputs{Level: "high", Arrival: wednesdayEight, DoctorsAvailable: 2}, 25},
		{"peak ends before 18:00", WaitInputs{Level: "high", Arrival: wednesdaySix, DoctorsAvailable: 2}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateWait(tt.in); got != tt.want {
				t.Errorf("EstimateWait() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatWait(t *testing.T) {
	tests := map[int]string{
		5:   "about 5-15 minutes",
		30:  "about 25-40 minutes",
		175: "about 170-180 minutes",
		180: "about 175-180 minutes",
		200: "about 180 minutes",
	}
	for minutes, want := range tests {
		if got := FormatWait(minutes); got != want {
			t.Errorf("FormatWait(%d) = %q, want %q", minutes, got, want)
		}
	}
}
