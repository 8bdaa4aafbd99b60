package emergency

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	minWaitMinutes = 5
	maxWaitMinutes = 180

	peakStartHour     = 8
	peakEndHour       = 18
	peakFactor        = 1.5
	weekendFactor     = 1.2
	minutesPerPatient = 5
	fewDoctorsFactor  = 1.15
	manyDoctorsFactor = 0.8
)

var baseWaitMinutes = map[string]float64{
	"critical": 5,
	"high":     15,
	"medium":   30,
	"low":      60,
}

const defaultBaseWait = 45

// WaitInputs carries the department load used by EstimateWait.
type WaitInputs struct {
	Level string
	// Arrival is evaluated in its own location for the peak-hour and
	// weekend adjustments.
	Arrival time.Time
	// OtherActive counts other open cases registered in the last hour.
	OtherActive int
	// DoctorsAvailable is negative when the count is unknown.
	DoctorsAvailable int
}

// EstimateWait returns the estimated wait in minutes, clamped to
// [5, 180] and rounded to the nearest 5.
func EstimateWait(in WaitInputs) int {
	t, ok := baseWaitMinutes[strings.ToLower(in.Level)]
	if !ok {
		t = defaultBaseWait
	}

	if h := in.Arrival.Hour(); h >= peakStartHour && h < peakEndHour {
		t *= peakFactor
	}
	if wd := in.Arrival.Weekday(); wd == time.Saturday || wd == time.Sunday {
		t *= weekendFactor
	}

	t += float64(in.OtherActive * minutesPerPatient)

	switch {
	case in.DoctorsAvailable < 0:
	case in.DoctorsAvailable <= 1 && in.OtherActive > 0:
		t *= fewDoctorsFactor
	case in.DoctorsAvailable > 3:
		t *= manyDoctorsFactor
	}

	t = math.Max(minWaitMinutes, t)
	t = math.Min(maxWaitMinutes, t)
	return int(math.Floor(t/5+0.5)) * 5
}

// FormatWait renders minutes as the range shown to patients.
func FormatWait(minutes int) string {
	lower := minutes - 5
	if lower < minWaitMinutes {
		lower = minWaitMinutes
	}
	upper := minutes + 10
	if upper > maxWaitMinutes {
		upper = maxWaitMinutes
	}
	if lower >= upper {
		return fmt.Sprintf("about %d minutes", upper)
	}
	return fmt.Sprintf("about %d-%d minutes", lower, upper)
}

// WaitUnavailable is returned in place of a range when the case cannot be
// loaded.
const WaitUnavailable = "estimate unavailable"
