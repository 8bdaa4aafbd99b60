package edclient

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edhub/edhub/pkg/triage"
)

// EmergencyAPI lists emergency cases.
type EmergencyAPI interface {
	EmergencyPatients(ctx context.Context) ([]EmergencyPatient, error)
}

// TriageRow is one line of the triage board.
type TriageRow struct {
	Patient       EmergencyPatient
	DisplayStatus string
	Priority      int
}

// TriageList holds the last fetched emergency cases in server order.
type TriageList struct {
	api    EmergencyAPI
	logger zerolog.Logger

	mu       sync.Mutex
	patients []EmergencyPatient
	loading  bool
	err      error
}

func NewTriageList(api EmergencyAPI, logger zerolog.Logger) *TriageList {
	return &TriageList{api: api, logger: logger, patients: []EmergencyPatient{}}
}

// Fetch reloads the cases. On error the list is emptied and the error kept
// for Err.
func (l *TriageList) Fetch(ctx context.Context) {
	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()

	patients, err := l.api.EmergencyPatients(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	l.err = err
	if err != nil {
		l.logger.Warn().Err(err).Msg("triage: fetch failed")
		l.patients = []EmergencyPatient{}
		return
	}
	l.patients = append([]EmergencyPatient{}, patients...)
}

func (l *TriageList) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *TriageList) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Patients returns the cases in fetch order.
func (l *TriageList) Patients() []EmergencyPatient {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EmergencyPatient{}, l.patients...)
}

// Sorted returns the cases most severe first. Equal levels keep fetch order.
func (l *TriageList) Sorted() []EmergencyPatient {
	return triage.Sort(l.Patients(), levelOf)
}

// Filter returns the cases whose full name contains query, ignoring case.
func (l *TriageList) Filter(query string) []EmergencyPatient {
	return filterByName(l.Patients(), query)
}

// View is the filtered, sorted board.
func (l *TriageList) View(query string) []TriageRow {
	sorted := triage.Sort(filterByName(l.Patients(), query), levelOf)
	rows := make([]TriageRow, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, TriageRow{
			Patient:       p,
			DisplayStatus: triage.DisplayStatus(p.EmergencyLevel),
			Priority:      triage.Priority(p.EmergencyLevel),
		})
	}
	return rows
}

func levelOf(p EmergencyPatient) string { return p.EmergencyLevel }

func filterByName(in []EmergencyPatient, query string) []EmergencyPatient {
	out := make([]EmergencyPatient, 0, len(in))
	for _, p := range in {
		if triage.MatchName(p.FirstName, p.LastName, query) {
			out = append(out, p)
		}
	}
	return out
}
