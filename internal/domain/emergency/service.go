package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/domain/staff"
	"github.com/edhub/edhub/internal/platform/audit"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/db"
	"github.com/edhub/edhub/internal/platform/metrics"
	"github.com/edhub/edhub/internal/platform/websocket"
	"github.com/edhub/edhub/pkg/triage"
)

var (
	ErrInvalidStatus = errors.New("invalid status")
	ErrCaseClosed    = errors.New("case is closed")
)

// DoctorPool hands out and takes back doctors.
type DoctorPool interface {
	ClaimAvailableDoctor(ctx context.Context) (*staff.User, error)
	ReleaseDoctor(ctx context.Context, id uuid.UUID) error
	CountAvailableDoctors(ctx context.Context) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*staff.User, error)
}

// Notifier is the part of the notification service intake uses.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, d notification.Draft) (*notification.Notification, error)
	NotifyRoles(ctx context.Context, roles []string, d notification.Draft) ([]*notification.Notification, error)
}

// staffRoles receive intake and assignment broadcasts.
var staffRoles = []string{auth.RoleNurse, auth.RoleAdmin}

type Service struct {
	repo      Repository
	doctors   DoctorPool
	notifier  Notifier
	publisher websocket.EventPublisher
	tx        db.TxRunner
	auditor   audit.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, doctors DoctorPool, notifier Notifier, publisher websocket.EventPublisher, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{
		repo:      repo,
		doctors:   doctors,
		notifier:  notifier,
		publisher: publisher,
		tx:        tx,
		logger:    logger,
		now:       time.Now,
	}
}

// SetAuditor records intake, detail views and deletions of cases to r.
func (s *Service) SetAuditor(r audit.Recorder) {
	s.auditor = r
}

func (s *Service) trail(ctx context.Context, id uuid.UUID, action audit.Action) {
	audit.Write(ctx, s.auditor, s.logger, audit.Entry(ctx, id, audit.ResourceEmergencyPatient, id, action))
}

// Create registers a case and assigns the first free validated doctor in
// the same transaction. Notification failures are logged and do not fail
// the intake.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*EmergencyPatient, error) {
	p, err := req.toPatient()
	if err != nil {
		return nil, err
	}

	var doctor *staff.User
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create emergency patient: %w", err)
		}
		d, err := s.doctors.ClaimAvailableDoctor(ctx)
		if err != nil {
			return fmt.Errorf("claim doctor: %w", err)
		}
		if d == nil {
			return nil
		}
		if err := s.repo.AssignDoctor(ctx, p.ID, d.ID); err != nil {
			return fmt.Errorf("assign doctor: %w", err)
		}
		doctor = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncEmergencyCase(p.EmergencyLevel, doctor != nil)
	if doctor != nil {
		p.AssignedDoctor = &doctor.ID
		name := doctor.Username
		p.AssignedDoctorName = &name
		s.logger.Info().
			Str("patient_id", p.ID.String()).
			Str("doctor_id", doctor.ID.String()).
			Msg("doctor assigned to emergency case")
	} else {
		s.logger.Warn().Str("patient_id", p.ID.String()).Msg("no doctor available for emergency case")
	}

	s.trail(ctx, p.ID, audit.ActionCreate)
	s.announceIntake(ctx, p, doctor)
	s.broadcastChange(ctx, p)
	return p, nil
}

func (s *Service) announceIntake(ctx context.Context, p *EmergencyPatient, doctor *staff.User) {
	payload := map[string]interface{}{
		"patientId":      p.ID.String(),
		"patientName":    p.FullName(),
		"emergencyLevel": p.EmergencyLevel,
		"symptoms":       p.Symptoms,
	}

	if doctor == nil {
		s.notifyRoles(ctx, notification.Draft{
			Type:              notification.TypeUnassignedEmergencyCase,
			Message:           fmt.Sprintf("New %s emergency case for %s: no doctor available", p.EmergencyLevel, p.FullName()),
			RelatedEntityID:   &p.ID,
			RelatedEntityType: notification.EntityEmergencyPatient,
			Payload:           payload,
		})
		return
	}

	if _, err := s.notifier.Notify(ctx, doctor.ID, notification.Draft{
		Type:              notification.TypeDoctorAssignment,
		Message:           fmt.Sprintf("New emergency case assigned: %s (%s)", p.FullName(), p.EmergencyLevel),
		RelatedEntityID:   &p.ID,
		RelatedEntityType: notification.EntityEmergencyPatient,
		Payload:           payload,
	}); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctor.ID.String()).Msg("failed to notify assigned doctor")
	}

	staffPayload := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		staffPayload[k] = v
	}
	staffPayload["doctorId"] = doctor.ID.String()
	staffPayload["doctorName"] = doctor.Username
	s.notifyRoles(ctx, notification.Draft{
		Type:              notification.TypePatientAssignedToDoctor,
		Message:           fmt.Sprintf("%s assigned to %s and now busy", doctor.DisplayName(), p.FullName()),
		RelatedEntityID:   &p.ID,
		RelatedEntityType: notification.EntityEmergencyPatient,
		Payload:           staffPayload,
	})
}

func (s *Service) notifyRoles(ctx context.Context, d notification.Draft) {
	if _, err := s.notifier.NotifyRoles(ctx, staffRoles, d); err != nil {
		s.logger.Warn().Err(err).Str("type", string(d.Type)).Msg("failed to notify staff")
	}
}

// broadcastChange tells every connected triage board to refresh.
func (s *Service) broadcastChange(ctx context.Context, p *EmergencyPatient) {
	if s.publisher == nil {
		return
	}
	ev, err := websocket.NewEvent(websocket.EventEmergencyChanged, websocket.TopicEmergencies, map[string]string{
		"patientId":      p.ID.String(),
		"status":         string(p.Status),
		"emergencyLevel": p.EmergencyLevel,
	})
	if err != nil {
		return
	}
	ev.EntityType = "EmergencyPatient"
	ev.EntityID = p.ID.String()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("failed to publish emergency change")
	}
}

// ListOptions filters and orders the triage board.
type ListOptions struct {
	// Query is matched against the patient's full name.
	Query string
	// ByTriage orders by severity instead of newest first.
	ByTriage bool
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]*EmergencyPatient, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		filtered := make([]*EmergencyPatient, 0, len(items))
		for _, p := range items {
			if triage.MatchName(p.FirstName, p.LastName, q) {
				filtered = append(filtered, p)
			}
		}
		items = filtered
	}
	if opts.ByTriage {
		items = triage.Sort(items, func(p *EmergencyPatient) string { return p.EmergencyLevel })
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error) {
	return s.repo.GetByID(ctx, id)
}

// Details returns the case with its doctor and a wait estimate.
func (s *Service) Details(ctx context.Context, id uuid.UUID) (*Details, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.trail(ctx, p.ID, audit.ActionRead)
	d := &Details{EmergencyPatient: p, WaitTime: s.waitFor(ctx, p)}
	if p.AssignedDoctor != nil {
		doc, err := s.doctors.Get(ctx, *p.AssignedDoctor)
		if err == nil {
			d.Doctor = &DoctorSummary{ID: doc.ID, Username: doc.Username, Email: doc.Email, Specialization: doc.Specialization}
		} else {
			s.logger.Warn().Err(err).Str("doctor_id", p.AssignedDoctor.String()).Msg("assigned doctor lookup failed")
		}
	}
	return d, nil
}

// UpdateStatus moves a case to status and tells the assigned doctor.
// The doctor is freed only when an open case closes. A closed case may
// switch between treated and cancelled but cannot be reopened.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*EmergencyPatient, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: must be one of %s", ErrInvalidStatus, statusList())
	}
	next := Status(status)

	var p *EmergencyPatient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.Closed() && !next.Closed() {
			return fmt.Errorf("%w: %s", ErrCaseClosed, cur.Status)
		}
		p, err = s.repo.UpdateStatus(ctx, id, next)
		if err != nil {
			return err
		}
		if p.AssignedDoctor != nil && !cur.Status.Closed() && next.Closed() {
			return s.releaseDoctor(ctx, *p.AssignedDoctor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if p.AssignedDoctor != nil {
		msg := fmt.Sprintf("Status of %s changed to %s", p.FullName(), p.Status)
		if _, err := s.notifier.Notify(ctx, *p.AssignedDoctor, notification.Draft{
			Type:              notification.TypePatientStatusUpdate,
			Message:           msg,
			RelatedEntityID:   &p.ID,
			RelatedEntityType: notification.EntityEmergencyPatient,
			Payload: map[string]interface{}{
				"message":        msg,
				"patientName":    p.FullName(),
				"emergencyLevel": p.EmergencyLevel,
				"newStatus":      string(p.Status),
				"patientId":      p.ID.String(),
			},
		}); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("failed to notify doctor of status change")
		}
	}

	s.broadcastChange(ctx, p)
	return p, nil
}

// releaseDoctor makes a doctor available again. A doctor removed from
// the roster is not an error.
func (s *Service) releaseDoctor(ctx context.Context, doctorID uuid.UUID) error {
	err := s.doctors.ReleaseDoctor(ctx, doctorID)
	if errors.Is(err, staff.ErrNotFound) {
		s.logger.Warn().Str("doctor_id", doctorID.String()).Msg("assigned doctor no longer exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("release doctor: %w", err)
	}
	return nil
}

func statusList() string {
	names := make([]string, 0, len(Statuses()))
	for _, st := range Statuses() {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}

// Delete removes a case. An open case gives its doctor back to the
// pool; a closed one already did.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *EmergencyPatient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		deleted = p
		if p.AssignedDoctor != nil && !p.Status.Closed() {
			return s.releaseDoctor(ctx, *p.AssignedDoctor)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.trail(ctx, deleted.ID, audit.ActionDelete)
	deleted.Status = StatusCancelled
	s.broadcastChange(ctx, deleted)
	return nil
}

// EstimateWaitTime returns the textual wait range for a case.
func (s *Service) EstimateWaitTime(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return WaitUnavailable, err
	}
	return s.waitFor(ctx, p), nil
}

func (s *Service) waitFor(ctx context.Context, p *EmergencyPatient) string {
	in := WaitInputs{Level: p.EmergencyLevel, Arrival: p.CreatedAt, DoctorsAvailable: -1}
	if in.Arrival.IsZero() {
		in.Arrival = s.now()
	}

	// A failed count skips that adjustment rather than the estimate.
	active, err := s.repo.CountActiveSince(ctx, s.now().Add(-time.Hour), p.ID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("wait estimate: counting active cases failed")
	} else {
		in.OtherActive = active
	}
	doctors, err := s.doctors.CountAvailableDoctors(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("wait estimate: counting doctors failed")
	} else {
		in.DoctorsAvailable = doctors
	}
	return FormatWait(EstimateWait(in))
}
