package ambulance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/domain/staff"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/db"
	"github.com/edhub/edhub/internal/platform/metrics"
	"github.com/edhub/edhub/internal/platform/websocket"
)

var (
	ErrInvalid       = errors.New("invalid request")
	ErrInvalidStatus = errors.New("invalid status")
	ErrOnMission     = errors.New("ambulance is on a mission")
	ErrRequestClosed = errors.New("request is closed")
	ErrNoAmbulance   = errors.New("no ambulance assigned")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Notifier is the part of the notification service dispatch uses.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, d notification.Draft) (*notification.Notification, error)
	NotifyRoles(ctx context.Context, roles []string, d notification.Draft) ([]*notification.Notification, error)
}

// Directory looks up staff joining a crew.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*staff.User, error)
}

// dispatchRoles hear about every call and mission.
var dispatchRoles = []string{auth.RoleNurse, auth.RoleAdmin}

type Service struct {
	repo      Repository
	directory Directory
	notifier  Notifier
	publisher websocket.EventPublisher
	tx        db.TxRunner
	logger    zerolog.Logger
}

func NewService(repo Repository, directory Directory, notifier Notifier, publisher websocket.EventPublisher, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		publisher: publisher,
		tx:        tx,
		logger:    logger,
	}
}

// mission pairs a request with the ambulance sent to it.
type mission struct {
	request   *Request
	ambulance *Ambulance
}

func (s *Service) Register(ctx context.Context, in NewAmbulance) (*Ambulance, error) {
	a, err := in.toAmbulance()
	if err != nil {
		return nil, err
	}
	var m *mission
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		if a.Status != StatusAvailable {
			return nil
		}
		var err error
		m, err = s.assignPending(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("ambulance_id", a.ID.String()).Str("name", a.Name).Msg("ambulance registered")
	a = s.refresh(ctx, a)
	s.publishAmbulance(ctx, a)
	s.afterMission(ctx, m)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Ambulance, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the fleet, optionally only ambulances in status.
func (s *Service) List(ctx context.Context, status string) ([]*Ambulance, error) {
	if status != "" && !ValidStatus(status) && Status(status) != StatusOnMission {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.List(ctx, Status(status))
}

// ListAssigned returns the ambulances userID crews.
func (s *Service) ListAssigned(ctx context.Context, userID uuid.UUID) ([]*Ambulance, error) {
	return s.repo.ListForMember(ctx, userID)
}

// Delete removes an ambulance from the fleet. One on a mission must finish
// or cancel its request first.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var gone *Ambulance
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusOnMission {
			return ErrOnMission
		}
		gone = a
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	gone.Status = StatusOffDuty
	s.publishAmbulance(ctx, gone)
	return nil
}

// SetStatus changes an ambulance that is not on a mission. Making it
// available hands it the oldest waiting request, if any.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Ambulance, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: must be one of off_duty, available, maintenance", ErrInvalidStatus)
	}
	var (
		a *Ambulance
		m *mission
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status == StatusOnMission {
			return ErrOnMission
		}
		a, err = s.repo.SetStatus(ctx, id, Status(status))
		if err != nil {
			return err
		}
		if a.Status == StatusAvailable {
			m, err = s.assignPending(ctx)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	a = s.refresh(ctx, a)
	s.publishAmbulance(ctx, a)
	s.afterMission(ctx, m)
	return a, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng *float64) (*Ambulance, error) {
	loc, err := locationOf(lat, lng)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.SetLocation(ctx, id, loc)
	if err != nil {
		return nil, err
	}
	s.publishAmbulance(ctx, a)
	return a, nil
}

// AddTeamMember puts a doctor or nurse on the crew of id.
func (s *Service) AddTeamMember(ctx context.Context, id, userID uuid.UUID) (*Ambulance, error) {
	u, err := s.directory.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			return nil, invalid("user %s does not exist", userID)
		}
		return nil, err
	}
	if u.Role != auth.RoleDoctor && u.Role != auth.RoleNurse {
		return nil, invalid("only doctors and nurses can crew an ambulance")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.AddTeamMember(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) RemoveTeamMember(ctx context.Context, id, userID uuid.UUID) (*Ambulance, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveTeamMember(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Dispatch records a call and sends the longest idle available ambulance.
// With none free the request waits as pending and staff are alerted.
func (s *Service) Dispatch(ctx context.Context, call Call) (*Request, error) {
	q, err := call.toRequest()
	if err != nil {
		return nil, err
	}
	var m *mission
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateRequest(ctx, q); err != nil {
			return fmt.Errorf("create ambulance request: %w", err)
		}
		a, err := s.repo.ClaimAvailable(ctx, q.Location.String())
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim ambulance: %w", err)
		}
		assigned, err := s.repo.AssignRequest(ctx, q.ID, a.ID)
		if err != nil {
			return fmt.Errorf("assign ambulance: %w", err)
		}
		q = assigned
		m = &mission{request: assigned, ambulance: a}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAmbulanceDispatch(m != nil)
	if m != nil {
		s.afterMission(ctx, m)
		return q, nil
	}

	s.logger.Warn().Str("request_id", q.ID.String()).Msg("no ambulance available, request queued")
	msg := fmt.Sprintf("No ambulance available for %s (%s), request queued", q.PatientName, q.EmergencyType)
	s.notifyStaff(ctx, notification.Draft{
		Type:              notification.TypeAmbulanceAlert,
		Message:           msg,
		RelatedEntityID:   &q.ID,
		RelatedEntityType: notification.EntityAmbulance,
		Payload: map[string]interface{}{
			"requestId":     q.ID.String(),
			"patientName":   q.PatientName,
			"emergencyType": q.EmergencyType,
			"status":        string(q.Status),
		},
	})
	s.publishRequest(ctx, q)
	return q, nil
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetRequest(ctx, id)
}

func (s *Service) ListRequests(ctx context.Context) ([]*Request, error) {
	return s.repo.ListRequests(ctx)
}

// UpdateRequestStatus moves a request along. Closing an open request
// frees its ambulance, which then takes the oldest waiting request. A
// closed request cannot be reopened.
func (s *Service) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status string) (*Request, error) {
	if !validRequestStatus(status) {
		return nil, fmt.Errorf("%w: must be one of pending, accepted, in_progress, completed, cancelled", ErrInvalidStatus)
	}
	next := RequestStatus(status)

	var (
		q     *Request
		freed *Ambulance
		m     *mission
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case cur.Status.Closed() && !next.Closed():
			return fmt.Errorf("%w: %s", ErrRequestClosed, cur.Status)
		case next == RequestPending && cur.AmbulanceID != nil:
			return fmt.Errorf("%w: an assigned request cannot return to pending", ErrInvalidStatus)
		case (next == RequestAccepted || next == RequestInProgress) && cur.AmbulanceID == nil:
			return ErrNoAmbulance
		}

		q, err = s.repo.SetRequestStatus(ctx, id, next)
		if err != nil {
			return err
		}
		if cur.AmbulanceID == nil || cur.Status.Closed() || !next.Closed() {
			return nil
		}
		freed, err = s.repo.Release(ctx, *cur.AmbulanceID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn().Str("ambulance_id", cur.AmbulanceID.String()).Msg("ambulance was not on this mission")
			return nil
		}
		if err != nil {
			return fmt.Errorf("release ambulance: %w", err)
		}
		m, err = s.assignPending(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishRequest(ctx, q)
	if freed != nil {
		s.publishAmbulance(ctx, freed)
	}
	s.afterMission(ctx, m)
	return q, nil
}

// UpdateRequestLocation moves the pickup point and redirects the ambulance
// already on its way.
func (s *Service) UpdateRequestLocation(ctx context.Context, id uuid.UUID, lat, lng *float64) (*Request, error) {
	loc, err := locationOf(lat, lng)
	if err != nil {
		return nil, err
	}
	var q *Request
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.Closed() {
			return fmt.Errorf("%w: %s", ErrRequestClosed, cur.Status)
		}
		q, err = s.repo.SetRequestLocation(ctx, id, loc)
		if err != nil {
			return err
		}
		if q.AmbulanceID == nil {
			return nil
		}
		err = s.repo.SetDestination(ctx, *q.AmbulanceID, loc.String())
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishRequest(ctx, q)
	return q, nil
}

// assignPending gives the oldest waiting request to a free ambulance. Both
// must be locked by the caller's transaction.
func (s *Service) assignPending(ctx context.Context) (*mission, error) {
	q, err := s.repo.NextPendingRequest(ctx)
	if errors.Is(err, ErrRequestNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending request: %w", err)
	}
	a, err := s.repo.ClaimAvailable(ctx, q.Location.String())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim ambulance: %w", err)
	}
	q, err = s.repo.AssignRequest(ctx, q.ID, a.ID)
	if err != nil {
		return nil, fmt.Errorf("assign ambulance: %w", err)
	}
	return &mission{request: q, ambulance: a}, nil
}

// afterMission tells staff and the crew that an ambulance was sent.
// Failures are logged and never undo the dispatch.
func (s *Service) afterMission(ctx context.Context, m *mission) {
	if m == nil {
		return
	}
	q, a := m.request, m.ambulance
	s.logger.Info().
		Str("request_id", q.ID.String()).
		Str("ambulance_id", a.ID.String()).
		Msg("ambulance dispatched")

	draft := notification.Draft{
		Type:              notification.TypeAmbulanceAlert,
		Message:           fmt.Sprintf("%s dispatched to %s (%s)", a.Name, q.PatientName, q.EmergencyType),
		RelatedEntityID:   &a.ID,
		RelatedEntityType: notification.EntityAmbulance,
		Payload: map[string]interface{}{
			"requestId":     q.ID.String(),
			"ambulanceId":   a.ID.String(),
			"ambulanceName": a.Name,
			"patientName":   q.PatientName,
			"emergencyType": q.EmergencyType,
			"destination":   q.Location.String(),
		},
	}
	s.notifyStaff(ctx, draft)

	crewDraft := draft
	crewDraft.Message = fmt.Sprintf("New mission for %s: %s at %s", a.Name, q.PatientName, q.Location)
	for _, member := range a.Team {
		if _, err := s.notifier.Notify(ctx, member, crewDraft); err != nil {
			s.logger.Warn().Err(err).Str("user_id", member.String()).Msg("failed to notify crew member")
		}
	}

	s.publishRequest(ctx, q)
	s.publishAmbulance(ctx, a)
}

func (s *Service) notifyStaff(ctx context.Context, d notification.Draft) {
	if _, err := s.notifier.NotifyRoles(ctx, dispatchRoles, d); err != nil {
		s.logger.Warn().Err(err).Str("type", string(d.Type)).Msg("failed to notify staff")
	}
}

// refresh re-reads a after a dispatch may have claimed it.
func (s *Service) refresh(ctx context.Context, a *Ambulance) *Ambulance {
	if cur, err := s.repo.GetByID(ctx, a.ID); err == nil {
		return cur
	}
	return a
}

func (s *Service) publishAmbulance(ctx context.Context, a *Ambulance) {
	data := map[string]interface{}{
		"ambulanceId": a.ID.String(),
		"status":      string(a.Status),
	}
	if a.Destination != nil {
		data["destination"] = *a.Destination
	}
	s.publish(ctx, notification.EntityAmbulance, a.ID, data)
}

func (s *Service) publishRequest(ctx context.Context, q *Request) {
	data := map[string]interface{}{
		"requestId": q.ID.String(),
		"status":    string(q.Status),
	}
	if q.AmbulanceID != nil {
		data["ambulanceId"] = q.AmbulanceID.String()
	}
	s.publish(ctx, entityRequest, q.ID, data)
}

const entityRequest = "AmbulanceRequest"

func (s *Service) publish(ctx context.Context, entityType string, id uuid.UUID, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	ev, err := websocket.NewEvent(websocket.EventAmbulanceChanged, websocket.TopicEmergencies, data)
	if err != nil {
		return
	}
	ev.EntityType = entityType
	ev.EntityID = id.String()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("entity_id", id.String()).Msg("failed to publish ambulance change")
	}
}
