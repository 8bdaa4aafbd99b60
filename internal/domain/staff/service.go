package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/platform/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrForbidden          = errors.New("not allowed")
	ErrInvalid            = errors.New("invalid request")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Notifier is the part of the notification service staff changes use.
type Notifier interface {
	NotifyRoles(ctx context.Context, roles []string, d notification.Draft) ([]*notification.Notification, error)
}

type Service struct {
	repo     Repository
	notifier Notifier
	jwt      auth.JWTConfig
	logger   zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, jwtCfg auth.JWTConfig, logger zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, jwt: jwtCfg, logger: logger}
}

// Register creates a staff account. Self-registration is limited to doctors
// and nurses; allowAdmin lets an existing admin create other admins.
// Doctors start unvalidated.
func (s *Service) Register(ctx context.Context, req RegisterRequest, allowAdmin bool) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" {
		return nil, invalid("username is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, invalid("a valid email is required")
	}
	if !auth.ValidRole(req.Role) {
		return nil, invalid("role must be one of admin, doctor, nurse")
	}
	if req.Role == auth.RoleAdmin && !allowAdmin {
		return nil, ErrForbidden
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		Role:           req.Role,
		Specialization: req.Specialization,
		IsAvailable:    true,
		IsValidated:    req.Role != auth.RoleDoctor,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	if u.Role == auth.RoleDoctor {
		s.notifyAdmins(ctx, notification.Draft{
			Type:              notification.TypeAdminLog,
			Message:           fmt.Sprintf("%s registered and is awaiting validation", u.DisplayName()),
			RelatedEntityID:   &u.ID,
			RelatedEntityType: notification.EntityUser,
		})
	}
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	login := strings.TrimSpace(req.identifier())
	if login == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.repo.GetByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := auth.IssueToken(s.jwt, u.ID.String(), u.Username, []string{u.Role})
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: expires, User: u}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if role != "" && !auth.ValidRole(role) {
		return nil, 0, invalid("unknown role %q", role)
	}
	return s.repo.List(ctx, role, limit, offset)
}

// SetAvailability changes a doctor's availability. Doctors may only change
// their own; admins may change anyone's.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool, actorID uuid.UUID, actorRoles []string) (*User, error) {
	if id != actorID && !auth.HasRole(actorRoles, auth.RoleAdmin) {
		return nil, ErrForbidden
	}
	u, err := s.repo.SetAvailability(ctx, id, available)
	if err != nil {
		return nil, err
	}

	state := "unavailable"
	if available {
		state = "available"
	}
	s.notifyAdmins(ctx, notification.Draft{
		Type:              notification.TypeAvailabilityUpdate,
		Message:           fmt.Sprintf("%s is now %s", u.DisplayName(), state),
		RelatedEntityID:   &u.ID,
		RelatedEntityType: notification.EntityUser,
	})
	return u, nil
}

func (s *Service) SetValidated(ctx context.Context, id uuid.UUID, validated bool) (*User, error) {
	return s.repo.SetValidated(ctx, id, validated)
}

// ClaimAvailableDoctor reserves a free doctor. It returns nil, nil when no
// doctor is available.
func (s *Service) ClaimAvailableDoctor(ctx context.Context) (*User, error) {
	u, err := s.repo.ClaimAvailableDoctor(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// CountAvailableDoctors counts validated doctors free to take a case.
func (s *Service) CountAvailableDoctors(ctx context.Context) (int, error) {
	return s.repo.CountAvailableDoctors(ctx)
}

// ReleaseDoctor makes a doctor available again.
func (s *Service) ReleaseDoctor(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.SetAvailability(ctx, id, true)
	return err
}

func (s *Service) notifyAdmins(ctx context.Context, d notification.Draft) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.NotifyRoles(ctx, []string{auth.RoleAdmin}, d); err != nil {
		s.logger.Warn().Err(err).Str("type", string(d.Type)).Msg("failed to notify admins")
	}
}
