package staff

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	clock time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[uuid.UUID]*User), clock: time.Now()}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	u.ID = uuid.New()
	m.clock = m.clock.Add(time.Second)
	u.CreatedAt = m.clock
	u.UpdatedAt = m.clock
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) GetByLogin(_ context.Context, login string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) sorted() []*User {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) List(_ context.Context, role string, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.sorted() {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return []*User{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) SetAvailability(_ context.Context, id uuid.UUID, available bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.IsAvailable = available
	return u, nil
}

func (m *mockRepo) SetValidated(_ context.Context, id uuid.UUID, validated bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.IsValidated = validated
	return u, nil
}

func (m *mockRepo) ClaimAvailableDoctor(_ context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.sorted() {
		if u.Role == auth.RoleDoctor && u.IsAvailable && u.IsValidated {
			u.IsAvailable = false
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) CountAvailableDoctors(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.Role == auth.RoleDoctor && u.IsAvailable && u.IsValidated {
			n++
		}
	}
	return n, nil
}

// -- Mock Notifier --

type mockNotifier struct {
	drafts []notification.Draft
	roles  [][]string
}

func (n *mockNotifier) NotifyRoles(_ context.Context, roles []string, d notification.Draft) ([]*notification.Notification, error) {
	n.drafts = append(n.drafts, d)
	n.roles = append(n.roles, roles)
	return nil, nil
}

func testJWT() auth.JWTConfig {
	return auth.JWTConfig{Issuer: "edhub", SigningKey: []byte("staff-test-signing-key"), TTL: time.Hour}
}

func newTestService() (*Service, *mockRepo, *mockNotifier) {
	repo := newMockRepo()
	n := &mockNotifier{}
	return NewService(repo, n, testJWT(), zerolog.Nop()), repo, n
}

func mustRegister(t *testing.T, svc *Service, username, role string) *User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    username + "@hospital.test",
		Password: "correct-horse",
		Role:     role,
	}, true)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return u
}

// -- Tests --

func TestService_Register(t *testing.T) {
	svc, _, notifier := newTestService()
	u, err := svc.Register(context.Background(), RegisterRequest{
		Username: " house ",
		Email:    "House@Hospital.TEST",
		Password: "correct-horse",
		Role:     auth.RoleDoctor,
	}, false)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "house" || u.Email != "house@hospital.test" {
		t.Errorf("expected normalized identity, got %q %q", u.Username, u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct-horse" {
		t.Error("expected password to be hashed")
	}
	if u.IsValidated {
		t.Error("expected new doctor to be unvalidated")
	}
	if !u.IsAvailable {
		t.Error("expected new doctor to be available")
	}
	if len(notifier.drafts) != 1 || notifier.drafts[0].Type != notification.TypeAdminLog {
		t.Errorf("expected admin log notification, got %+v", notifier.drafts)
	}
}

func TestService_RegisterNurseIsValidated(t *testing.T) {
	svc, _, _ := newTestService()
	u := mustRegister(t, svc, "joy", auth.RoleNurse)
	if !u.IsValidated {
		t.Error("expected nurse to be validated on registration")
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _, _ := newTestService()
	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"missing username", RegisterRequest{Email: "a@b.c", Password: "longenough", Role: "nurse"}, ErrInvalid},
		{"bad email", RegisterRequest{Username: "a", Email: "nope", Password: "longenough", Role: "nurse"}, ErrInvalid},
		{"bad role", RegisterRequest{Username: "a", Email: "a@b.c", Password: "longenough", Role: "janitor"}, ErrInvalid},
		{"short password", RegisterRequest{Username: "a", Email: "a@b.c", Password: "short", Role: "nurse"}, auth.ErrPasswordTooShort},
		{"self admin", RegisterRequest{Username: "a", Email: "a@b.c", Password: "longenough", Role: "admin"}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req, false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_RegisterDuplicate(t *testing.T) {
	svc, _, _ := newTestService()
	mustRegister(t, svc, "joy", auth.RoleNurse)
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "joy", Email: "other@hospital.test", Password: "correct-horse", Role: auth.RoleNurse,
	}, false)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestService_Login(t *testing.T) {
	svc, _, _ := newTestService()
	u := mustRegister(t, svc, "joy", auth.RoleNurse)

	for _, login := range []LoginRequest{
		{Username: "joy", Password: "correct-horse"},
		{Email: "joy@hospital.test", Password: "correct-horse"},
		{Login: "joy", Password: "correct-horse"},
	} {
		resp, err := svc.Login(context.Background(), login)
		if err != nil {
			t.Fatalf("Login(%+v): %v", login, err)
		}
		claims, err := auth.ParseToken(testJWT(), resp.Token)
		if err != nil {
			t.Fatalf("ParseToken: %v", err)
		}
		if claims.Subject != u.ID.String() {
			t.Errorf("expected subject %s, got %s", u.ID, claims.Subject)
		}
		if len(claims.Roles) != 1 || claims.Roles[0] != auth.RoleNurse {
			t.Errorf("expected nurse role claim, got %v", claims.Roles)
		}
	}
}

func TestService_LoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newTestService()
	mustRegister(t, svc, "joy", auth.RoleNurse)

	if _, err := svc.Login(context.Background(), LoginRequest{Username: "joy", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "correct-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for empty request, got %v", err)
	}
}

func TestService_SetAvailability(t *testing.T) {
	svc, _, notifier := newTestService()
	doc := mustRegister(t, svc, "house", auth.RoleDoctor)
	other := mustRegister(t, svc, "wilson", auth.RoleDoctor)
	notifier.drafts = nil

	u, err := svc.SetAvailability(context.Background(), doc.ID, false, doc.ID, []string{auth.RoleDoctor})
	if err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	if u.IsAvailable {
		t.Error("expected doctor unavailable")
	}
	if len(notifier.drafts) != 1 || notifier.drafts[0].Type != notification.TypeAvailabilityUpdate {
		t.Fatalf("expected availability notification, got %+v", notifier.drafts)
	}
	if notifier.roles[0][0] != auth.RoleAdmin {
		t.Errorf("expected admins notified, got %v", notifier.roles[0])
	}

	if _, err := svc.SetAvailability(context.Background(), doc.ID, true, other.ID, []string{auth.RoleDoctor}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for another doctor, got %v", err)
	}
	if _, err := svc.SetAvailability(context.Background(), doc.ID, true, uuid.New(), []string{auth.RoleAdmin}); err != nil {
		t.Errorf("expected admin to change availability, got %v", err)
	}
}

func TestService_ClaimAvailableDoctor(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if doc, err := svc.ClaimAvailableDoctor(ctx); err != nil || doc != nil {
		t.Fatalf("expected nil, nil with no doctors, got %v, %v", doc, err)
	}

	unvalidated := mustRegister(t, svc, "intern", auth.RoleDoctor)
	first := mustRegister(t, svc, "house", auth.RoleDoctor)
	second := mustRegister(t, svc, "wilson", auth.RoleDoctor)
	_, _ = svc.SetValidated(ctx, first.ID, true)
	_, _ = svc.SetValidated(ctx, second.ID, true)

	if n, _ := svc.CountAvailableDoctors(ctx); n != 2 {
		t.Fatalf("expected 2 available validated doctors, got %d", n)
	}

	got, err := svc.ClaimAvailableDoctor(ctx)
	if err != nil {
		t.Fatalf("ClaimAvailableDoctor: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected first validated doctor, got %s", got.Username)
	}
	if got.IsAvailable {
		t.Error("expected claimed doctor to be busy")
	}

	got, _ = svc.ClaimAvailableDoctor(ctx)
	if got == nil || got.ID != second.ID {
		t.Fatalf("expected second doctor, got %v", got)
	}
	if got, _ := svc.ClaimAvailableDoctor(ctx); got != nil {
		t.Fatalf("expected no doctor left, got %s (unvalidated %s)", got.Username, unvalidated.Username)
	}

	if err := svc.ReleaseDoctor(ctx, first.ID); err != nil {
		t.Fatalf("ReleaseDoctor: %v", err)
	}
	if got, _ := svc.ClaimAvailableDoctor(ctx); got == nil || got.ID != first.ID {
		t.Fatalf("expected released doctor to be claimable again")
	}
}

func TestService_ListRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestService()
	if _, _, err := svc.List(context.Background(), "janitor", 10, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
