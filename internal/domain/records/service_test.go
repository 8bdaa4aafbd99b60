package records

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/domain/emergency"
	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/platform/audit"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/blobstore"
)

// -- Mock Repository --

type mockRepo struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*Document
	clock     time.Time
	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{docs: make(map[uuid.UUID]*Document), clock: time.Now()}
}

func (m *mockRepo) Create(_ context.Context, d *Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	m.clock = m.clock.Add(time.Second)
	d.CreatedAt = m.clock
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) ListByUploader(_ context.Context, uploader uuid.UUID) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Document{}
	for _, d := range m.docs {
		if d.UploadedBy == uploader {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// -- Mock collaborators --

type mockPatients map[uuid.UUID]*emergency.EmergencyPatient

func (m mockPatients) Get(_ context.Context, id uuid.UUID) (*emergency.EmergencyPatient, error) {
	p, ok := m[id]
	if !ok {
		return nil, emergency.ErrNotFound
	}
	return p, nil
}

type sent struct {
	recipient uuid.UUID
	draft     notification.Draft
}

type mockNotifier struct{ sent []sent }

func (n *mockNotifier) Notify(_ context.Context, recipient uuid.UUID, d notification.Draft) (*notification.Notification, error) {
	n.sent = append(n.sent, sent{recipient: recipient, draft: d})
	return &notification.Notification{ID: uuid.New()}, nil
}

type trailRecorder struct{ entries []*audit.AccessLog }

func (r *trailRecorder) Record(_ context.Context, e *audit.AccessLog) error {
	r.entries = append(r.entries, e)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	blobs    *blobstore.InMemoryBlobStore
	patients mockPatients
	notifier *mockNotifier
	doctor   uuid.UUID
	patient  *emergency.EmergencyPatient
}

func newFixture() *fixture {
	doctor := uuid.New()
	patient := &emergency.EmergencyPatient{ID: uuid.New(), FirstName: "John", LastName: "Doe", AssignedDoctor: &doctor}
	f := &fixture{
		repo:     newMockRepo(),
		blobs:    blobstore.NewInMemoryBlobStore(1024),
		patients: mockPatients{patient.ID: patient},
		notifier: &mockNotifier{},
		doctor:   doctor,
		patient:  patient,
	}
	f.svc = NewService(f.repo, f.blobs, f.patients, f.notifier, zerolog.Nop())
	return f
}

func nurse() Actor { return Actor{ID: uuid.New(), Roles: []string{auth.RoleNurse}} }

func (f *fixture) upload(t *testing.T, actor Actor, content string) *Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), actor, Upload{
		PatientID:   f.patient.ID,
		Type:        string(TypeTestResult),
		FileName:    "labs.txt",
		ContentType: "text/plain",
		Content:     strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return doc
}

// -- Tests --

func TestService_UploadNotifiesAssignedDoctor(t *testing.T) {
	f := newFixture()
	actor := nurse()

	doc := f.upload(t, actor, "potassium 4.1")

	if doc.UploadedBy != actor.ID || doc.PatientID != f.patient.ID {
		t.Errorf("unexpected ownership %+v", doc)
	}
	if doc.Size != int64(len("potassium 4.1")) || doc.Hash == "" || doc.BlobID == "" {
		t.Errorf("expected blob metadata copied, got %+v", doc)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.recipient != f.doctor || n.draft.Type != notification.TypePatientFileCreated {
		t.Errorf("unexpected notification %+v", n)
	}
	if n.draft.RelatedEntityType != notification.EntityMedicalDocument {
		t.Errorf("expected MedicalDocument entity, got %s", n.draft.RelatedEntityType)
	}
}

func TestService_UploadByAssignedDoctorSkipsSelfNotification(t *testing.T) {
	f := newFixture()
	f.upload(t, Actor{ID: f.doctor, Roles: []string{auth.RoleDoctor}}, "x")
	if len(f.notifier.sent) != 0 {
		t.Errorf("expected no self notification, got %+v", f.notifier.sent)
	}
}

func TestService_UploadValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, nurse(), Upload{PatientID: f.patient.ID, Type: "X-Ray", FileName: "a.txt", ContentType: "text/plain", Content: strings.NewReader("x")})
	if !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}

	_, err = f.svc.Upload(ctx, nurse(), Upload{PatientID: uuid.New(), Type: "General", FileName: "a.txt", ContentType: "text/plain", Content: strings.NewReader("x")})
	if !errors.Is(err, emergency.ErrNotFound) {
		t.Errorf("expected emergency.ErrNotFound, got %v", err)
	}

	_, err = f.svc.Upload(ctx, nurse(), Upload{PatientID: f.patient.ID, Type: "General", FileName: "a.txt", ContentType: "text/plain", Content: strings.NewReader(strings.Repeat("x", 2048))})
	if !errors.Is(err, blobstore.ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("expected no stored blobs, got %d", f.blobs.Len())
	}
}

func TestService_UploadRemovesBlobWhenRecordFails(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), nurse(), Upload{PatientID: f.patient.ID, Type: "General", FileName: "a.txt", ContentType: "text/plain", Content: strings.NewReader("x")})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.blobs.Len() != 0 {
		t.Errorf("expected orphaned blob removed, got %d", f.blobs.Len())
	}
}

func TestService_OpenPermissions(t *testing.T) {
	f := newFixture()
	owner := nurse()
	doc := f.upload(t, owner, "content")
	ctx := context.Background()

	for name, actor := range map[string]Actor{
		"uploader":        owner,
		"admin":           {ID: uuid.New(), Roles: []string{auth.RoleAdmin}},
		"assigned doctor": {ID: f.doctor, Roles: []string{auth.RoleDoctor}},
	} {
		_, rc, err := f.svc.Open(ctx, actor, doc.ID)
		if err != nil {
			t.Errorf("%s: expected access, got %v", name, err)
			continue
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "content" {
			t.Errorf("%s: unexpected content %q", name, data)
		}
	}

	if _, _, err := f.svc.Open(ctx, nurse(), doc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for another nurse, got %v", err)
	}
	if _, _, err := f.svc.Open(ctx, owner, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListMine(t *testing.T) {
	f := newFixture()
	me, other := nurse(), nurse()
	first := f.upload(t, me, "a")
	second := f.upload(t, me, "b")
	f.upload(t, other, "c")

	docs, err := f.svc.ListMine(context.Background(), me)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != second.ID || docs[1].ID != first.ID {
		t.Errorf("expected my two documents newest first, got %+v", docs)
	}
}

func TestService_DeleteUploaderOnly(t *testing.T) {
	f := newFixture()
	owner := nurse()
	doc := f.upload(t, owner, "a")
	ctx := context.Background()

	admin := Actor{ID: uuid.New(), Roles: []string{auth.RoleAdmin}}
	if err := f.svc.Delete(ctx, admin, doc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-uploader, got %v", err)
	}
	if err := f.svc.Delete(ctx, owner, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Error("expected content removed")
	}
	if err := f.svc.Delete(ctx, owner, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_AccessTrail(t *testing.T) {
	f := newFixture()
	rec := &trailRecorder{}
	f.svc.SetAuditor(rec)
	owner := nurse()
	ctx := context.Background()

	doc := f.upload(t, owner, "ecg")
	_, rc, err := f.svc.Open(ctx, Actor{ID: f.doctor, Roles: []string{auth.RoleDoctor}}, doc.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc.Close()
	if _, _, err := f.svc.Open(ctx, nurse(), doc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(ctx, owner, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(rec.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(rec.entries))
	}
	want := []struct {
		action audit.Action
		actor  uuid.UUID
		role   string
	}{
		{audit.ActionCreate, owner.ID, auth.RoleNurse},
		{audit.ActionRead, f.doctor, auth.RoleDoctor},
		{audit.ActionDelete, owner.ID, auth.RoleNurse},
	}
	for i, w := range want {
		e := rec.entries[i]
		if e.Action != w.action || e.ActorID != w.actor || e.ActorRole != w.role {
			t.Errorf("entry %d: expected %s by %s/%s, got %+v", i, w.action, w.actor, w.role, e)
		}
		if e.PatientID != f.patient.ID || e.ResourceID != doc.ID || e.ResourceType != audit.ResourceMedicalDocument {
			t.Errorf("entry %d: unexpected subject %+v", i, e)
		}
	}
}
