package records

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/domain/emergency"
	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/platform/audit"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/blobstore"
	"github.com/edhub/edhub/internal/platform/metrics"
)

var (
	ErrInvalidType = errors.New("invalid document type")
	ErrForbidden   = errors.New("not allowed to access this document")
)

// PatientLookup resolves the emergency case a document belongs to.
type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*emergency.EmergencyPatient, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, d notification.Draft) (*notification.Notification, error)
}

// Actor is the authenticated user making a request.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

// Upload is a file received from a client.
type Upload struct {
	PatientID   uuid.UUID
	Type        string
	FileName    string
	ContentType string
	Content     io.Reader
}

type Service struct {
	repo     Repository
	blobs    blobstore.BlobStore
	patients PatientLookup
	notifier Notifier
	auditor  audit.Recorder
	logger   zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.BlobStore, patients PatientLookup, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, patients: patients, notifier: notifier, logger: logger}
}

// SetAuditor records document access to r.
func (s *Service) SetAuditor(r audit.Recorder) {
	s.auditor = r
}

func (s *Service) trail(ctx context.Context, actor Actor, doc *Document, action audit.Action) {
	e := audit.Entry(ctx, doc.PatientID, audit.ResourceMedicalDocument, doc.ID, action)
	e.ActorID = actor.ID
	if len(actor.Roles) > 0 {
		e.ActorRole = actor.Roles[0]
	}
	audit.Write(ctx, s.auditor, s.logger, e)
}

// Upload stores the content and records it against the case. The case's
// assigned doctor is told about the new file.
func (s *Service) Upload(ctx context.Context, actor Actor, up Upload) (*Document, error) {
	if !ValidType(up.Type) {
		return nil, fmt.Errorf("%w: must be one of General, Test Result, Prescription, Report", ErrInvalidType)
	}
	patient, err := s.patients.Get(ctx, up.PatientID)
	if err != nil {
		return nil, err
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    up.FileName,
		ContentType: up.ContentType,
		CreatedBy:   actor.ID.String(),
	}, up.Content)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		PatientID:   patient.ID,
		UploadedBy:  actor.ID,
		Type:        DocumentType(up.Type),
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		BlobID:      meta.ID,
		Hash:        meta.Hash,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if derr := s.blobs.Delete(ctx, meta.ID); derr != nil {
			s.logger.Error().Err(derr).Str("blob_id", meta.ID).Msg("failed to remove orphaned blob")
		}
		return nil, fmt.Errorf("record document: %w", err)
	}
	metrics.ObserveDocumentUpload(up.Type, doc.Size)
	s.trail(ctx, actor, doc, audit.ActionCreate)

	if patient.AssignedDoctor != nil && *patient.AssignedDoctor != actor.ID {
		if _, err := s.notifier.Notify(ctx, *patient.AssignedDoctor, notification.Draft{
			Type:              notification.TypePatientFileCreated,
			Message:           fmt.Sprintf("New %s document for %s: %s", doc.Type, patient.FullName(), doc.FileName),
			RelatedEntityID:   &doc.ID,
			RelatedEntityType: notification.EntityMedicalDocument,
			Payload: map[string]interface{}{
				"patientId":   patient.ID.String(),
				"patientName": patient.FullName(),
				"documentId":  doc.ID.String(),
				"fileName":    doc.FileName,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("failed to notify doctor of new document")
		}
	}
	return doc, nil
}

func (s *Service) ListMine(ctx context.Context, actor Actor) ([]*Document, error) {
	return s.repo.ListByUploader(ctx, actor.ID)
}

// Open returns the document content. The uploader, admins and the case's
// assigned doctor may read it.
func (s *Service) Open(ctx context.Context, actor Actor, id uuid.UUID) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !s.mayRead(ctx, actor, doc) {
		return nil, nil, ErrForbidden
	}
	rc, _, err := s.blobs.Download(ctx, doc.BlobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Str("document_id", doc.ID.String()).Str("blob_id", doc.BlobID).Msg("document content missing")
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	s.trail(ctx, actor, doc, audit.ActionRead)
	return doc, rc, nil
}

func (s *Service) mayRead(ctx context.Context, actor Actor, doc *Document) bool {
	if doc.UploadedBy == actor.ID || auth.HasRole(actor.Roles, auth.RoleAdmin) {
		return true
	}
	p, err := s.patients.Get(ctx, doc.PatientID)
	if err != nil {
		return false
	}
	return p.AssignedDoctor != nil && *p.AssignedDoctor == actor.ID
}

// Delete removes a document. Only its uploader may do so.
func (s *Service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.UploadedBy != actor.ID {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.trail(ctx, actor, doc, audit.ActionDelete)
	if err := s.blobs.Delete(ctx, doc.BlobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("blob_id", doc.BlobID).Msg("failed to remove document content")
	}
	return nil
}
