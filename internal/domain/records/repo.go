package records

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	// ListByUploader returns the uploader's documents, newest first.
	ListByUploader(ctx context.Context, uploader uuid.UUID) ([]*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
