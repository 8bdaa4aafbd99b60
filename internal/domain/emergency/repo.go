package emergency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("emergency patient not found")

type Repository interface {
	Create(ctx context.Context, p *EmergencyPatient) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error)
	// GetForUpdate reads the case and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error)
	// List returns every case, newest first.
	List(ctx context.Context) ([]*EmergencyPatient, error)
	AssignDoctor(ctx context.Context, id, doctorID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*EmergencyPatient, error)
	// Delete removes the case and returns the deleted row.
	Delete(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error)
	// CountActiveSince counts open cases created at or after since,
	// excluding excludeID.
	CountActiveSince(ctx context.Context, since time.Time, excludeID uuid.UUID) (int, error)
}
