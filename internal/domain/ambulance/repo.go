package ambulance

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("ambulance not found")
	ErrRequestNotFound = errors.New("ambulance request not found")
	ErrDuplicate       = errors.New("ambulance name already registered")
)

type Repository interface {
	Create(ctx context.Context, a *Ambulance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ambulance, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Ambulance, error)
	// List returns the fleet by name; an empty status means every ambulance.
	List(ctx context.Context, status Status) ([]*Ambulance, error)
	// ListForMember returns the ambulances userID crews.
	ListForMember(ctx context.Context, userID uuid.UUID) ([]*Ambulance, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Ambulance, error)
	SetLocation(ctx context.Context, id uuid.UUID, loc Location) (*Ambulance, error)
	SetDestination(ctx context.Context, id uuid.UUID, destination string) error
	// ClaimAvailable puts the longest idle available ambulance on a mission
	// to destination. It returns ErrNotFound when none is free.
	ClaimAvailable(ctx context.Context, destination string) (*Ambulance, error)
	// Release ends the mission of id and makes it available again.
	Release(ctx context.Context, id uuid.UUID) (*Ambulance, error)
	AddTeamMember(ctx context.Context, id, userID uuid.UUID) error
	RemoveTeamMember(ctx context.Context, id, userID uuid.UUID) error

	CreateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	// ListRequests returns every request, newest first.
	ListRequests(ctx context.Context) ([]*Request, error)
	// NextPendingRequest locks the oldest unassigned request. It returns
	// ErrRequestNotFound when the queue is empty.
	NextPendingRequest(ctx context.Context) (*Request, error)
	AssignRequest(ctx context.Context, id, ambulanceID uuid.UUID) (*Request, error)
	SetRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus) (*Request, error)
	SetRequestLocation(ctx context.Context, id uuid.UUID, loc Location) (*Request, error)
}
