package staff

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already registered")
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByLogin looks a user up by username or email.
	GetByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context, role string, limit, offset int) ([]*User, int, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*User, error)
	SetValidated(ctx context.Context, id uuid.UUID, validated bool) (*User, error)
	// ClaimAvailableDoctor marks the longest-registered available, validated
	// doctor busy and returns it. It returns ErrNotFound when none is free.
	ClaimAvailableDoctor(ctx context.Context) (*User, error)
	CountAvailableDoctors(ctx context.Context) (int, error)
}
