package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// CreateForRoles stores one copy of tmpl for every user holding one of
	// roles and returns the stored rows.
	CreateForRoles(ctx context.Context, roles []string, tmpl *Notification) ([]*Notification, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	// MarkRead returns ErrNotFound unless id belongs to recipientID.
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (*Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, recipientID uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
