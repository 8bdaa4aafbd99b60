package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edhub/edhub/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const notificationCols = `id, recipient_id, type, message, is_read,
	related_entity_id, related_entity_type, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Message, &n.IsRead,
		&n.RelatedEntityID, &n.RelatedEntityType, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &n, err
}

func collect(rows pgx.Rows) ([]*Notification, error) {
	defer rows.Close()
	items := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, type, message, is_read, related_entity_id, related_entity_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		n.ID, n.RecipientID, n.Type, n.Message, n.IsRead, n.RelatedEntityID, n.RelatedEntityType,
	).Scan(&n.CreatedAt)
}

func (r *repoPG) CreateForRoles(ctx context.Context, roles []string, tmpl *Notification) ([]*Notification, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		INSERT INTO notifications (id, recipient_id, type, message, related_entity_id, related_entity_type)
		SELECT gen_random_uuid(), u.id, $2, $3, $4, $5
		FROM users u
		WHERE u.role = ANY($1)
		RETURNING `+notificationCols,
		roles, tmpl.Type, tmpl.Message, tmpl.RelatedEntityID, tmpl.RelatedEntityType)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*Notification, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+notificationCols+` FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, recipientID).Scan(&n)
	return n, err
}

func (r *repoPG) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (*Notification, error) {
	return scanNotification(r.conn(ctx).QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+notificationCols, id, recipientID))
}

func (r *repoPG) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
