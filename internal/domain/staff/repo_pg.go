package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const userCols = `id, username, email, password_hash, role, specialization,
	is_available, is_validated, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Specialization,
		&u.IsAvailable, &u.IsValidated, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, specialization, is_available, is_validated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.Specialization, u.IsAvailable, u.IsValidated,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetByLogin(ctx context.Context, login string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE username = $1 OR email = $2`, login, strings.ToLower(login)))
}

func (r *repoPG) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	where := ``
	args := []interface{}{}
	if role != "" {
		where = ` WHERE role = $1`
		args = append(args, role)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users`+where+
		fmt.Sprintf(` ORDER BY created_at LIMIT $%d OFFSET $%d`, n-1, n), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET is_available = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userCols, id, available))
}

func (r *repoPG) SetValidated(ctx context.Context, id uuid.UUID, validated bool) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET is_validated = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userCols, id, validated))
}

func (r *repoPG) ClaimAvailableDoctor(ctx context.Context) (*User, error) {
	// SKIP LOCKED lets concurrent intakes claim different doctors.
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET is_available = FALSE, updated_at = NOW()
		WHERE id = (
			SELECT id FROM users
			WHERE role = 'doctor' AND is_available AND is_validated
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+userCols))
}

func (r *repoPG) CountAvailableDoctors(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'doctor' AND is_available AND is_validated`).Scan(&n)
	return n, err
}
