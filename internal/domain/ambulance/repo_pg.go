package ambulance

import (
	"context"
	"errors"

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

const ambulanceCols = `a.id, a.name, a.status, a.latitude, a.longitude, a.destination,
	ARRAY(SELECT t.user_id::text FROM ambulance_team t WHERE t.ambulance_id = a.id ORDER BY t.added_at),
	a.last_updated, a.created_at`

func scanAmbulance(row pgx.Row) (*Ambulance, error) {
	var (
		a        Ambulance
		lat, lng *float64
		team     []string
	)
	err := row.Scan(&a.ID, &a.Name, &a.Status, &lat, &lng, &a.Destination, &team, &a.LastUpdated, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		a.Location = &Location{Latitude: *lat, Longitude: *lng}
	}
	a.Team = make([]uuid.UUID, 0, len(team))
	for _, s := range team {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		a.Team = append(a.Team, id)
	}
	return &a, nil
}

func (r *repoPG) collect(rows pgx.Rows, err error) ([]*Ambulance, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Ambulance{}
	for rows.Next() {
		a, err := scanAmbulance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, a *Ambulance) error {
	a.ID = uuid.New()
	var lat, lng *float64
	if a.Location != nil {
		lat, lng = &a.Location.Latitude, &a.Location.Longitude
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ambulances (id, name, status, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING last_updated, created_at`,
		a.ID, a.Name, a.Status, lat, lng,
	).Scan(&a.LastUpdated, &a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	a.Team = []uuid.UUID{}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ambulance, error) {
	return scanAmbulance(r.conn(ctx).QueryRow(ctx, `SELECT `+ambulanceCols+` FROM ambulances a WHERE a.id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Ambulance, error) {
	return scanAmbulance(r.conn(ctx).QueryRow(ctx,
		`SELECT `+ambulanceCols+` FROM ambulances a WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (r *repoPG) List(ctx context.Context, status Status) ([]*Ambulance, error) {
	if status == "" {
		return r.collect(r.conn(ctx).Query(ctx, `SELECT `+ambulanceCols+` FROM ambulances a ORDER BY a.name`))
	}
	return r.collect(r.conn(ctx).Query(ctx,
		`SELECT `+ambulanceCols+` FROM ambulances a WHERE a.status = $1 ORDER BY a.name`, status))
}

func (r *repoPG) ListForMember(ctx context.Context, userID uuid.UUID) ([]*Ambulance, error) {
	return r.collect(r.conn(ctx).Query(ctx, `
		SELECT `+ambulanceCols+` FROM ambulances a
		JOIN ambulance_team m ON m.ambulance_id = a.id
		WHERE m.user_id = $1
		ORDER BY a.name`, userID))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM ambulances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Ambulance, error) {
	return scanAmbulance(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulances a SET status = $2, last_updated = NOW()
		WHERE a.id = $1
		RETURNING `+ambulanceCols, id, status))
}

func (r *repoPG) SetLocation(ctx context.Context, id uuid.UUID, loc Location) (*Ambulance, error) {
	return scanAmbulance(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulances a SET latitude = $2, longitude = $3, last_updated = NOW()
		WHERE a.id = $1
		RETURNING `+ambulanceCols, id, loc.Latitude, loc.Longitude))
}

func (r *repoPG) SetDestination(ctx context.Context, id uuid.UUID, destination string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE ambulances SET destination = $2, last_updated = NOW() WHERE id = $1`, id, destination)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ClaimAvailable(ctx context.Context, destination string) (*Ambulance, error) {
	// SKIP LOCKED lets concurrent dispatches claim different ambulances.
	return scanAmbulance(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulances a SET status = 'on_mission', destination = $1, last_updated = NOW()
		WHERE a.id = (
			SELECT id FROM ambulances
			WHERE status = 'available'
			ORDER BY last_updated
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+ambulanceCols, destination))
}

func (r *repoPG) Release(ctx context.Context, id uuid.UUID) (*Ambulance, error) {
	return scanAmbulance(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulances a SET status = 'available', destination = NULL, last_updated = NOW()
		WHERE a.id = $1 AND a.status = 'on_mission'
		RETURNING `+ambulanceCols, id))
}

func (r *repoPG) AddTeamMember(ctx context.Context, id, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ambulance_team (ambulance_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, id, userID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) RemoveTeamMember(ctx context.Context, id, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM ambulance_team WHERE ambulance_id = $1 AND user_id = $2`, id, userID)
	return err
}

const requestCols = `id, patient_name, patient_phone, latitude, longitude, ambulance_id,
	status, emergency_type, description, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var q Request
	err := row.Scan(&q.ID, &q.PatientName, &q.PatientPhone, &q.Location.Latitude, &q.Location.Longitude,
		&q.AmbulanceID, &q.Status, &q.EmergencyType, &q.Description, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repoPG) CreateRequest(ctx context.Context, q *Request) error {
	q.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ambulance_requests (id, patient_name, patient_phone, latitude, longitude,
			status, emergency_type, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		q.ID, q.PatientName, q.PatientPhone, q.Location.Latitude, q.Location.Longitude,
		q.Status, q.EmergencyType, q.Description,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *repoPG) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM ambulance_requests WHERE id = $1`, id))
}

func (r *repoPG) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM ambulance_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) ListRequests(ctx context.Context) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+requestCols+` FROM ambulance_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Request{}
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func (r *repoPG) NextPendingRequest(ctx context.Context) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+requestCols+` FROM ambulance_requests
		WHERE status = 'pending' AND ambulance_id IS NULL
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`))
}

func (r *repoPG) AssignRequest(ctx context.Context, id, ambulanceID uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulance_requests SET ambulance_id = $2, status = 'accepted', updated_at = NOW()
		WHERE id = $1
		RETURNING `+requestCols, id, ambulanceID))
}

func (r *repoPG) SetRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulance_requests SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+requestCols, id, status))
}

func (r *repoPG) SetRequestLocation(ctx context.Context, id uuid.UUID, loc Location) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE ambulance_requests SET latitude = $2, longitude = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+requestCols, id, loc.Latitude, loc.Longitude))
}
