package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/db"
)

// Action is what an actor did with a piece of patient data.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionDelete Action = "delete"
)

// Resource types that carry patient data.
const (
	ResourceEmergencyPatient = "EmergencyPatient"
	ResourceMedicalDocument  = "MedicalDocument"
)

// AccessLog is one row of the patient data access trail.
type AccessLog struct {
	ID           uuid.UUID `json:"_id"`
	PatientID    uuid.UUID `json:"patientId"`
	ActorID      uuid.UUID `json:"actorId"`
	ActorRole    string    `json:"actorRole"`
	ResourceType string    `json:"resourceType"`
	ResourceID   uuid.UUID `json:"resourceId"`
	Action       Action    `json:"action"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	AccessedAt   time.Time `json:"accessedAt"`
}

// Recorder persists access log entries.
type Recorder interface {
	Record(ctx context.Context, entry *AccessLog) error
}

// Entry builds an access log for the identity and request carried by ctx.
// ActorID is uuid.Nil when ctx is not authenticated.
func Entry(ctx context.Context, patientID uuid.UUID, resourceType string, resourceID uuid.UUID, action Action) *AccessLog {
	e := &AccessLog{
		PatientID:    patientID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
	}
	if id, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		e.ActorID = id
	}
	if roles := auth.RolesFromContext(ctx); len(roles) > 0 {
		e.ActorRole = roles[0]
	}
	info := RequestInfoFromContext(ctx)
	e.IPAddress = info.IPAddress
	e.UserAgent = info.UserAgent
	e.RequestID = info.RequestID
	return e
}

// Write records entry and logs instead of failing. Anonymous entries and a
// nil recorder are ignored.
func Write(ctx context.Context, r Recorder, logger zerolog.Logger, entry *AccessLog) {
	if r == nil || entry == nil || entry.ActorID == uuid.Nil {
		return
	}
	if err := r.Record(ctx, entry); err != nil {
		logger.Error().Err(err).
			Str("patient_id", entry.PatientID.String()).
			Str("actor_id", entry.ActorID.String()).
			Str("action", string(entry.Action)).
			Msg("failed to write access log")
	}
}

// Logger writes the access trail to the access_log table.
type Logger struct {
	pool *pgxpool.Pool
}

func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

func (l *Logger) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return l.pool
}

func (l *Logger) Record(ctx context.Context, e *AccessLog) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.AccessedAt.IsZero() {
		e.AccessedAt = time.Now().UTC()
	}
	_, err := l.conn(ctx).Exec(ctx, `
		INSERT INTO access_log (
			id, patient_id, actor_id, actor_role, resource_type, resource_id,
			action, ip_address, user_agent, request_id, accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.PatientID, e.ActorID, e.ActorRole, e.ResourceType, e.ResourceID,
		string(e.Action), e.IPAddress, e.UserAgent, e.RequestID, e.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert access log: %w", err)
	}
	return nil
}

// ListForPatient returns the newest entries for a patient first.
func (l *Logger) ListForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*AccessLog, error) {
	rows, err := l.conn(ctx).Query(ctx, `
		SELECT id, patient_id, actor_id, actor_role, resource_type, resource_id,
			action, ip_address, user_agent, request_id, accessed_at
		FROM access_log
		WHERE patient_id = $1
		ORDER BY accessed_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list access log: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*AccessLog, error) {
	defer rows.Close()
	items := []*AccessLog{}
	for rows.Next() {
		var e AccessLog
		var action string
		if err := rows.Scan(&e.ID, &e.PatientID, &e.ActorID, &e.ActorRole, &e.ResourceType, &e.ResourceID,
			&action, &e.IPAddress, &e.UserAgent, &e.RequestID, &e.AccessedAt); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		items = append(items, &e)
	}
	return items, rows.Err()
}
