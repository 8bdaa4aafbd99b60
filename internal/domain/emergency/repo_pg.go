package emergency

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

const patientCols = `p.id, p.first_name, p.last_name, p.date_of_birth::text, p.gender, p.phone_number,
	p.email, p.address, p.emergency_contact, p.insurance_info, p.allergies,
	p.current_medications, p.medical_history, p.current_symptoms, p.pain_level,
	p.emergency_level, p.status, p.assigned_doctor, u.username, p.arrival_time,
	p.created_at, p.updated_at`

const patientFrom = ` FROM emergency_patients p LEFT JOIN users u ON u.id = p.assigned_doctor`

func scanPatient(row pgx.Row) (*EmergencyPatient, error) {
	var p EmergencyPatient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.PhoneNumber,
		&p.Email, &p.Address, &p.EmergencyContact, &p.InsuranceInfo, &p.Allergies,
		&p.CurrentMedications, &p.MedicalHistory, &p.Symptoms, &p.PainLevel,
		&p.EmergencyLevel, &p.Status, &p.AssignedDoctor, &p.AssignedDoctorName, &p.ArrivalTime,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *EmergencyPatient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_patients (id, first_name, last_name, date_of_birth, gender, phone_number,
			email, address, emergency_contact, insurance_info, allergies,
			current_medications, medical_history, current_symptoms, pain_level,
			emergency_level, status)
		VALUES ($1,$2,$3,$4::text::date,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING arrival_time, created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.PhoneNumber,
		p.Email, p.Address, p.EmergencyContact, p.InsuranceInfo, p.Allergies,
		p.CurrentMedications, p.MedicalHistory, p.Symptoms, p.PainLevel,
		p.EmergencyLevel, p.Status,
	).Scan(&p.ArrivalTime, &p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+patientFrom+` WHERE p.id = $1 FOR UPDATE OF p`, id))
}

func (r *repoPG) List(ctx context.Context) ([]*EmergencyPatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+patientFrom+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*EmergencyPatient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) AssignDoctor(ctx context.Context, id, doctorID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE emergency_patients SET assigned_doctor = $2, updated_at = NOW() WHERE id = $1`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*EmergencyPatient, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE emergency_patients SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (*EmergencyPatient, error) {
	p, err := r.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM emergency_patients WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *repoPG) CountActiveSince(ctx context.Context, since time.Time, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM emergency_patients
		WHERE created_at >= $1 AND id <> $2
			AND status IN ('registered', 'under_examination', 'doctor_assigned', 'doctor_en_route')`,
		since, excludeID).Scan(&n)
	return n, err
}
