package alert

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository { return &alertRepoPG{pool: pool} }

func (r *alertRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const alertCols = `id, patient_id, clinic_id, emergency_type, details, triggered_by, status,
	notification_phase, created_at, resolved_at, resolution_notes, resolved_by`

func (r *alertRepoPG) scanAlert(row pgx.Row) (*EmergencyAlert, error) {
	var a EmergencyAlert
	err := row.Scan(&a.ID, &a.PatientID, &a.ClinicID, &a.EmergencyType, &a.Details, &a.TriggeredBy, &a.Status,
		&a.NotificationPhase, &a.CreatedAt, &a.ResolvedAt, &a.ResolutionNotes, &a.ResolvedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepoPG) Create(ctx context.Context, a *EmergencyAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_alert (id, patient_id, clinic_id, emergency_type, details, triggered_by,
			status, notification_phase, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.PatientID, a.ClinicID, a.EmergencyType, a.Details, a.TriggeredBy,
		a.Status, a.NotificationPhase, a.CreatedAt)
	return err
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	return r.scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM emergency_alert WHERE id = $1`, id))
}

func (r *alertRepoPG) Resolve(ctx context.Context, a *EmergencyAlert, from []Status) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var current Status
		err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM emergency_alert WHERE id = $1 FOR UPDATE`, a.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlertNotFound
		}
		if err != nil {
			return err
		}
		if !slices.Contains(from, current) {
			return fmt.Errorf("%w: alert %s is %s", ErrInvalidTransition, a.ID, current)
		}

		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE emergency_alert SET status=$2, resolved_at=$3, resolution_notes=$4, resolved_by=$5
			WHERE id = $1`,
			a.ID, a.Status, a.ResolvedAt, a.ResolutionNotes, a.ResolvedBy)
		return err
	})
}

func (r *alertRepoPG) SetPhase(ctx context.Context, id uuid.UUID, phase Phase) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE emergency_alert SET notification_phase=$2 WHERE id = $1`, id, phase)
	return err
}

func (r *alertRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*EmergencyAlert, int, error) {
	where, args := alertFilter(filter)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_alert`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM emergency_alert%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		alertCols, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*EmergencyAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func alertFilter(f ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.ClinicID != uuid.Nil {
		args = append(args, f.ClinicID)
		clauses = append(clauses, fmt.Sprintf("clinic_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *alertRepoPG) ListIncomplete(ctx context.Context, cutoff time.Time) ([]*EmergencyAlert, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM emergency_alert
		WHERE status = $1 AND notification_phase <> $2 AND created_at < $3
		ORDER BY created_at`,
		StatusActive, PhaseComplete, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*EmergencyAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Delivery Repository ===========

type deliveryRepoPG struct{ pool *pgxpool.Pool }

func NewDeliveryRepoPG(pool *pgxpool.Pool) DeliveryRepository { return &deliveryRepoPG{pool: pool} }

func (r *deliveryRepoPG) Record(ctx context.Context, o *DeliveryOutcome) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO alert_delivery (id, alert_id, audience, channel, destination, relationship,
			staff_id, success, error, attempted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.AlertID, o.Audience, o.Channel, o.Destination, o.Relationship,
		o.StaffID, o.Success, o.Error, o.AttemptedAt)
	return err
}

func (r *deliveryRepoPG) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*DeliveryOutcome, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, alert_id, audience, channel, destination, relationship, staff_id, success, error, attempted_at
		FROM alert_delivery WHERE alert_id = $1 ORDER BY attempted_at, id`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*DeliveryOutcome
	for rows.Next() {
		var o DeliveryOutcome
		if err := rows.Scan(&o.ID, &o.AlertID, &o.Audience, &o.Channel, &o.Destination, &o.Relationship,
			&o.StaffID, &o.Success, &o.Error, &o.AttemptedAt); err != nil {
			return nil, err
		}
		items = append(items, &o)
	}
	return items, rows.Err()
}

// =========== Directory Repository ===========

type directoryRepoPG struct{ pool *pgxpool.Pool }

func NewDirectoryRepoPG(pool *pgxpool.Pool) DirectoryRepository { return &directoryRepoPG{pool: pool} }

func (r *directoryRepoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, clinic_id, first_name, last_name, COALESCE(phone, ''), COALESCE(email, ''),
			COALESCE(emergency_contact_name, ''), COALESCE(emergency_contact_phone, '')
		FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.ClinicID, &p.FirstName, &p.LastName, &p.Phone, &p.Email,
			&p.EmergencyContactName, &p.EmergencyContactPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *directoryRepoPG) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(address, '') FROM clinic WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClinicNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *directoryRepoPG) ListStaff(ctx context.Context, clinicID uuid.UUID, roles []StaffRole) ([]*StaffMember, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, clinic_id, name, role, COALESCE(phone, ''), COALESCE(email, '')
		FROM staff WHERE clinic_id = $1 AND role = ANY($2) ORDER BY name, id`, clinicID, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*StaffMember
	for rows.Next() {
		var s StaffMember
		if err := rows.Scan(&s.ID, &s.ClinicID, &s.Name, &s.Role, &s.Phone, &s.Email); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}
