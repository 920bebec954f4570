package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/ist"
)

const constraintSlot = "appointment_patient_id_appointment_date_key"

// -- Appointment --

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

// Table and Columns select appointments joined with the patient's primary
// doctor, as read by Scan.
const (
	Table   = `appointment LEFT JOIN patient ON patient.id = appointment.patient_id`
	Columns = `appointment.id, appointment.patient_id, appointment.doctor_id, appointment.receptionist_id,
	appointment.status, appointment.appointment_date, appointment.is_emergency, appointment.reason, appointment.notes,
	appointment.created_by, appointment.updated_by, appointment.created_at, appointment.updated_at,
	patient.primary_doctor_id`
)

func Scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ReceptionistID,
		&a.Status, &a.AppointmentDate, &a.IsEmergency, &a.Reason, &a.Notes,
		&a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt, &a.PrimaryDoctorID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}
	a.AppointmentDate = ist.ToIST(a.AppointmentDate)
	a.CreatedAt = ist.ToIST(a.CreatedAt)
	a.UpdatedAt = ist.ToIST(a.UpdatedAt)
	return &a, nil
}

// ApplyDoctorScope limits q (over Table) to appointments visible to doctorID.
func ApplyDoctorScope(q *db.Query, doctorID uuid.UUID) {
	p := q.Arg(doctorID)
	q.Where("(appointment.doctor_id = " + p + " OR patient.primary_doctor_id = " + p + ")")
}

func mapWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintSlot {
		return ErrSlotTaken
	}
	if mapped := db.ActorViolation(err); mapped != nil {
		return mapped
	}
	if constraint, ok := db.IsForeignKeyViolation(err); ok {
		switch constraint {
		case "appointment_doctor_id_fkey":
			return apperr.Field("doctor_id", "doctor does not exist")
		case "appointment_patient_id_fkey":
			return apperr.Field("patient_id", "patient does not exist")
		}
	}
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, receptionist_id, status, appointment_date,
			is_emergency, reason, notes, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ReceptionistID, a.Status, a.AppointmentDate,
		a.IsEmergency, a.Reason, a.Notes, a.CreatedBy, a.UpdatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	a.CreatedAt = ist.ToIST(a.CreatedAt)
	a.UpdatedAt = ist.ToIST(a.UpdatedAt)
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return Scan(r.conn(ctx).QueryRow(ctx, `SELECT `+Columns+` FROM `+Table+` WHERE appointment.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET doctor_id=$2, status=$3, appointment_date=$4, is_emergency=$5,
			reason=$6, notes=$7, updated_by=$8, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorID, a.Status, a.AppointmentDate, a.IsEmergency, a.Reason, a.Notes, a.UpdatedBy,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("appointment")
		}
		return mapWriteError(err)
	}
	a.UpdatedAt = ist.ToIST(a.UpdatedAt)
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	q := db.NewQuery(Table, Columns)
	if f.DoctorScope != nil {
		ApplyDoctorScope(q, *f.DoctorScope)
	}
	if f.Status != "" {
		q.Eq("appointment.status", f.Status)
	}
	if f.PatientID != nil {
		q.Eq("appointment.patient_id", *f.PatientID)
	}
	if f.DoctorID != nil {
		q.Eq("appointment.doctor_id", *f.DoctorID)
	}
	if f.From != nil {
		q.Where("appointment.appointment_date >= ?", *f.From)
	}
	if f.To != nil {
		q.Where("appointment.appointment_date < ?", *f.To)
	}
	q.OrderBy("appointment.appointment_date DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := Scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("appointment list: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *appointmentRepoPG) ListIDsByPatient(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM appointment WHERE patient_id = $1 AND status <> $2
		ORDER BY appointment_date`, patientID, StatusCanceled)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, patientID uuid.UUID, ts time.Time, excludeID *uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE patient_id = $1 AND appointment_date = $2 AND ($3::uuid IS NULL OR id <> $3)
		)`, patientID, ts, excludeID).Scan(&taken)
	return taken, err
}

// -- Monitored appointments --

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository { return &auditRepoPG{pool: pool} }

func (r *auditRepoPG) Insert(ctx context.Context, m *MonitoredAppointment) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO monitored_appointment (id, appointment_id, actor_id, actor_name, action, before, after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.AppointmentID, m.ActorID, m.ActorName, m.Action, m.Before, m.After, m.CreatedAt)
	if mapped := db.ActorViolation(err); mapped != nil {
		return mapped
	}
	return err
}

func (r *auditRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*MonitoredAppointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, appointment_id, actor_id, actor_name, action, before, after, created_at
		FROM monitored_appointment WHERE appointment_id = $1 ORDER BY created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MonitoredAppointment
	for rows.Next() {
		var m MonitoredAppointment
		if err := rows.Scan(&m.ID, &m.AppointmentID, &m.ActorID, &m.ActorName, &m.Action, &m.Before, &m.After, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = ist.ToIST(m.CreatedAt)
		m.Before.AppointmentDate = ist.ToIST(m.Before.AppointmentDate)
		m.After.AppointmentDate = ist.ToIST(m.After.AppointmentDate)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// -- Directory --

type directoryPG struct{ pool *pgxpool.Pool }

// NewDirectoryPG reads doctors from staff_user and patients from patient.
func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (d *directoryPG) Doctor(ctx context.Context, id uuid.UUID) (*DoctorInfo, error) {
	var info DoctorInfo
	var first, last string
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, first_name, last_name, email, specialization FROM staff_user
		WHERE id = $1 AND user_type = 'doctor' AND is_active`, id,
	).Scan(&info.ID, &first, &last, &info.Email, &info.Specialization)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("doctor")
		}
		return nil, err
	}
	info.Name = joinName(first, last)
	return &info, nil
}

func (d *directoryPG) Patient(ctx context.Context, id uuid.UUID) (*PatientInfo, error) {
	var info PatientInfo
	var first, last string
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		SELECT id, patient_id, first_name, last_name, email, mobile_number, primary_doctor_id
		FROM patient WHERE id = $1`, id,
	).Scan(&info.ID, &info.PatientID, &first, &last, &info.Email, &info.Phone, &info.PrimaryDoctorID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	info.Name = joinName(first, last)
	return &info, nil
}

func joinName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}
