package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/idgen"
	"github.com/hms/hms/internal/platform/ist"
)

const (
	constraintPatientID     = "patient_patient_id_key"
	constraintNameMobile    = "patient_first_name_mobile_number_key"
	constraintPrimaryDoctor = "patient_primary_doctor_id_fkey"
)

var ErrDuplicate = apperr.Conflict("a patient with this first name and mobile number already exists")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

// Columns is the select list understood by Scan.
const Columns = `id, patient_id, first_name, last_name, date_of_birth, age, gender, mobile_number,
	alternate_number, email, address, city, state, pincode, blood_group, allergies, medical_history,
	current_medications, family_history, primary_doctor_id, admission_type, payment_mode,
	insurance_provider, insurance_policy_number, created_by, updated_by, created_at, updated_at`

// Scan reads one row selected with Columns.
func Scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Age, &p.Gender, &p.MobileNumber,
		&p.AlternateNumber, &p.Email, &p.Address, &p.City, &p.State, &p.Pincode, &p.BloodGroup, &p.Allergies, &p.MedicalHistory,
		&p.CurrentMedications, &p.FamilyHistory, &p.PrimaryDoctorID, &p.AdmissionType, &p.PaymentMode,
		&p.InsuranceProvider, &p.InsurancePolicyNumber, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	p.CreatedAt = ist.ToIST(p.CreatedAt)
	p.UpdatedAt = ist.ToIST(p.UpdatedAt)
	return &p, nil
}

// ApplyDoctorScope limits q (over the patient table) to patients tied to
// doctorID as primary doctor or through an appointment.
func ApplyDoctorScope(q *db.Query, doctorID uuid.UUID) {
	p := q.Arg(doctorID)
	q.Where("(patient.primary_doctor_id = " + p +
		" OR EXISTS (SELECT 1 FROM appointment a WHERE a.patient_id = patient.id AND a.doctor_id = " + p + "))")
}

func mapWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case constraintPatientID:
			return idgen.ErrCollision
		case constraintNameMobile:
			return ErrDuplicate
		}
		return apperr.Conflict("patient already exists")
	}
	if mapped := db.ActorViolation(err); mapped != nil {
		return mapped
	}
	if constraint, ok := db.IsForeignKeyViolation(err); ok && constraint == constraintPrimaryDoctor {
		return apperr.Field("primary_doctor_id", "doctor does not exist")
	}
	return err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, patient_id, first_name, last_name, date_of_birth, age, gender, mobile_number,
			alternate_number, email, address, city, state, pincode, blood_group, allergies, medical_history,
			current_medications, family_history, primary_doctor_id, admission_type, payment_mode,
			insurance_provider, insurance_policy_number, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Age, p.Gender, p.MobileNumber,
		p.AlternateNumber, p.Email, p.Address, p.City, p.State, p.Pincode, p.BloodGroup, p.Allergies, p.MedicalHistory,
		p.CurrentMedications, p.FamilyHistory, p.PrimaryDoctorID, p.AdmissionType, p.PaymentMode,
		p.InsuranceProvider, p.InsurancePolicyNumber, p.CreatedBy, p.UpdatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	p.CreatedAt = ist.ToIST(p.CreatedAt)
	p.UpdatedAt = ist.ToIST(p.UpdatedAt)
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return Scan(r.conn(ctx).QueryRow(ctx, `SELECT `+Columns+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return Scan(r.conn(ctx).QueryRow(ctx, `SELECT `+Columns+` FROM patient WHERE patient_id = $1`, patientID))
}

// Update writes every mutable column. patient_id and created_* are never
// touched.
func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, age=$5, gender=$6, mobile_number=$7,
			alternate_number=$8, email=$9, address=$10, city=$11, state=$12, pincode=$13, blood_group=$14,
			allergies=$15, medical_history=$16, current_medications=$17, family_history=$18,
			primary_doctor_id=$19, admission_type=$20, payment_mode=$21, insurance_provider=$22,
			insurance_policy_number=$23, updated_by=$24, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Age, p.Gender, p.MobileNumber,
		p.AlternateNumber, p.Email, p.Address, p.City, p.State, p.Pincode, p.BloodGroup,
		p.Allergies, p.MedicalHistory, p.CurrentMedications, p.FamilyHistory,
		p.PrimaryDoctorID, p.AdmissionType, p.PaymentMode, p.InsuranceProvider,
		p.InsurancePolicyNumber, p.UpdatedBy,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("patient")
		}
		return mapWriteError(err)
	}
	p.UpdatedAt = ist.ToIST(p.UpdatedAt)
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	q := db.NewQuery("patient", Columns)
	if f.DoctorScope != nil {
		ApplyDoctorScope(q, *f.DoctorScope)
	}
	if f.PrimaryDoctorID != nil {
		q.Eq("primary_doctor_id", *f.PrimaryDoctorID)
	}
	if f.AdmissionType != "" {
		q.Eq("admission_type", f.AdmissionType)
	}
	q.OrderBy("created_at DESC, patient_id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := Scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

// MaxPatientID orders by length first so KHOP011000 sorts after KHOP01999.
func (r *repoPG) MaxPatientID(ctx context.Context, prefix string) (string, error) {
	var id string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id FROM patient
		WHERE patient_id LIKE $1 || '%'
		ORDER BY length(patient_id) DESC, patient_id DESC
		LIMIT 1`, prefix).Scan(&id)
	if err != nil {
		if db.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (r *repoPG) HasAppointmentWith(ctx context.Context, id, doctorID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointment WHERE patient_id = $1 AND doctor_id = $2)`, id, doctorID).Scan(&ok)
	return ok, err
}
