package clinical

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/ist"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const constraintVitalsAppointment = "vitals_appointment_id_fkey"

func mapVitalsError(err error) error {
	if mapped := db.ActorViolation(err); mapped != nil {
		return mapped
	}
	if constraint, ok := db.IsForeignKeyViolation(err); ok && constraint == constraintVitalsAppointment {
		return apperr.NotFound("appointment")
	}
	return err
}

const vitalsCols = `id, appointment_id, temperature, height, weight, blood_pressure, heart_rate,
	respiratory_rate, oxygen_saturation, bmi, blood_sugar, recorded_by, recorded_at, updated_at`

func scanVitals(row pgx.Row) (*Vitals, error) {
	var v Vitals
	err := row.Scan(&v.ID, &v.AppointmentID, &v.Temperature, &v.Height, &v.Weight, &v.BloodPressure, &v.HeartRate,
		&v.RespiratoryRate, &v.OxygenSaturation, &v.BMI, &v.BloodSugar, &v.RecordedBy, &v.RecordedAt, &v.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("vitals")
		}
		return nil, err
	}
	v.RecordedAt = ist.ToIST(v.RecordedAt)
	v.UpdatedAt = ist.ToIST(v.UpdatedAt)
	return &v, nil
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Vitals, error) {
	return scanVitals(r.conn(ctx).QueryRow(ctx, `SELECT `+vitalsCols+` FROM vitals WHERE appointment_id = $1`, appointmentID))
}

func (r *repoPG) Create(ctx context.Context, v *Vitals) error {
	v.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vitals (id, appointment_id, temperature, height, weight, blood_pressure, heart_rate,
			respiratory_rate, oxygen_saturation, bmi, blood_sugar, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING recorded_at, updated_at`,
		v.ID, v.AppointmentID, v.Temperature, v.Height, v.Weight, v.BloodPressure, v.HeartRate,
		v.RespiratoryRate, v.OxygenSaturation, v.BMI, v.BloodSugar, v.RecordedBy,
	).Scan(&v.RecordedAt, &v.UpdatedAt)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrVitalsExist
		}
		return mapVitalsError(err)
	}
	v.RecordedAt = ist.ToIST(v.RecordedAt)
	v.UpdatedAt = ist.ToIST(v.UpdatedAt)
	return nil
}

func (r *repoPG) Update(ctx context.Context, v *Vitals) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE vitals SET temperature=$2, height=$3, weight=$4, blood_pressure=$5, heart_rate=$6,
			respiratory_rate=$7, oxygen_saturation=$8, bmi=$9, blood_sugar=$10, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.Temperature, v.Height, v.Weight, v.BloodPressure, v.HeartRate,
		v.RespiratoryRate, v.OxygenSaturation, v.BMI, v.BloodSugar,
	).Scan(&v.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("vitals")
		}
		return err
	}
	v.UpdatedAt = ist.ToIST(v.UpdatedAt)
	return nil
}
