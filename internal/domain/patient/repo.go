package patient

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List. DoctorScope restricts results to patients the
// doctor is the primary doctor of or has an appointment with.
type ListFilter struct {
	DoctorScope     *uuid.UUID
	PrimaryDoctorID *uuid.UUID
	AdmissionType   string
}

type Repository interface {
	// Create inserts p. A taken patient_id is reported as idgen.ErrCollision;
	// a taken (first_name, mobile_number) pair as a Conflict.
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error)
	MaxPatientID(ctx context.Context, prefix string) (string, error)
	// HasAppointmentWith reports whether the patient has any appointment
	// assigned to doctorID.
	HasAppointmentWith(ctx context.Context, id, doctorID uuid.UUID) (bool, error)
}
