package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List. Zero fields are ignored.
type ListFilter struct {
	// DoctorScope limits results to appointments assigned to the doctor or
	// whose patient has the doctor as primary doctor.
	DoctorScope *uuid.UUID
	Status      string
	PatientID   *uuid.UUID
	DoctorID    *uuid.UUID
	From, To    *time.Time
}

type Repository interface {
	// Create inserts a. A taken (patient, appointment_date) pair is reported
	// as ErrSlotTaken.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	// ListIDsByPatient returns the patient's appointments that are not
	// canceled, oldest first.
	ListIDsByPatient(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
	// SlotTaken reports whether the patient already has an appointment at
	// exactly ts, ignoring excludeID.
	SlotTaken(ctx context.Context, patientID uuid.UUID, ts time.Time, excludeID *uuid.UUID) (bool, error)
}

// AuditRepository stores Change Auditor entries. Entries are never updated.
type AuditRepository interface {
	Insert(ctx context.Context, m *MonitoredAppointment) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*MonitoredAppointment, error)
}

// DoctorInfo and PatientInfo are the parts of staff and patient records the
// scheduling domain reads.
type DoctorInfo struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Specialization *string
}

type PatientInfo struct {
	ID              uuid.UUID
	PatientID       string
	Name            string
	Email           *string
	Phone           string
	PrimaryDoctorID *uuid.UUID
}

// Directory resolves the people an appointment refers to. Doctor returns
// NotFound for ids that are not active doctors.
type Directory interface {
	Doctor(ctx context.Context, id uuid.UUID) (*DoctorInfo, error)
	Patient(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
}
