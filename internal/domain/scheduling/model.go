package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. The last three are set by cancel and reschedule.
const (
	StatusBooked      = "booked"
	StatusArrived     = "arrived"
	StatusOnGoing     = "on-going"
	StatusReviewed    = "reviewed"
	StatusScheduled   = "scheduled"
	StatusCanceled    = "canceled"
	StatusRescheduled = "rescheduled"
)

var validStatuses = map[string]bool{
	StatusBooked: true, StatusArrived: true, StatusOnGoing: true, StatusReviewed: true,
	StatusScheduled: true, StatusCanceled: true, StatusRescheduled: true,
}

// NormalizeStatus lowercases s and folds the British spelling of canceled.
func NormalizeStatus(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "cancelled" {
		s = StatusCanceled
	}
	return s, validStatuses[s]
}

// Appointment maps to the appointment table. PatientID is the patient row id.
type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        *uuid.UUID `json:"doctor_id,omitempty"`
	ReceptionistID  *uuid.UUID `json:"receptionist_id,omitempty"`
	Status          string     `json:"status"`
	AppointmentDate time.Time  `json:"appointment_date"`
	IsEmergency     bool       `json:"is_emergency"`
	Reason          *string    `json:"reason,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedBy       *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy       *uuid.UUID `json:"updated_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// PrimaryDoctorID is the patient's primary doctor, joined in on read
	// for the ownership check.
	PrimaryDoctorID *uuid.UUID `json:"-"`
}

// Change Auditor actions.
const (
	ActionEdited      = "EDITED"
	ActionCanceled    = "CANCELED"
	ActionRescheduled = "RESCHEDULED"
)

// Snapshot is the denormalized state of an appointment at one point in time.
type Snapshot struct {
	DoctorID             *uuid.UUID `json:"doctor_id"`
	DoctorName           string     `json:"doctor_name,omitempty"`
	DoctorEmail          string     `json:"doctor_email,omitempty"`
	DoctorSpecialization *string    `json:"doctor_specialization,omitempty"`
	PatientID            uuid.UUID  `json:"patient_id"`
	PatientCode          string     `json:"patient_code,omitempty"`
	PatientName          string     `json:"patient_name,omitempty"`
	PatientEmail         *string    `json:"patient_email,omitempty"`
	PatientPhone         string     `json:"patient_phone,omitempty"`
	AppointmentDate      time.Time  `json:"appointment_date"`
	Status               string     `json:"status"`
}

// MonitoredAppointment is one immutable Change Auditor entry.
type MonitoredAppointment struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	ActorName     string     `json:"actor_name"`
	Action        string     `json:"action"`
	Before        Snapshot   `json:"before"`
	After         Snapshot   `json:"after"`
	CreatedAt     time.Time  `json:"created_at"`
}

// BulkFailure reports one item a bulk request could not update.
type BulkFailure struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// BulkResult is the outcome of a bulk cancel or reschedule. Items the actor
// may not touch are counted in Skipped without detail.
type BulkResult struct {
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Failed  []BulkFailure `json:"failed"`
}
