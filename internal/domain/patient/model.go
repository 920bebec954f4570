package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/ist"
)

// Admission types form part of the patient identifier prefix.
const (
	AdmissionOP = "OP"
	AdmissionIP = "IP"
	AdmissionER = "ER"
)

// IDWidth is the zero-padded width of the patient identifier counter.
const IDWidth = 3

var (
	admissionTypes = map[string]bool{AdmissionOP: true, AdmissionIP: true, AdmissionER: true}
	genders        = map[string]bool{"Male": true, "Female": true, "Other": true}
	bloodGroups    = map[string]bool{"A+": true, "A-": true, "B+": true, "B-": true, "AB+": true, "AB-": true, "O+": true, "O-": true}
	paymentModes   = map[string]bool{"cash": true, "card": true, "upi": true, "insurance": true}
)

// Patient maps to the patient table.
type Patient struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             string     `json:"patient_id"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	DateOfBirth           ist.Date   `json:"date_of_birth"`
	Age                   int        `json:"age"`
	Gender                string     `json:"gender"`
	MobileNumber          string     `json:"mobile_number"`
	AlternateNumber       *string    `json:"alternate_number,omitempty"`
	Email                 *string    `json:"email,omitempty"`
	Address               *string    `json:"address,omitempty"`
	City                  *string    `json:"city,omitempty"`
	State                 *string    `json:"state,omitempty"`
	Pincode               *string    `json:"pincode,omitempty"`
	BloodGroup            *string    `json:"blood_group,omitempty"`
	Allergies             *string    `json:"allergies,omitempty"`
	MedicalHistory        *string    `json:"medical_history,omitempty"`
	CurrentMedications    *string    `json:"current_medications,omitempty"`
	FamilyHistory         *string    `json:"family_history,omitempty"`
	PrimaryDoctorID       *uuid.UUID `json:"primary_doctor_id,omitempty"`
	AdmissionType         string     `json:"admission_type"`
	PaymentMode           *string    `json:"payment_mode,omitempty"`
	InsuranceProvider     *string    `json:"insurance_provider,omitempty"`
	InsurancePolicyNumber *string    `json:"insurance_policy_number,omitempty"`
	CreatedBy             *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy             *uuid.UUID `json:"updated_by,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// AgeOn returns the completed years between dob and today.
func AgeOn(dob, today time.Time) int {
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// IDPrefix is "KH" + admission type + hospital code, e.g. KHOP01.
func IDPrefix(admissionType, hospitalCode string) string {
	return "KH" + admissionType + hospitalCode
}
