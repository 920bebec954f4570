package clinical

import (
	"time"

	"github.com/google/uuid"
)

// Vitals maps to the vitals table, one row per appointment. BMI and
// BloodSugar are derived on every save.
type Vitals struct {
	ID               uuid.UUID  `json:"id"`
	AppointmentID    uuid.UUID  `json:"appointment_id"`
	Temperature      *float64   `json:"temperature,omitempty"`
	Height           *float64   `json:"height,omitempty"`
	Weight           *float64   `json:"weight,omitempty"`
	BloodPressure    *string    `json:"blood_pressure,omitempty"`
	HeartRate        *int       `json:"heart_rate,omitempty"`
	RespiratoryRate  *int       `json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64   `json:"oxygen_saturation,omitempty"`
	BMI              *float64   `json:"bmi"`
	BloodSugar       *float64   `json:"blood_sugar"`
	RecordedBy       *uuid.UUID `json:"recorded_by,omitempty"`
	RecordedAt       time.Time  `json:"recorded_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
