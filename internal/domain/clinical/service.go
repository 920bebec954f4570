package clinical

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/history"
)

// ResourceType is the history resource name for vitals.
const ResourceType = "vitals"

var bloodPressurePattern = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)

// AppointmentAccess checks that an actor may reach an appointment. The
// scheduling service implements it.
type AppointmentAccess interface {
	Authorize(ctx context.Context, a *auth.Actor, appointmentID uuid.UUID) error
}

type Service struct {
	repo         Repository
	appointments AppointmentAccess
	history      *history.Recorder
	logger       zerolog.Logger
}

func NewService(repo Repository, appointments AppointmentAccess, hist *history.Recorder, logger zerolog.Logger) *Service {
	return &Service{repo: repo, appointments: appointments, history: hist, logger: logger}
}

// Input carries raw measurements. TemperatureUnit ("C" or "F") overrides the
// Fahrenheit heuristic. Derived fields are not accepted.
type Input struct {
	Temperature      *float64 `json:"temperature"`
	TemperatureUnit  string   `json:"temperature_unit"`
	Height           *float64 `json:"height"`
	Weight           *float64 `json:"weight"`
	BloodPressure    *string  `json:"blood_pressure"`
	HeartRate        *int     `json:"heart_rate"`
	RespiratoryRate  *int     `json:"respiratory_rate"`
	OxygenSaturation *float64 `json:"oxygen_saturation"`
}

func (in *Input) apply(v *Vitals) {
	if in.Temperature != nil {
		v.Temperature = ToCelsius(in.Temperature, in.TemperatureUnit)
	}
	if in.Height != nil {
		v.Height = in.Height
	}
	if in.Weight != nil {
		v.Weight = in.Weight
	}
	if in.BloodPressure != nil {
		bp := strings.ReplaceAll(strings.TrimSpace(*in.BloodPressure), " ", "")
		v.BloodPressure = &bp
	}
	if in.HeartRate != nil {
		v.HeartRate = in.HeartRate
	}
	if in.RespiratoryRate != nil {
		v.RespiratoryRate = in.RespiratoryRate
	}
	if in.OxygenSaturation != nil {
		v.OxygenSaturation = in.OxygenSaturation
	}
}

func inRange(f apperr.FieldErrors, field string, v *float64, lo, hi float64) {
	if v != nil && (*v < lo || *v > hi) {
		f.Add(field, fmt.Sprintf("must be between %g and %g", lo, hi))
	}
}

func validate(in Input, v *Vitals) error {
	fields := apperr.FieldErrors{}
	if u := strings.ToUpper(strings.TrimSpace(in.TemperatureUnit)); u != "" && u != "C" && u != "F" {
		fields.Add("temperature_unit", "must be C or F")
	}
	inRange(fields, "temperature", v.Temperature, 25, 45)
	inRange(fields, "height", v.Height, 20, 280)
	inRange(fields, "weight", v.Weight, 0.5, 500)
	inRange(fields, "oxygen_saturation", v.OxygenSaturation, 0, 100)
	if v.HeartRate != nil && (*v.HeartRate < 20 || *v.HeartRate > 300) {
		fields.Add("heart_rate", "must be between 20 and 300")
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 4 || *v.RespiratoryRate > 80) {
		fields.Add("respiratory_rate", "must be between 4 and 80")
	}
	if v.BloodPressure != nil && !bloodPressurePattern.MatchString(*v.BloodPressure) {
		fields.Add("blood_pressure", "expected systolic/diastolic, e.g. 120/80")
	}
	return fields.Err()
}

func (s *Service) Get(ctx context.Context, a *auth.Actor, appointmentID uuid.UUID) (*Vitals, error) {
	if err := s.appointments.Authorize(ctx, a, appointmentID); err != nil {
		return nil, err
	}
	return s.repo.GetByAppointment(ctx, appointmentID)
}

// Create records the vitals of an appointment: normalize, derive, persist,
// record history. A second record for the same appointment is a Conflict.
func (s *Service) Create(ctx context.Context, a *auth.Actor, appointmentID uuid.UUID, in Input) (*Vitals, error) {
	if err := s.appointments.Authorize(ctx, a, appointmentID); err != nil {
		return nil, err
	}
	v := &Vitals{AppointmentID: appointmentID, RecordedBy: &a.ID}
	in.apply(v)
	if err := validate(in, v); err != nil {
		return nil, err
	}
	Derive(v)
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("record vitals: %w", err)
	}
	s.history.Record(ctx, ResourceType, appointmentID.String(), &a.ID, nil, v)
	return v, nil
}

// Patch applies the set measurements and recomputes BMI and blood sugar.
func (s *Service) Patch(ctx context.Context, a *auth.Actor, appointmentID uuid.UUID, in Input) (*Vitals, error) {
	current, err := s.Get(ctx, a, appointmentID)
	if err != nil {
		return nil, err
	}
	before := *current
	v := current
	in.apply(v)
	if err := validate(in, v); err != nil {
		return nil, err
	}
	Derive(v)
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("update vitals: %w", err)
	}
	s.history.Record(ctx, ResourceType, appointmentID.String(), &a.ID, &before, v)
	return v, nil
}
