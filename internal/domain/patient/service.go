package patient

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/history"
	"github.com/hms/hms/internal/platform/idgen"
	"github.com/hms/hms/internal/platform/ist"
)

// ResourceType is the history resource name for patients.
const ResourceType = "patient"

var (
	mobilePattern  = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// DoctorLookup returns nil when id names an active doctor.
type DoctorLookup func(ctx context.Context, id uuid.UUID) error

type Config struct {
	HospitalCode string
	Doctors      DoctorLookup
	History      *history.Recorder
	Clock        clock.Clock
	Logger       zerolog.Logger
}

type Service struct {
	repo         Repository
	ids          *idgen.Generator
	doctors      DoctorLookup
	history      *history.Recorder
	clock        clock.Clock
	hospitalCode string
	logger       zerolog.Logger
}

func NewService(repo Repository, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Service{
		repo:         repo,
		ids:          idgen.NewGenerator(repo.MaxPatientID),
		doctors:      cfg.Doctors,
		history:      cfg.History,
		clock:        cfg.Clock,
		hospitalCode: cfg.HospitalCode,
		logger:       cfg.Logger,
	}
}

// Input is the writable surface of a patient. Every field is optional so the
// same shape serves create and partial update; Create checks required ones.
type Input struct {
	PatientID             *string    `json:"patient_id"`
	FirstName             *string    `json:"first_name"`
	LastName              *string    `json:"last_name"`
	DateOfBirth           *ist.Date  `json:"date_of_birth"`
	Gender                *string    `json:"gender"`
	MobileNumber          *string    `json:"mobile_number"`
	AlternateNumber       *string    `json:"alternate_number"`
	Email                 *string    `json:"email"`
	Address               *string    `json:"address"`
	City                  *string    `json:"city"`
	State                 *string    `json:"state"`
	Pincode               *string    `json:"pincode"`
	BloodGroup            *string    `json:"blood_group"`
	Allergies             *string    `json:"allergies"`
	MedicalHistory        *string    `json:"medical_history"`
	CurrentMedications    *string    `json:"current_medications"`
	FamilyHistory         *string    `json:"family_history"`
	PrimaryDoctorID       *uuid.UUID `json:"primary_doctor_id"`
	AdmissionType         *string    `json:"admission_type"`
	PaymentMode           *string    `json:"payment_mode"`
	InsuranceProvider     *string    `json:"insurance_provider"`
	InsurancePolicyNumber *string    `json:"insurance_policy_number"`
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// apply copies the set fields of in onto p. Age and patient_id are never
// copied: age is derived and patient_id is assigned once.
func (in *Input) apply(p *Patient) {
	if in.FirstName != nil {
		p.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		p.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = *in.DateOfBirth
	}
	if in.Gender != nil {
		p.Gender = titleCase(strings.TrimSpace(*in.Gender))
	}
	if in.MobileNumber != nil {
		p.MobileNumber = strings.TrimSpace(*in.MobileNumber)
	}
	if in.AdmissionType != nil {
		p.AdmissionType = strings.ToUpper(strings.TrimSpace(*in.AdmissionType))
	}
	if in.PrimaryDoctorID != nil {
		p.PrimaryDoctorID = in.PrimaryDoctorID
	}
	if in.Email != nil {
		p.Email = trimmed(in.Email)
		if p.Email != nil {
			lower := strings.ToLower(*p.Email)
			p.Email = &lower
		}
	}
	if in.PaymentMode != nil {
		p.PaymentMode = trimmed(in.PaymentMode)
		if p.PaymentMode != nil {
			lower := strings.ToLower(*p.PaymentMode)
			p.PaymentMode = &lower
		}
	}
	for _, f := range []struct {
		dst **string
		src *string
	}{
		{&p.AlternateNumber, in.AlternateNumber},
		{&p.Address, in.Address},
		{&p.City, in.City},
		{&p.State, in.State},
		{&p.Pincode, in.Pincode},
		{&p.BloodGroup, in.BloodGroup},
		{&p.Allergies, in.Allergies},
		{&p.MedicalHistory, in.MedicalHistory},
		{&p.CurrentMedications, in.CurrentMedications},
		{&p.FamilyHistory, in.FamilyHistory},
		{&p.InsuranceProvider, in.InsuranceProvider},
		{&p.InsurancePolicyNumber, in.InsurancePolicyNumber},
	} {
		if f.src != nil {
			*f.dst = trimmed(f.src)
		}
	}
	if p.BloodGroup != nil {
		bg := strings.ToUpper(*p.BloodGroup)
		p.BloodGroup = &bg
	}
}

func (s *Service) validate(p *Patient) error {
	fields := apperr.FieldErrors{}
	if p.FirstName == "" {
		fields.Add("first_name", "required")
	} else if len(p.FirstName) > 100 {
		fields.Add("first_name", "must be at most 100 characters")
	}
	if p.DateOfBirth.IsZero() {
		fields.Add("date_of_birth", "required")
	} else if p.DateOfBirth.After(ist.Today(s.clock)) {
		fields.Add("date_of_birth", "cannot be in the future")
	}
	if !genders[p.Gender] {
		fields.Add("gender", "must be one of Male, Female, Other")
	}
	if !mobilePattern.MatchString(p.MobileNumber) {
		fields.Add("mobile_number", "must be 10 to 15 digits")
	}
	if p.AlternateNumber != nil && !mobilePattern.MatchString(*p.AlternateNumber) {
		fields.Add("alternate_number", "must be 10 to 15 digits")
	}
	if p.Email != nil {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			fields.Add("email", "invalid email address")
		}
	}
	if p.Pincode != nil && !pincodePattern.MatchString(*p.Pincode) {
		fields.Add("pincode", "must be 6 digits")
	}
	if p.BloodGroup != nil && !bloodGroups[*p.BloodGroup] {
		fields.Add("blood_group", "invalid blood group")
	}
	if !admissionTypes[p.AdmissionType] {
		fields.Add("admission_type", "must be one of OP, IP, ER")
	}
	if p.PaymentMode != nil {
		if !paymentModes[*p.PaymentMode] {
			fields.Add("payment_mode", "must be one of cash, card, upi, insurance")
		} else if *p.PaymentMode == "insurance" && p.InsuranceProvider == nil {
			fields.Add("insurance_provider", "required when paying by insurance")
		}
	}
	return fields.Err()
}

func (s *Service) checkDoctor(ctx context.Context, before *uuid.UUID, p *Patient) error {
	if p.PrimaryDoctorID == nil || s.doctors == nil {
		return nil
	}
	if before != nil && *before == *p.PrimaryDoctorID {
		return nil
	}
	if err := s.doctors(ctx, *p.PrimaryDoctorID); err != nil {
		if k := apperr.KindOf(err); k == apperr.KindNotFound || k == apperr.KindValidation {
			return apperr.Field("primary_doctor_id", "doctor does not exist")
		}
		return fmt.Errorf("check primary doctor: %w", err)
	}
	return nil
}

// derive recomputes the fields clients cannot set.
func (s *Service) derive(p *Patient) {
	p.Age = AgeOn(p.DateOfBirth.Time, ist.Today(s.clock))
}

// Create registers a patient: normalize, validate, derive age, allocate
// patient_id and insert, then record history.
func (s *Service) Create(ctx context.Context, a *auth.Actor, in Input) (*Patient, error) {
	p := &Patient{AdmissionType: AdmissionOP}
	in.apply(p)
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.checkDoctor(ctx, nil, p); err != nil {
		return nil, err
	}
	s.derive(p)
	p.CreatedBy = &a.ID
	p.UpdatedBy = &a.ID

	prefix := IDPrefix(p.AdmissionType, s.hospitalCode)
	_, err := s.ids.Create(ctx, prefix, IDWidth, func(id string) error {
		p.PatientID = id
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	s.logger.Info().Str("patient_id", p.PatientID).Str("actor_id", a.ID.String()).Msg("patient registered")
	s.history.Record(ctx, ResourceType, p.PatientID, &a.ID, nil, p)
	return p, nil
}

// canView applies the doctor scope to a single patient.
func (s *Service) canView(ctx context.Context, a *auth.Actor, p *Patient) (bool, error) {
	if !a.IsDoctor() {
		return true, nil
	}
	if p.PrimaryDoctorID != nil && *p.PrimaryDoctorID == a.ID {
		return true, nil
	}
	return s.repo.HasAppointmentWith(ctx, p.ID, a.ID)
}

func (s *Service) load(ctx context.Context, a *auth.Actor, patientID string) (*Patient, error) {
	p, err := s.repo.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canView(ctx, a, p)
	if err != nil {
		return nil, fmt.Errorf("check patient scope: %w", err)
	}
	if !ok {
		s.logger.Warn().
			Str("actor_id", a.ID.String()).
			Str("username", a.Username).
			Str("patient_id", p.PatientID).
			Msg("doctor scope denied")
		return nil, apperr.Permission("patient is not assigned to you")
	}
	return p, nil
}

// Authorize checks that a may see the patient with the given patient_id.
func (s *Service) Authorize(ctx context.Context, a *auth.Actor, patientID string) error {
	_, err := s.load(ctx, a, patientID)
	return err
}

func (s *Service) Get(ctx context.Context, a *auth.Actor, patientID string) (*Patient, error) {
	return s.load(ctx, a, patientID)
}

// List returns a page of patients visible to a.
func (s *Service) List(ctx context.Context, a *auth.Actor, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	f.DoctorScope = nil
	if a.IsDoctor() {
		f.DoctorScope = &a.ID
	}
	if f.AdmissionType != "" {
		f.AdmissionType = strings.ToUpper(f.AdmissionType)
		if !admissionTypes[f.AdmissionType] {
			return nil, 0, apperr.Field("admission_type", "must be one of OP, IP, ER")
		}
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Update applies a partial update. A patient_id in the body must match the
// stored one; age in the body is ignored and recomputed.
func (s *Service) Update(ctx context.Context, a *auth.Actor, patientID string, in Input) (*Patient, error) {
	current, err := s.load(ctx, a, patientID)
	if err != nil {
		return nil, err
	}
	if in.PatientID != nil && *in.PatientID != current.PatientID {
		return nil, apperr.Field("patient_id", "cannot be changed")
	}

	before := *current
	p := current
	in.apply(p)
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.checkDoctor(ctx, before.PrimaryDoctorID, p); err != nil {
		return nil, err
	}
	s.derive(p)
	p.UpdatedBy = &a.ID

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	s.history.Record(ctx, ResourceType, p.PatientID, &a.ID, &before, p)
	return p, nil
}
