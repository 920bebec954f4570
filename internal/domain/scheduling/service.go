package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/history"
	"github.com/hms/hms/internal/platform/ist"
)

// ResourceType is the history resource name for appointments.
const ResourceType = "appointment"

type Config struct {
	Directory Directory
	History   *history.Recorder
	Clock     clock.Clock
	Logger    zerolog.Logger
}

type Service struct {
	repo    Repository
	guard   *Guard
	auditor *Auditor
	dir     Directory
	history *history.Recorder
	clock   clock.Clock
	logger  zerolog.Logger
}

func NewService(repo Repository, audits AuditRepository, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Service{
		repo:    repo,
		guard:   NewGuard(repo),
		auditor: NewAuditor(audits, cfg.Directory, cfg.Clock, cfg.Logger),
		dir:     cfg.Directory,
		history: cfg.History,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
}

type CreateInput struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        *uuid.UUID `json:"doctor_id"`
	AppointmentDate string     `json:"appointment_date"`
	Status          string     `json:"status"`
	IsEmergency     bool       `json:"is_emergency"`
	Reason          *string    `json:"reason"`
	Notes           *string    `json:"notes"`
}

// UpdateInput holds the editable fields; nil means unchanged.
type UpdateInput struct {
	DoctorID        *uuid.UUID `json:"doctor_id"`
	AppointmentDate *string    `json:"appointment_date"`
	Status          *string    `json:"status"`
	IsEmergency     *bool      `json:"is_emergency"`
	Reason          *string    `json:"reason"`
	Notes           *string    `json:"notes"`
}

// BulkInput selects appointments by explicit ids or by patient.
type BulkInput struct {
	AppointmentIDs  []uuid.UUID `json:"appointment_ids"`
	PatientID       *uuid.UUID  `json:"patient_id"`
	AppointmentDate string      `json:"appointment_date"`
}

const dateFormatMessage = "expected YYYY-MM-DDTHH:MM:SS with optional Z or +HH:MM"

// parseDate normalizes an appointment date to IST, returning the field
// message on failure.
func parseDate(s string) (time.Time, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, "required"
	}
	t, err := ist.Parse(s)
	if err != nil {
		return time.Time{}, dateFormatMessage
	}
	return t, ""
}

func (s *Service) checkDoctor(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.dir.Doctor(ctx, *id); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.Field("doctor_id", "doctor does not exist")
		}
		return fmt.Errorf("check doctor: %w", err)
	}
	return nil
}

// Create books an appointment: normalize the date, check the patient and
// doctor, run the guard, insert, record history.
func (s *Service) Create(ctx context.Context, a *auth.Actor, in CreateInput) (*Appointment, error) {
	fields := apperr.FieldErrors{}
	if in.PatientID == uuid.Nil {
		fields.Add("patient_id", "required")
	}
	status := StatusBooked
	if in.Status != "" {
		var ok bool
		if status, ok = NormalizeStatus(in.Status); !ok {
			fields.Add("status", "invalid status")
		}
	}
	ts, msg := parseDate(in.AppointmentDate)
	if msg != "" {
		fields.Add("appointment_date", msg)
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	p, err := s.dir.Patient(ctx, in.PatientID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Field("patient_id", "patient does not exist")
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	if err := s.checkDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}
	if err := s.guard.Validate(ctx, in.PatientID, ts, ist.Now(s.clock), nil); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		Status:          status,
		AppointmentDate: ts,
		IsEmergency:     in.IsEmergency,
		Reason:          in.Reason,
		Notes:           in.Notes,
		CreatedBy:       &a.ID,
		UpdatedBy:       &a.ID,
		PrimaryDoctorID: p.PrimaryDoctorID,
	}
	if a.UserType == auth.Receptionist {
		appt.ReceptionistID = &a.ID
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info().Str("appointment_id", appt.ID.String()).Str("actor_id", a.ID.String()).Msg("appointment booked")
	s.history.Record(ctx, ResourceType, appt.ID.String(), &a.ID, nil, appt)
	return appt, nil
}

// load fetches an appointment and applies the doctor ownership check.
func (s *Service) load(ctx context.Context, a *auth.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccessAppointment(a, appt.DoctorID, appt.PrimaryDoctorID) {
		s.logger.Warn().
			Str("actor_id", a.ID.String()).
			Str("username", a.Username).
			Str("appointment_id", appt.ID.String()).
			Msg("doctor scope denied")
		return nil, apperr.Permission("appointment is not assigned to you")
	}
	return appt, nil
}

func (s *Service) Get(ctx context.Context, a *auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, a, id)
}

// Authorize checks that a may access appointment id. Other domains use it
// for the appointment ownership rule.
func (s *Service) Authorize(ctx context.Context, a *auth.Actor, id uuid.UUID) error {
	_, err := s.load(ctx, a, id)
	return err
}

func (s *Service) List(ctx context.Context, a *auth.Actor, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	f.DoctorScope = nil
	if a.IsDoctor() {
		f.DoctorScope = &a.ID
	}
	if f.Status != "" {
		status, ok := NormalizeStatus(f.Status)
		if !ok {
			return nil, 0, apperr.Field("status", "invalid status")
		}
		f.Status = status
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Update edits an appointment. A changed date goes through the guard.
func (s *Service) Update(ctx context.Context, a *auth.Actor, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	current, err := s.load(ctx, a, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if in.Status != nil {
		status, ok := NormalizeStatus(*in.Status)
		if !ok {
			return nil, apperr.Field("status", "invalid status")
		}
		next.Status = status
	}
	if in.DoctorID != nil {
		if err := s.checkDoctor(ctx, in.DoctorID); err != nil {
			return nil, err
		}
		next.DoctorID = in.DoctorID
	}
	if in.IsEmergency != nil {
		next.IsEmergency = *in.IsEmergency
	}
	if in.Reason != nil {
		next.Reason = in.Reason
	}
	if in.Notes != nil {
		next.Notes = in.Notes
	}
	if in.AppointmentDate != nil {
		ts, msg := parseDate(*in.AppointmentDate)
		if msg != "" {
			return nil, apperr.Field("appointment_date", msg)
		}
		if !ts.Equal(current.AppointmentDate) {
			if err := s.guard.Validate(ctx, next.PatientID, ts, ist.Now(s.clock), &next.ID); err != nil {
				return nil, err
			}
			next.AppointmentDate = ts
		}
	}
	if err := s.save(ctx, a, current, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// save is the write path shared by edit, cancel and reschedule: persist,
// then audit, then history. The last two never fail the save.
func (s *Service) save(ctx context.Context, a *auth.Actor, before, next *Appointment) error {
	next.UpdatedBy = &a.ID
	if err := s.repo.Update(ctx, next); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	s.auditor.Record(ctx, a, before, next)
	s.history.Record(ctx, ResourceType, next.ID.String(), &a.ID, before, next)
	return nil
}

func (s *Service) targets(ctx context.Context, in BulkInput) ([]uuid.UUID, error) {
	switch {
	case len(in.AppointmentIDs) > 0:
		return in.AppointmentIDs, nil
	case in.PatientID != nil:
		ids, err := s.repo.ListIDsByPatient(ctx, *in.PatientID)
		if err != nil {
			return nil, fmt.Errorf("list patient appointments: %w", err)
		}
		return ids, nil
	default:
		return nil, apperr.Validation("appointment_ids or patient_id is required", nil)
	}
}

// bulk runs change on each target in order. Each item commits on its own;
// items a cannot access are skipped silently.
func (s *Service) bulk(ctx context.Context, a *auth.Actor, ids []uuid.UUID, change func(current, next *Appointment) (bool, error)) BulkResult {
	res := BulkResult{Failed: []BulkFailure{}}
	for _, id := range ids {
		current, err := s.load(ctx, a, id)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindPermission:
				res.Skipped++
			case apperr.KindNotFound:
				res.Failed = append(res.Failed, BulkFailure{ID: id, Error: "appointment not found"})
			default:
				s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("bulk load failed")
				res.Failed = append(res.Failed, BulkFailure{ID: id, Error: "internal error"})
			}
			continue
		}
		next := *current
		apply, err := change(current, &next)
		if err == nil && !apply {
			res.Skipped++
			continue
		}
		if err == nil {
			err = s.save(ctx, a, current, &next)
		}
		if err != nil {
			msg := "internal error"
			var ae *apperr.Error
			if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
				msg = ae.Message
			} else {
				s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("bulk update failed")
			}
			res.Failed = append(res.Failed, BulkFailure{ID: id, Error: msg})
			continue
		}
		res.Updated++
	}
	return res
}

// Cancel marks the selected appointments canceled. Already canceled ones are
// skipped.
func (s *Service) Cancel(ctx context.Context, a *auth.Actor, in BulkInput) (BulkResult, error) {
	ids, err := s.targets(ctx, in)
	if err != nil {
		return BulkResult{}, err
	}
	res := s.bulk(ctx, a, ids, func(current, next *Appointment) (bool, error) {
		if current.Status == StatusCanceled {
			return false, nil
		}
		next.Status = StatusCanceled
		return true, nil
	})
	s.logger.Info().Str("actor_id", a.ID.String()).Int("updated", res.Updated).Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).Msg("appointments canceled")
	return res, nil
}

// Reschedule moves the selected appointments to a new time and marks them
// rescheduled. The slot guard runs per item.
func (s *Service) Reschedule(ctx context.Context, a *auth.Actor, in BulkInput) (BulkResult, error) {
	ts, msg := parseDate(in.AppointmentDate)
	if msg != "" {
		return BulkResult{}, apperr.Field("appointment_date", msg)
	}
	now := ist.Now(s.clock)
	if !ts.After(now) {
		return BulkResult{}, ErrPastDate
	}
	ids, err := s.targets(ctx, in)
	if err != nil {
		return BulkResult{}, err
	}
	res := s.bulk(ctx, a, ids, func(current, next *Appointment) (bool, error) {
		if err := s.guard.Validate(ctx, current.PatientID, ts, now, &current.ID); err != nil {
			return false, err
		}
		next.AppointmentDate = ts
		next.Status = StatusRescheduled
		return true, nil
	})
	s.logger.Info().Str("actor_id", a.ID.String()).Int("updated", res.Updated).Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).Msg("appointments rescheduled")
	return res, nil
}

// History lists the Change Auditor entries of an appointment.
func (s *Service) History(ctx context.Context, a *auth.Actor, id uuid.UUID) ([]*MonitoredAppointment, error) {
	if _, err := s.load(ctx, a, id); err != nil {
		return nil, err
	}
	return s.auditor.List(ctx, id)
}
