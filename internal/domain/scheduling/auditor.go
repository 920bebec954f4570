package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/ist"
)

// Classify maps a status transition to an auditor action.
func Classify(beforeStatus, afterStatus string) string {
	if beforeStatus == afterStatus {
		return ActionEdited
	}
	switch afterStatus {
	case StatusCanceled:
		return ActionCanceled
	case StatusRescheduled:
		return ActionRescheduled
	default:
		return ActionEdited
	}
}

// Auditor writes a MonitoredAppointment after every appointment update.
// It never fails the update: errors are logged and dropped.
type Auditor struct {
	repo   AuditRepository
	dir    Directory
	clock  clock.Clock
	logger zerolog.Logger
}

func NewAuditor(repo AuditRepository, dir Directory, c clock.Clock, logger zerolog.Logger) *Auditor {
	if c == nil {
		c = clock.New()
	}
	return &Auditor{repo: repo, dir: dir, clock: c, logger: logger}
}

// Snapshot denormalizes a with the current doctor and patient details.
func (au *Auditor) Snapshot(ctx context.Context, a *Appointment) (Snapshot, error) {
	s := Snapshot{
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		AppointmentDate: ist.ToIST(a.AppointmentDate),
		Status:          a.Status,
	}
	if a.DoctorID != nil {
		d, err := au.dir.Doctor(ctx, *a.DoctorID)
		switch {
		case err == nil:
			s.DoctorName, s.DoctorEmail, s.DoctorSpecialization = d.Name, d.Email, d.Specialization
		case apperr.KindOf(err) != apperr.KindNotFound:
			return s, fmt.Errorf("snapshot doctor: %w", err)
		}
	}
	p, err := au.dir.Patient(ctx, a.PatientID)
	switch {
	case err == nil:
		s.PatientCode, s.PatientName, s.PatientEmail, s.PatientPhone = p.PatientID, p.Name, p.Email, p.Phone
	case apperr.KindOf(err) != apperr.KindNotFound:
		return s, fmt.Errorf("snapshot patient: %w", err)
	}
	return s, nil
}

// Record stores the transition from before to after. A nil before means
// there is no persisted prior state and nothing is recorded.
func (au *Auditor) Record(ctx context.Context, actor *auth.Actor, before, after *Appointment) {
	if before == nil {
		return
	}
	log := au.logger.With().Str("appointment_id", after.ID.String()).Logger()

	beforeSnap, err := au.Snapshot(ctx, before)
	if err != nil {
		log.Error().Err(err).Msg("appointment audit skipped")
		return
	}
	afterSnap, err := au.Snapshot(ctx, after)
	if err != nil {
		log.Error().Err(err).Msg("appointment audit skipped")
		return
	}

	m := &MonitoredAppointment{
		ID:            uuid.New(),
		AppointmentID: after.ID,
		Action:        Classify(before.Status, after.Status),
		Before:        beforeSnap,
		After:         afterSnap,
		CreatedAt:     ist.Now(au.clock),
	}
	if actor != nil {
		m.ActorID = &actor.ID
		m.ActorName = actor.Name
		if m.ActorName == "" {
			m.ActorName = actor.Username
		}
	}
	if err := au.repo.Insert(ctx, m); err != nil {
		log.Error().Err(err).Str("action", m.Action).Msg("appointment audit failed")
		return
	}
	log.Debug().Str("action", m.Action).Msg("appointment audited")
}

func (au *Auditor) List(ctx context.Context, appointmentID uuid.UUID) ([]*MonitoredAppointment, error) {
	return au.repo.ListByAppointment(ctx, appointmentID)
}
