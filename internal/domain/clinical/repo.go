package clinical

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
)

var ErrVitalsExist = apperr.Conflict("vitals already recorded for this appointment")

type Repository interface {
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Vitals, error)
	// Create returns ErrVitalsExist when the appointment already has vitals.
	Create(ctx context.Context, v *Vitals) error
	Update(ctx context.Context, v *Vitals) error
}
