package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/ist"
)

var (
	ErrSlotTaken = apperr.Conflict("the patient already has an appointment at this time")
	ErrPastDate  = apperr.Validation("appointment date must be in the future",
		map[string]string{"appointment_date": "must be later than the current time"})
)

// SlotChecker is the storage query behind the guard.
type SlotChecker interface {
	SlotTaken(ctx context.Context, patientID uuid.UUID, ts time.Time, excludeID *uuid.UUID) (bool, error)
}

// Guard rejects appointment times that are not in the future or that the
// patient already has booked. The database unique constraint remains the
// final arbiter for concurrent requests.
type Guard struct {
	slots SlotChecker
}

func NewGuard(slots SlotChecker) *Guard {
	return &Guard{slots: slots}
}

// Validate checks ts for patientID. now must come from ist.Now. excludeID is
// the appointment being rescheduled, nil on create.
func (g *Guard) Validate(ctx context.Context, patientID uuid.UUID, ts, now time.Time, excludeID *uuid.UUID) error {
	ts, now = ist.ToIST(ts), ist.ToIST(now)
	if !ts.After(now) {
		return ErrPastDate
	}
	taken, err := g.slots.SlotTaken(ctx, patientID, ts, excludeID)
	if err != nil {
		return fmt.Errorf("check appointment slot: %w", err)
	}
	if taken {
		return ErrSlotTaken
	}
	return nil
}
