// Package history keeps a field-level change log of every save of
// patients, appointments and vitals.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/ist"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// Change is the old and new JSON value of one field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type Record struct {
	ID           uuid.UUID         `json:"id"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Action       string            `json:"action"`
	ActorID      *uuid.UUID        `json:"actor_id,omitempty"`
	RecordedAt   time.Time         `json:"recorded_at"`
	Changes      map[string]Change `json:"changes"`
}

// ChangedFields returns the changed field names in sorted order.
func (r *Record) ChangedFields() []string {
	out := make([]string, 0, len(r.Changes))
	for k := range r.Changes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Repository interface {
	Insert(ctx context.Context, r *Record) error
	List(ctx context.Context, resourceType, resourceID string) ([]*Record, error)
}

// ignoredFields change on every save and carry no information.
var ignoredFields = map[string]bool{"updated_at": true}

// Diff compares the JSON forms of before and after. A nil before yields every
// non-null field of after as a change from null.
func Diff(before, after any) (map[string]Change, error) {
	b, err := toMap(before)
	if err != nil {
		return nil, fmt.Errorf("encode before: %w", err)
	}
	a, err := toMap(after)
	if err != nil {
		return nil, fmt.Errorf("encode after: %w", err)
	}

	changes := make(map[string]Change)
	for k, nv := range a {
		if ignoredFields[k] {
			continue
		}
		ov, existed := b[k]
		if !existed && nv == nil {
			continue
		}
		if !reflect.DeepEqual(ov, nv) {
			changes[k] = Change{Old: ov, New: nv}
		}
	}
	for k, ov := range b {
		if _, still := a[k]; !still && !ignoredFields[k] && ov != nil {
			changes[k] = Change{Old: ov, New: nil}
		}
	}
	return changes, nil
}

func toMap(v any) (map[string]any, error) {
	if v == nil || (reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil()) {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Recorder writes history records. Failures are logged and never returned:
// a save must not fail because its history could not be written.
type Recorder struct {
	repo   Repository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewRecorder(repo Repository, c clock.Clock, logger zerolog.Logger) *Recorder {
	if c == nil {
		c = clock.New()
	}
	return &Recorder{repo: repo, clock: c, logger: logger}
}

// Record stores the diff between before and after. Pass a nil before for a
// newly created resource. Updates that change nothing are not recorded.
func (r *Recorder) Record(ctx context.Context, resourceType, resourceID string, actorID *uuid.UUID, before, after any) {
	changes, err := Diff(before, after)
	if err != nil {
		r.logger.Error().Err(err).Str("resource_type", resourceType).Str("resource_id", resourceID).Msg("history diff failed")
		return
	}

	action := ActionUpdate
	if v := reflect.ValueOf(before); before == nil || (v.Kind() == reflect.Ptr && v.IsNil()) {
		action = ActionCreate
	}
	if action == ActionUpdate && len(changes) == 0 {
		return
	}

	rec := &Record{
		ID:           uuid.New(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		ActorID:      actorID,
		RecordedAt:   ist.Now(r.clock),
		Changes:      changes,
	}
	if err := r.repo.Insert(ctx, rec); err != nil {
		r.logger.Error().Err(err).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Strs("fields", rec.ChangedFields()).
			Msg("history record failed")
		return
	}
	r.logger.Debug().
		Str("resource_type", resourceType).
		Str("resource_id", resourceID).
		Str("action", action).
		Strs("fields", rec.ChangedFields()).
		Msg("history recorded")
}

func (r *Recorder) List(ctx context.Context, resourceType, resourceID string) ([]*Record, error) {
	return r.repo.List(ctx, resourceType, resourceID)
}
