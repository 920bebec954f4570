package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/db"
)

const DefaultTTL = 60 * time.Second

// Finder runs composed queries without pagination.
type Finder interface {
	Patients(ctx context.Context, q *db.Query) ([]*patient.Patient, error)
	Appointments(ctx context.Context, q *db.Query) ([]*scheduling.Appointment, error)
}

type Service struct {
	finder Finder
	cache  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

func NewService(finder Finder, store cache.Store, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{finder: finder, cache: store, ttl: ttl, logger: logger}
}

func (s *Service) Patients(ctx context.Context, a *auth.Actor, params url.Values) ([]*patient.Patient, error) {
	return run(ctx, s, Patients, a, params, s.finder.Patients)
}

func (s *Service) Appointments(ctx context.Context, a *auth.Actor, params url.Values) ([]*scheduling.Appointment, error) {
	return run(ctx, s, Appointments, a, params, s.finder.Appointments)
}

// run answers from the cache when possible, otherwise composes and executes
// the query and caches the full result set.
func run[T any](ctx context.Context, s *Service, kind Kind, a *auth.Actor, params url.Values,
	find func(context.Context, *db.Query) ([]T, error)) ([]T, error) {
	q, err := Compose(kind, params, a)
	if err != nil {
		return nil, err
	}

	var key string
	if q.Cacheable && s.cache != nil {
		key = CacheKey(kind, a.ID, params)
		if items, ok := cached[T](ctx, s, key); ok {
			return items, nil
		}
	}

	items, err := find(ctx, q.Primary)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", kind, err)
	}
	if len(items) == 0 && q.Fallback != nil {
		if items, err = find(ctx, q.Fallback); err != nil {
			return nil, fmt.Errorf("search %s: %w", kind, err)
		}
	}
	if items == nil {
		items = []T{}
	}

	if key != "" {
		if raw, err := json.Marshal(items); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("search cache encode failed")
		} else if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("search cache write failed")
		}
	}
	return items, nil
}

func cached[T any](ctx context.Context, s *Service, key string) ([]T, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("search cache read failed")
		}
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("search cache decode failed")
		return nil, false
	}
	s.logger.Debug().Str("key", key).Int("count", len(items)).Msg("search cache hit")
	return items, true
}
