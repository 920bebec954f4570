package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/clock"
)

const revokedPrefix = "revoked:"

// RevocationList tracks logged-out token ids until the token would have
// expired on its own. Entries live in a cache.Store so every instance
// sharing Redis sees them.
type RevocationList struct {
	store cache.Store
	clock clock.Clock
}

func NewRevocationList(store cache.Store, c clock.Clock) *RevocationList {
	if c == nil {
		c = clock.New()
	}
	return &RevocationList{store: store, clock: c}
}

// Revoke blocks jti until expiresAt. Already-expired tokens are ignored.
func (r *RevocationList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("token has no id")
	}
	ttl := expiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := r.store.Set(ctx, revokedPrefix+jti, []byte("1"), ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := r.store.Get(ctx, revokedPrefix+jti)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cache.ErrMiss):
		return false, nil
	default:
		return false, fmt.Errorf("check revocation: %w", err)
	}
}
