package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/platform/clock"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.NewManaged(time.Unix(0, 0)))

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryStore_Miss(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_ExpiresWithClock(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManaged(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemoryStore(c)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 60*time.Second))

	c.WarpForward(59 * time.Second)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	c.WarpForward(time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStore_NonPositiveTTLNotStored(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_DeleteAndSweep(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManaged(time.Unix(1000, 0))
	s := NewMemoryStore(c)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, s.Set(ctx, "c", []byte("3"), time.Hour))
	require.NoError(t, s.Delete(ctx, "c"))

	c.WarpForward(2 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_StartCleanupFollowsClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := clock.NewManaged(time.Unix(1000, 0))
	s := NewMemoryStore(c)

	require.NoError(t, s.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "long", []byte("2"), time.Hour))

	s.StartCleanup(ctx, time.Minute)
	c.BlockUntil(1)
	assert.Equal(t, 2, s.Len())

	c.WarpForward(time.Minute)
	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
}
