package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Pools []string `json:"pools"`
}

func TestMemoryRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "pools", snapshot{Pools: []string{"0", "1"}}, 5*time.Second))

	var got snapshot
	hit, err := m.Get(ctx, "pools", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []string{"0", "1"}, got.Pools)

	now = now.Add(5 * time.Second)
	hit, err = m.Get(ctx, "pools", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "a", 1, 0))
	require.NoError(t, m.Set(ctx, "b", 2, 0))
	require.NoError(t, m.Delete(ctx, "a", "missing"))

	var v int
	hit, _ := m.Get(ctx, "a", &v)
	require.False(t, hit)
	hit, _ = m.Get(ctx, "b", &v)
	require.True(t, hit)
	require.Equal(t, 2, v)
}
