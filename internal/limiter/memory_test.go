package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_AllowBurstThenDeny(t *testing.T) {
	m := NewMemory(0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := m.Allow(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, retry, err := m.Allow(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retry, time.Duration(0))

	// other keys have their own bucket
	ok, _, _ = m.Allow(ctx, "b")
	require.True(t, ok)
}

func TestMemory_Reset(t *testing.T) {
	m := NewMemory(0.001, 1)
	ctx := context.Background()

	ok, _, _ := m.Allow(ctx, "a")
	require.True(t, ok)
	ok, _, _ = m.Allow(ctx, "a")
	require.False(t, ok)

	require.NoError(t, m.Reset(ctx, "a"))
	ok, _, _ = m.Allow(ctx, "a")
	require.True(t, ok)

	m.ResetAll()
	ok, _, _ = m.Allow(ctx, "a")
	require.True(t, ok)
}

func TestMemory_UnlimitedWhenRPSZero(t *testing.T) {
	m := NewMemory(0, 0)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, m.Wait(ctx, "notion"))
	}
}

func TestMemory_WaitHonorsContext(t *testing.T) {
	m := NewMemory(0.001, 1)
	require.NoError(t, m.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, m.Wait(ctx, "k"))
}
