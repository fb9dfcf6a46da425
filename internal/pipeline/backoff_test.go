package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelaysDouble(t *testing.T) {
	policy := NewBackoffPolicy(5, time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffDefaults(t *testing.T) {
	policy := NewBackoffPolicy(0, 0)
	require.Equal(t, 1, policy.MaxAttempts())
	require.Equal(t, time.Second, policy.Delay(0))
}

func TestBackoffSleepHonorsCancellation(t *testing.T) {
	policy := NewBackoffPolicy(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := policy.Sleep(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestBackoffSleepCompletes(t *testing.T) {
	policy := NewBackoffPolicy(3, time.Millisecond)
	require.NoError(t, policy.Sleep(context.Background(), 0))
}
