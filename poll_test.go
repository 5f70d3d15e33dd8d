package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollStopsWhenDone(t *testing.T) {
	var seen []int
	value, err := Poll(context.Background(), PollPolicy{Interval: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context, attempt int) (string, bool, error) {
			seen = append(seen, attempt)
			return "v" + string(rune('0'+attempt)), attempt == 3, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "v3", value)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestPollExhaustion(t *testing.T) {
	calls := 0
	value, err := Poll(context.Background(), PollPolicy{Interval: time.Millisecond, MaxAttempts: 4},
		func(ctx context.Context, attempt int) (int, bool, error) {
			calls++
			return attempt * 10, false, nil
		})

	require.ErrorIs(t, err, ErrPollExhausted)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, 40, value, "last value is returned")
	assert.Equal(t, 4, calls)
}

func TestPollProbeErrorStopsImmediately(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), PollPolicy{Interval: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context, attempt int) (int, bool, error) {
			calls++
			return 0, false, errBoom
		})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestPollAtLeastOneAttempt(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), PollPolicy{}, func(ctx context.Context, attempt int) (int, bool, error) {
		calls++
		return 0, false, nil
	})

	require.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, 1, calls)
}

func TestPollHonorsContext(t *testing.T) {
	t.Run("canceled before the first probe", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		_, err := Poll(ctx, PollPolicy{Interval: time.Millisecond, MaxAttempts: 3},
			func(ctx context.Context, attempt int) (int, bool, error) {
				calls++
				return 0, false, nil
			})
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("canceled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := Poll(ctx, PollPolicy{Interval: time.Hour, MaxAttempts: 3},
			func(ctx context.Context, attempt int) (int, bool, error) {
				return 0, false, nil
			})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Minute)
	})
}
