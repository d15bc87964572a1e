package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldThrottle_MinuteCapExceeded(t *testing.T) {
	l := New(Config{MaxPerMinute: 3, MaxPerHour: 1000, MinIntervalMS: 0, Enabled: true})

	for i := 0; i < 5; i++ {
		l.RecordCall()
	}

	require.True(t, l.ShouldThrottle(), "6th call should be throttled after 5 recorded calls with cap 3")
}

func TestShouldThrottle_ClearsAfterWindow(t *testing.T) {
	l := New(Config{MaxPerMinute: 3, MaxPerHour: 1000, MinIntervalMS: 0, Enabled: true})
	now := time.Now().Add(-90 * time.Second)
	l.minuteWindow.push(now)
	l.minuteWindow.push(now)
	l.minuteWindow.push(now)
	l.lastCall = now

	require.False(t, l.ShouldThrottle(), "stale entries older than 60s must not count against the minute cap")
}

func TestShouldThrottle_MinInterval(t *testing.T) {
	l := New(Config{MaxPerMinute: 1000, MaxPerHour: 1000, MinIntervalMS: 200, Enabled: true})
	l.RecordCall()
	require.True(t, l.ShouldThrottle())
}

func TestWaitForSlot_TimesOut(t *testing.T) {
	l := New(Config{MaxPerMinute: 1, MaxPerHour: 1000, MinIntervalMS: 0, Enabled: true})
	l.RecordCall()

	ok := l.WaitForSlot(context.Background(), 50*time.Millisecond)
	require.False(t, ok)
}

func TestExecuteWithRetry_RateLimitedRetriesThenSucceeds(t *testing.T) {
	l := New(Config{MaxPerMinute: 1000, MaxPerHour: 1000, MinIntervalMS: 0, Enabled: true})

	attempts := 0
	err := l.ExecuteWithRetry(context.Background(), 3,
		func(err error) (time.Duration, bool) { return 10 * time.Millisecond, true },
		func() error {
			attempts++
			if attempts < 2 {
				return context.DeadlineExceeded
			}
			return nil
		})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestPerIPLimiter_IndependentPerIP(t *testing.T) {
	p := NewPerIP(Config{MaxPerMinute: 1, MaxPerHour: 1000, MinIntervalMS: 0, Enabled: true})

	require.True(t, p.Allow("1.2.3.4"))
	p.RecordCall("1.2.3.4")
	require.True(t, p.Allow("5.6.7.8"), "a different IP must not be throttled by another IP's usage")
}

func TestPerIPLimiter_Cleanup(t *testing.T) {
	p := NewPerIP(Config{MaxPerMinute: 10, MaxPerHour: 1000, Enabled: true})
	p.idleTimeout = time.Millisecond
	p.RecordCall("9.9.9.9")
	time.Sleep(5 * time.Millisecond)

	removed := p.Cleanup()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, p.TrackedCount())
}
