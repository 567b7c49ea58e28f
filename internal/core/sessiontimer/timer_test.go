package sessiontimer_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catcafe/internal/core/sessiontimer"
)

func TestStopWhenIdleHasNoSideEffects(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, false))
	ctx := context.Background()

	h.timer.Stop(ctx)
	h.timer.Stop(ctx)

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	assert.Equal(t, 30*time.Minute, h.timer.Remaining())
	assert.Zero(t, h.eventCount())
	assert.Zero(t, h.notifier.Cancels())
}

func TestStartPersistsSessionAndSchedulesNotification(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, false))

	h.timer.Start(context.Background())

	assert.Equal(t, sessiontimer.StateRunning, h.timer.State())
	assert.Equal(t, 30*time.Minute, h.timer.Remaining())
	assert.True(t, h.fg.Running())

	record, ok := h.timer.Session()
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().UnixMilli(), record.StartTimestamp)
	assert.Equal(t, 1800, record.DurationSeconds)

	value, stored := h.store.raw(t)
	require.True(t, stored)
	assert.Contains(t, value, "duration_seconds: 1800")

	assert.Equal(t, 1, h.notifier.Cancels(), "previous notifications are cancelled first")
	assert.Equal(t, []time.Duration{30 * time.Minute}, h.notifier.Scheduled())

	event, ok := h.last(sessiontimer.EventStateChange)
	require.True(t, ok)
	assert.True(t, event.Active)
}

func TestStartIsIgnoredWhileActive(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, false))
	ctx := context.Background()

	h.timer.Start(ctx)
	first, _ := h.timer.Session()
	h.clock.Advance(time.Minute)
	h.timer.Start(ctx)
	second, _ := h.timer.Session()

	assert.Equal(t, first, second)
	assert.Len(t, h.notifier.Scheduled(), 1)
	assert.Equal(t, 1, h.count(sessiontimer.EventStateChange))
}

func TestStartWithZeroLengthIsIgnored(t *testing.T) {
	h := newHarness(t, timerConfig(0, false))

	h.timer.Start(context.Background())

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
}

func TestStopResetsToConfiguredLength(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, false))
	ctx := context.Background()

	h.timer.Start(ctx)
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Second)
		h.fg.Fire()
	}
	require.Equal(t, 30*time.Minute-3*time.Second, h.timer.Remaining())

	h.timer.Stop(ctx)

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	assert.Equal(t, 30*time.Minute, h.timer.Remaining())
	assert.False(t, h.fg.Running())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
	assert.Zero(t, h.count(sessiontimer.EventComplete))

	stopped, ok := h.last(sessiontimer.EventStopped)
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute-3*time.Second, stopped.Remaining)
	assert.Equal(t, 2, h.notifier.Cancels())
}

func TestTickCountsDown(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))

	h.timer.Start(context.Background())
	h.clock.Advance(time.Second)
	h.timer.Tick()
	h.clock.Advance(time.Second)
	h.timer.Tick()

	assert.Equal(t, 58, h.timer.RemainingSeconds())
	progress, ok := h.last(sessiontimer.EventProgress)
	require.True(t, ok)
	assert.Equal(t, 58*time.Second, progress.Remaining)
}

func TestTickFollowsWallClock(t *testing.T) {
	h := newHarness(t, timerConfig(10*time.Minute, false))

	h.timer.Start(context.Background())
	h.clock.Advance(4 * time.Minute)
	h.timer.Tick()

	assert.Equal(t, 6*time.Minute, h.timer.Remaining())
}

func TestFastTicksDoNotOutrunWallClock(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	var completions int
	h.timer.Listen(sessiontimer.Callbacks{OnComplete: func() { completions++ }}.Listener())

	h.timer.Start(context.Background())
	for i := 0; i < 60; i++ {
		h.clock.Advance(500 * time.Millisecond)
		h.fg.Fire()
	}

	assert.Zero(t, completions)
	assert.Equal(t, 30*time.Second, h.timer.Remaining())

	for i := 0; i < 60; i++ {
		h.clock.Advance(500 * time.Millisecond)
		h.fg.Fire()
	}
	assert.Equal(t, 1, completions)
}

func TestTickWithoutElapsedTimeKeepsRemaining(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))

	h.timer.Start(context.Background())
	h.clock.Advance(1500 * time.Millisecond)
	h.timer.Tick()
	h.timer.Tick()
	h.timer.Tick()

	assert.Equal(t, 59*time.Second, h.timer.Remaining())
}

func TestTickCompletesSession(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	var completions int
	h.timer.Listen(sessiontimer.Callbacks{OnComplete: func() { completions++ }}.Listener())

	h.timer.Start(context.Background())
	h.clock.Advance(59 * time.Second)
	h.fg.Fire()
	require.Equal(t, time.Second, h.timer.Remaining())
	h.clock.Advance(time.Second)
	h.fg.Fire()

	assert.Equal(t, 1, completions)
	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	assert.Equal(t, time.Minute, h.timer.Remaining())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
}

func TestReconcileAfterRestartResumesSession(t *testing.T) {
	h := newHarness(t, timerConfig(60*time.Minute, false))
	h.timer.Start(context.Background())

	h.clock.Advance(10*time.Minute + 300*time.Millisecond)
	h.config = timerConfig(25*time.Minute, false)
	h.boot()
	h.timer.Reconcile(context.Background())

	assert.Equal(t, sessiontimer.StateRunning, h.timer.State())
	assert.InDelta(t, 3000, h.timer.RemainingSeconds(), 1)
	assert.Equal(t, 60*time.Minute, h.timer.SessionLength())
	assert.True(t, h.fg.Running())

	change, ok := h.last(sessiontimer.EventSessionTimeChange)
	require.True(t, ok)
	assert.Equal(t, 60*time.Minute, change.Duration)
	state, ok := h.last(sessiontimer.EventStateChange)
	require.True(t, ok)
	assert.True(t, state.Active)
}

func TestReconcileAfterRestartReschedulesNotification(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)
	require.Equal(t, []time.Duration{25 * time.Minute}, h.notifier.Scheduled())

	h.clock.Advance(10 * time.Minute)
	h.boot()
	h.timer.OnForeground(ctx)
	h.timer.Reconcile(ctx)

	assert.Equal(t, 15*time.Minute, h.timer.Remaining())
	assert.Equal(t, []time.Duration{25 * time.Minute, 15 * time.Minute}, h.notifier.Scheduled())
	assert.Equal(t, 2, h.notifier.Cancels())
}

func TestReconcileWithinProcessKeepsNotification(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)

	h.clock.Advance(time.Minute)
	h.timer.Reconcile(ctx)
	h.timer.OnForeground(ctx)

	assert.Len(t, h.notifier.Scheduled(), 1)
}

func TestReconcileFinishedSessionSchedulesNothing(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)

	h.clock.Advance(2 * time.Minute)
	h.boot()
	h.timer.Reconcile(ctx)

	assert.Len(t, h.notifier.Scheduled(), 1)
	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
}

func TestReconcileCompletesSessionFinishedWhileKilled(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	ctx := context.Background()
	record := sessiontimer.Record{
		StartTimestamp:  h.clock.Now().UnixMilli(),
		DurationSeconds: 5,
	}
	require.NoError(t, h.store.Set(ctx, sessiontimer.SlotKey, "start_timestamp: "+strconv.FormatInt(record.StartTimestamp, 10)+"\nduration_seconds: 5\n"))

	h.clock.Advance(10 * time.Second)
	h.timer.Reconcile(ctx)
	h.timer.Reconcile(ctx)

	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
	assert.Equal(t, 5*time.Second, h.timer.SessionLength())
}

func TestReconcileCompletesStartedSessionAfterRestart(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)

	h.boot()
	h.clock.Advance(2 * time.Minute)
	h.timer.OnForeground(ctx)
	h.timer.Reconcile(ctx)

	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
}

func TestReconcileWithoutSessionStaysIdle(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))

	h.timer.Reconcile(context.Background())

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	assert.Zero(t, h.eventCount())
}

func TestAwayTime(t *testing.T) {
	tests := []struct {
		name      string
		strict    bool
		away      time.Duration
		cancelled bool
	}{
		{name: "strict under limit", strict: true, away: 4 * time.Second},
		{name: "strict at limit", strict: true, away: 5*time.Second + 900*time.Millisecond},
		{name: "strict over limit", strict: true, away: 6 * time.Second, cancelled: true},
		{name: "relaxed long absence", strict: false, away: 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, timerConfig(30*time.Minute, tt.strict))
			ctx := context.Background()
			var awayTooLong, completions int
			h.timer.Listen(sessiontimer.Callbacks{
				OnComplete:    func() { completions++ },
				OnAwayTooLong: func() { awayTooLong++ },
			}.Listener())

			h.timer.Start(ctx)
			h.timer.OnBackground(ctx)
			require.Equal(t, sessiontimer.StateBackgrounded, h.timer.State())
			require.True(t, h.bg.Running())
			require.False(t, h.fg.Running())
			h.clock.Advance(tt.away)
			h.timer.OnForeground(ctx)

			assert.Zero(t, completions)
			_, stored := h.store.raw(t)
			if tt.cancelled {
				assert.Equal(t, 1, awayTooLong)
				assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
				assert.Equal(t, 30*time.Minute, h.timer.Remaining())
				assert.False(t, stored)
				event, ok := h.last(sessiontimer.EventAwayTooLong)
				require.True(t, ok)
				assert.Equal(t, sessiontimer.StateCancelled, event.State)
				assert.Equal(t, tt.away, event.Away)
				return
			}
			assert.Zero(t, awayTooLong)
			assert.Equal(t, sessiontimer.StateRunning, h.timer.State())
			assert.True(t, h.fg.Running())
			assert.Equal(t, 30*time.Minute-tt.away.Truncate(time.Second), h.timer.Remaining())
			record, _ := h.timer.Session()
			assert.Zero(t, record.AwayStartTimestamp)
			value, _ := h.store.raw(t)
			assert.NotContains(t, value, "away_start_timestamp")
		})
	}
}

func TestAwayTooLongDetectedAfterRestart(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, true))
	ctx := context.Background()
	h.timer.Start(ctx)
	h.timer.OnBackground(ctx)

	h.boot()
	h.clock.Advance(time.Minute)
	h.timer.OnForeground(ctx)

	assert.Equal(t, 1, h.count(sessiontimer.EventAwayTooLong))
	assert.Zero(t, h.count(sessiontimer.EventComplete))
	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
}

func TestSessionFinishedWhileKilledInBackgroundIsCredited(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, true))
	ctx := context.Background()
	h.timer.Start(ctx)
	h.timer.OnBackground(ctx)

	h.boot()
	h.clock.Advance(45 * time.Minute)
	h.timer.OnForeground(ctx)
	h.timer.Reconcile(ctx)

	assert.Zero(t, h.count(sessiontimer.EventAwayTooLong))
	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
}

func TestBackgroundKeepsFirstAwayTimestamp(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)

	h.timer.OnBackground(ctx)
	first, _ := h.timer.Session()
	h.clock.Advance(3 * time.Second)
	h.timer.OnBackground(ctx)
	second, _ := h.timer.Session()

	assert.Equal(t, first.AwayStartTimestamp, second.AwayStartTimestamp)
}

func TestBackgroundWhenIdleDoesNothing(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, true))
	ctx := context.Background()

	h.timer.OnBackground(ctx)
	h.clock.Advance(time.Minute)
	h.timer.OnForeground(ctx)

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	assert.Zero(t, h.eventCount())
}

func TestBackgroundDriverCompletesAtDeadline(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)
	h.timer.OnBackground(ctx)

	h.clock.Advance(time.Minute)
	h.bg.Fire()

	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
}

func TestNoDoubleCompletion(t *testing.T) {
	t.Run("ticks then reconcile", func(t *testing.T) {
		h := newHarness(t, timerConfig(time.Minute, false))
		ctx := context.Background()
		h.timer.Start(ctx)

		h.clock.Advance(59 * time.Second)
		h.timer.Tick()
		h.clock.Advance(time.Second)
		h.timer.Tick()
		h.timer.Tick()
		h.timer.Reconcile(ctx)
		h.timer.Tick()
		h.timer.OnForeground(ctx)

		assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
	})

	t.Run("reconcile then ticks", func(t *testing.T) {
		h := newHarness(t, timerConfig(time.Minute, false))
		ctx := context.Background()
		h.timer.Start(ctx)
		fire := h.fg.Fire

		h.clock.Advance(61 * time.Second)
		h.timer.Reconcile(ctx)
		fire()
		h.timer.Tick()
		h.timer.Reconcile(ctx)

		assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
	})

	t.Run("stale record after completion", func(t *testing.T) {
		h := newHarness(t, timerConfig(time.Minute, false))
		ctx := context.Background()
		h.timer.Start(ctx)
		value, _ := h.store.raw(t)

		h.clock.Advance(time.Minute)
		h.timer.Tick()
		require.NoError(t, h.store.Set(ctx, sessiontimer.SlotKey, value))
		h.timer.Reconcile(ctx)

		assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
		_, stored := h.store.raw(t)
		assert.False(t, stored)
	})
}

func TestConfigureQuantizesLength(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	var lengths []time.Duration
	h.timer.Listen(sessiontimer.Callbacks{
		OnSessionTimeChange: func(length time.Duration) { lengths = append(lengths, length) },
	}.Listener())

	assert.Equal(t, 25*time.Minute, h.timer.Configure(1510*time.Second))
	assert.Equal(t, 26*time.Minute, h.timer.Configure(1530*time.Second))
	assert.Equal(t, 120*time.Minute, h.timer.Configure(5*time.Hour))

	assert.Equal(t, []time.Duration{26 * time.Minute, 120 * time.Minute}, lengths)
	assert.Equal(t, 120*time.Minute, h.timer.Remaining())
}

func TestConfigureIgnoredWhileActive(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	h.timer.Start(context.Background())

	assert.Equal(t, 25*time.Minute, h.timer.Configure(40*time.Minute))
	record, _ := h.timer.Session()
	assert.Equal(t, 1500, record.DurationSeconds)
}

func TestUpdateConfigTogglesStrictMode(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)
	h.timer.UpdateConfig(timerConfig(50*time.Minute, true))

	h.timer.OnBackground(ctx)
	h.clock.Advance(time.Minute)
	h.timer.OnForeground(ctx)

	assert.Equal(t, 1, h.count(sessiontimer.EventAwayTooLong))
	assert.Equal(t, 25*time.Minute, h.timer.SessionLength(), "length changes wait for an idle timer")

	h.timer.UpdateConfig(timerConfig(50*time.Minute, true))
	assert.Equal(t, 50*time.Minute, h.timer.SessionLength())
}

func TestReadFailureFailsSafeToIdle(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)

	h.store.failGet(errors.New("disk unavailable"))
	h.timer.OnForeground(ctx)

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	assert.Zero(t, h.count(sessiontimer.EventComplete))
	state, ok := h.last(sessiontimer.EventStateChange)
	require.True(t, ok)
	assert.False(t, state.Active)
}

func TestCorruptRecordIsDiscarded(t *testing.T) {
	h := newHarness(t, timerConfig(25*time.Minute, false))
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, sessiontimer.SlotKey, "start_timestamp: [not a number"))

	h.timer.Reconcile(ctx)

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
}

func TestPersistFailureKeepsCounting(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	ctx := context.Background()
	h.store.failSet(errors.New("quota exceeded"))

	h.timer.Start(ctx)
	h.timer.Reconcile(ctx)
	require.Equal(t, sessiontimer.StateRunning, h.timer.State())

	h.clock.Advance(time.Minute)
	h.fg.Fire()

	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
}

func TestPermissionDeniedDoesNotBlockTimer(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	h.notifier.err = sessiontimer.ErrPermissionDenied

	h.timer.Start(context.Background())

	assert.Equal(t, sessiontimer.StateRunning, h.timer.State())
	h.clock.Advance(time.Minute)
	h.fg.Fire()
	assert.Equal(t, 1, h.count(sessiontimer.EventComplete))
}

func TestNotificationsDisabledSkipsScheduling(t *testing.T) {
	config := timerConfig(time.Minute, false)
	config.Notifications = false
	h := newHarness(t, config)

	h.timer.Start(context.Background())

	assert.Empty(t, h.notifier.Scheduled())
	assert.Equal(t, sessiontimer.StateRunning, h.timer.State())
}

func TestStopWinsOverInflightReconcile(t *testing.T) {
	h := newHarness(t, timerConfig(30*time.Minute, false))
	ctx := context.Background()
	h.timer.Start(ctx)

	entered, release := h.store.blockNextGet()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.timer.Reconcile(ctx)
	}()
	<-entered
	go func() {
		defer wg.Done()
		h.timer.Stop(ctx)
	}()
	require.Eventually(t, func() bool {
		return h.timer.State() == sessiontimer.StateIdle
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, sessiontimer.StateIdle, h.timer.State())
	_, stored := h.store.raw(t)
	assert.False(t, stored)
	assert.Zero(t, h.count(sessiontimer.EventComplete))
}

func TestSubscribeReceivesEvents(t *testing.T) {
	h := newHarness(t, timerConfig(time.Minute, false))
	events := h.timer.Subscribe(4)

	h.timer.Start(context.Background())

	select {
	case event := <-events:
		assert.Equal(t, sessiontimer.EventStateChange, event.Type)
		assert.True(t, event.Active)
	case <-time.After(time.Second):
		t.Fatal("expected state change event")
	}
}
