package sessiontimer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"catcafe/internal/core/model"
)

const defaultTickInterval = time.Second

// Config contains the collaborators of a SessionTimer.
type Config struct {
	Store    Store
	Notifier Notifier
	// Foreground drives the countdown while the app is visible.
	Foreground CountdownDriver
	// Background drives the countdown while the app is away.
	Background CountdownDriver
	Now        func() time.Time
	Logger     *log.Logger
}

// SessionTimer is a state machine for a single focus session. The active
// session is persisted so that it survives the process being killed.
type SessionTimer struct {
	// slot serializes I/O against the persisted session; acquired before mu.
	slot sync.Mutex
	mu   sync.Mutex

	config     model.TimerConfig
	options    Config
	dispatcher Dispatcher

	state      State
	configured time.Duration
	remaining  time.Duration
	session    Record
	driver     CountdownDriver

	// epoch changes on every transition that ends or begins a session, so
	// I/O started under an older epoch can detect it lost the race.
	epoch uint64
	// settled is the start timestamp of the last session this process ended.
	settled        int64
	notifyDisabled bool
}

// New creates an idle SessionTimer.
func New(config model.TimerConfig, options Config) *SessionTimer {
	if options.Store == nil {
		options.Store = NewMemoryStore()
	}
	if options.Foreground == nil {
		options.Foreground = NewIntervalDriver(defaultTickInterval)
	}
	if options.Background == nil {
		options.Background = NewDeadlineDriver()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Logger == nil {
		options.Logger = log.Default()
	}
	if config.AwayLimit <= 0 {
		config.AwayLimit = model.DefaultAwayLimit
	}

	configured := model.QuantizeSession(config.SessionLength)
	return &SessionTimer{
		config:     config,
		options:    options,
		state:      StateIdle,
		configured: configured,
		remaining:  configured,
	}
}

// Listen registers a listener for timer events.
func (timer *SessionTimer) Listen(listener Listener) {
	timer.dispatcher.Listen(listener)
}

// Subscribe registers a new observer channel.
func (timer *SessionTimer) Subscribe(buffer int) <-chan Event {
	return timer.dispatcher.Subscribe(buffer)
}

// State returns the current state.
func (timer *SessionTimer) State() State {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	return timer.state
}

// Active reports whether a session is running.
func (timer *SessionTimer) Active() bool {
	return timer.State().Active()
}

// Remaining returns the time left in the session, or the configured length when idle.
func (timer *SessionTimer) Remaining() time.Duration {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	return timer.remaining
}

// RemainingSeconds returns Remaining in whole seconds.
func (timer *SessionTimer) RemainingSeconds() int {
	return int(timer.Remaining() / time.Second)
}

// SessionLength returns the configured session length.
func (timer *SessionTimer) SessionLength() time.Duration {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	return timer.configured
}

// Session returns the active session record.
func (timer *SessionTimer) Session() (Record, bool) {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	return timer.session, timer.state.Active()
}

// Configure sets the length of the next session. It is ignored while a
// session is active. The effective length is returned.
func (timer *SessionTimer) Configure(length time.Duration) time.Duration {
	timer.mu.Lock()
	if timer.state.Active() {
		configured := timer.configured
		timer.mu.Unlock()
		return configured
	}
	events := timer.setLengthLocked(model.QuantizeSession(length))
	configured := timer.configured
	timer.mu.Unlock()

	timer.dispatcher.Dispatch(events...)
	return configured
}

// UpdateConfig replaces runtime configuration. The session length only
// applies while idle.
func (timer *SessionTimer) UpdateConfig(config model.TimerConfig) {
	timer.mu.Lock()
	if config.AwayLimit <= 0 {
		config.AwayLimit = model.DefaultAwayLimit
	}
	timer.config = config
	var events []Event
	if !timer.state.Active() {
		events = timer.setLengthLocked(model.QuantizeSession(config.SessionLength))
	}
	timer.mu.Unlock()

	timer.dispatcher.Dispatch(events...)
}

// Start begins a session with the configured length.
func (timer *SessionTimer) Start(ctx context.Context) {
	var events []Event
	defer func() { timer.dispatcher.Dispatch(events...) }()
	timer.slot.Lock()
	defer timer.slot.Unlock()

	timer.mu.Lock()
	if timer.state.Active() || timer.configured <= 0 {
		timer.mu.Unlock()
		return
	}
	now := timer.options.Now()
	record := Record{
		StartTimestamp:  now.UnixMilli(),
		DurationSeconds: int(timer.configured / time.Second),
	}
	timer.epoch++
	timer.session = record
	timer.state = StateRunning
	timer.remaining = record.Duration()
	timer.notifyDisabled = !timer.config.Notifications
	timer.startDriverLocked(timer.options.Foreground)
	events = append(events, timer.stateEventLocked(now))
	timer.mu.Unlock()

	timer.cancelNotifications(ctx)
	if err := saveRecord(ctx, timer.options.Store, record); err != nil {
		timer.logf("persist session: %v", err)
	}
	timer.scheduleCompletion(ctx, record)
}

// Stop abandons the active session without completing it.
func (timer *SessionTimer) Stop(ctx context.Context) {
	timer.mu.Lock()
	if !timer.state.Active() {
		timer.mu.Unlock()
		return
	}
	now := timer.options.Now()
	record := timer.session
	left := timer.remaining
	timer.settled = record.StartTimestamp
	epoch := timer.resetLocked()
	events := []Event{
		{
			Type:      EventStopped,
			State:     StateIdle,
			Remaining: left,
			Duration:  record.Duration(),
			Session:   record,
			At:        now,
		},
		timer.stateEventLocked(now),
	}
	timer.mu.Unlock()

	timer.dispatcher.Dispatch(events...)
	timer.clearSlot(ctx, epoch)
}

// Tick brings the countdown in line with the wall clock. A tick never
// moves the countdown ahead of the time actually elapsed.
func (timer *SessionTimer) Tick() {
	timer.mu.Lock()
	timer.tickLocked()
}

func (timer *SessionTimer) tickFor(epoch uint64) func() {
	return func() {
		timer.mu.Lock()
		if timer.epoch != epoch {
			timer.mu.Unlock()
			return
		}
		timer.tickLocked()
	}
}

// tickLocked is entered with mu held and releases it.
func (timer *SessionTimer) tickLocked() {
	if !timer.state.Active() {
		timer.mu.Unlock()
		return
	}
	now := timer.options.Now()
	remaining := timer.session.RemainingAt(now)
	if remaining > timer.remaining {
		remaining = timer.remaining
	}
	timer.remaining = remaining

	if remaining > 0 {
		event := Event{
			Type:      EventProgress,
			State:     timer.state,
			Active:    true,
			Remaining: remaining,
			Duration:  timer.session.Duration(),
			Session:   timer.session,
			At:        now,
		}
		timer.mu.Unlock()
		timer.dispatcher.Dispatch(event)
		return
	}

	events, epoch := timer.completeLocked(timer.session, now)
	timer.mu.Unlock()

	timer.dispatcher.Dispatch(events...)
	timer.clearSlot(context.Background(), epoch)
}

// OnBackground records when the app left the foreground.
func (timer *SessionTimer) OnBackground(ctx context.Context) {
	timer.slot.Lock()
	defer timer.slot.Unlock()

	timer.mu.Lock()
	if !timer.state.Active() || timer.session.AwayStartTimestamp > 0 {
		timer.mu.Unlock()
		return
	}
	timer.session.AwayStartTimestamp = timer.options.Now().UnixMilli()
	timer.state = StateBackgrounded
	timer.startDriverLocked(timer.options.Background)
	record := timer.session
	timer.mu.Unlock()

	if err := saveRecord(ctx, timer.options.Store, record); err != nil {
		timer.logf("persist away time: %v", err)
	}
}

// OnForeground checks how long the app was away, cancelling the session
// in strict mode when the away limit was exceeded, and reconciles otherwise.
func (timer *SessionTimer) OnForeground(ctx context.Context) {
	var events []Event
	defer func() { timer.dispatcher.Dispatch(events...) }()
	timer.slot.Lock()
	defer timer.slot.Unlock()

	epoch := timer.currentEpoch()
	record, ok, err := loadRecord(ctx, timer.options.Store)
	if err != nil {
		events = timer.failSafe(ctx, err)
		return
	}

	timer.mu.Lock()
	if timer.epoch != epoch {
		timer.mu.Unlock()
		return
	}
	now := timer.options.Now()
	session, active := record, ok
	if timer.state.Active() {
		session, active = timer.session, true
		if session.AwayStartTimestamp == 0 && record.StartTimestamp == session.StartTimestamp {
			session.AwayStartTimestamp = record.AwayStartTimestamp
		}
	}

	awaySince, hasAway := session.AwaySince()
	// A session that ran out while no process was alive completes instead.
	finishedCold := !timer.state.Active() && session.RemainingAt(now) <= 0
	if active && hasAway && !finishedCold && session.StartTimestamp != timer.settled {
		away := now.Sub(awaySince).Truncate(time.Second)
		if timer.config.StrictMode && away > timer.config.AwayLimit {
			events = timer.cancelLocked(session, away, now)
			timer.mu.Unlock()

			timer.clearSlotLocked(ctx)
			return
		}
	}

	if timer.state.Active() {
		timer.session.AwayStartTimestamp = 0
		timer.state = StateRunning
		timer.startDriverLocked(timer.options.Foreground)
	}
	timer.mu.Unlock()

	if ok && record.AwayStartTimestamp > 0 {
		record.AwayStartTimestamp = 0
		if err := saveRecord(ctx, timer.options.Store, record); err != nil {
			timer.logf("clear away time: %v", err)
		}
	}
	events = timer.reconcileRecord(ctx, epoch, record, ok)
}

// Reconcile recomputes the timer from the persisted session, resuming it
// or completing it if it ended while the process was not running.
func (timer *SessionTimer) Reconcile(ctx context.Context) {
	var events []Event
	defer func() { timer.dispatcher.Dispatch(events...) }()
	timer.slot.Lock()
	defer timer.slot.Unlock()

	epoch := timer.currentEpoch()
	record, ok, err := loadRecord(ctx, timer.options.Store)
	if err != nil {
		events = timer.failSafe(ctx, err)
		return
	}
	events = timer.reconcileRecord(ctx, epoch, record, ok)
}

// Close stops the countdown drivers and closes subscriber channels.
func (timer *SessionTimer) Close() {
	timer.mu.Lock()
	if timer.driver != nil {
		timer.driver.Stop()
		timer.driver = nil
	}
	timer.mu.Unlock()
	timer.dispatcher.Close()
}

// reconcileRecord is called with slot held and returns events to dispatch
// once slot is released.
func (timer *SessionTimer) reconcileRecord(ctx context.Context, epoch uint64, record Record, ok bool) []Event {
	timer.mu.Lock()
	if timer.epoch != epoch || !ok {
		// Without a record a session that failed to persist keeps counting in memory.
		timer.mu.Unlock()
		return nil
	}
	if record.StartTimestamp == timer.settled {
		timer.mu.Unlock()
		timer.clearSlotLocked(ctx)
		return nil
	}

	now := timer.options.Now()
	wasActive := timer.state.Active()
	remaining := record.RemainingAt(now)
	if remaining <= 0 {
		events, _ := timer.completeLocked(record, now)
		timer.mu.Unlock()

		timer.clearSlotLocked(ctx)
		return events
	}

	events := timer.setLengthLocked(record.Duration())
	sameSession := wasActive && timer.session.StartTimestamp == record.StartTimestamp
	if sameSession && record.AwayStartTimestamp == 0 {
		record.AwayStartTimestamp = timer.session.AwayStartTimestamp
	}
	if !sameSession {
		timer.epoch++
		timer.notifyDisabled = !timer.config.Notifications
	}
	timer.session = record
	timer.remaining = remaining
	driver := timer.options.Foreground
	timer.state = StateRunning
	if record.AwayStartTimestamp > 0 {
		timer.state = StateBackgrounded
		driver = timer.options.Background
	}
	timer.startDriverLocked(driver)
	if !wasActive {
		events = append(events, timer.stateEventLocked(now))
	}
	events = append(events, Event{
		Type:      EventProgress,
		State:     timer.state,
		Active:    true,
		Remaining: remaining,
		Duration:  record.Duration(),
		Session:   record,
		At:        now,
	})
	timer.mu.Unlock()

	// Scheduled notifications do not outlive the process that set them.
	if !sameSession {
		timer.cancelNotifications(ctx)
		timer.scheduleCompletion(ctx, record)
	}
	return events
}

// failSafe drops to idle after the persisted session could not be read.
func (timer *SessionTimer) failSafe(ctx context.Context, cause error) []Event {
	timer.logf("reconcile: %v", cause)

	timer.mu.Lock()
	var events []Event
	if timer.state.Active() {
		timer.resetLocked()
		events = append(events, timer.stateEventLocked(timer.options.Now()))
	}
	timer.mu.Unlock()

	timer.clearSlotLocked(ctx)
	return events
}

func (timer *SessionTimer) completeLocked(record Record, now time.Time) ([]Event, uint64) {
	wasActive := timer.state.Active()
	timer.settled = record.StartTimestamp
	epoch := timer.resetLocked()
	lengthEvents := timer.setLengthLocked(record.Duration())

	events := []Event{{
		Type:     EventComplete,
		State:    StateCompleted,
		Duration: record.Duration(),
		Session:  record,
		At:       now,
	}}
	if wasActive {
		events = append(events, timer.stateEventLocked(now))
	}
	return append(events, lengthEvents...), epoch
}

func (timer *SessionTimer) cancelLocked(record Record, away time.Duration, now time.Time) []Event {
	wasActive := timer.state.Active()
	left := record.RemainingAt(now)
	if wasActive && timer.remaining < left {
		left = timer.remaining
	}
	timer.settled = record.StartTimestamp
	timer.resetLocked()

	events := []Event{{
		Type:      EventAwayTooLong,
		State:     StateCancelled,
		Remaining: left,
		Duration:  record.Duration(),
		Session:   record,
		Away:      away,
		At:        now,
	}}
	if wasActive {
		events = append(events, timer.stateEventLocked(now))
	}
	return events
}

func (timer *SessionTimer) resetLocked() uint64 {
	if timer.driver != nil {
		timer.driver.Stop()
		timer.driver = nil
	}
	timer.state = StateIdle
	timer.remaining = timer.configured
	timer.session = Record{}
	timer.notifyDisabled = false
	timer.epoch++
	return timer.epoch
}

func (timer *SessionTimer) setLengthLocked(length time.Duration) []Event {
	if length == timer.configured {
		return nil
	}
	timer.configured = length
	if !timer.state.Active() {
		timer.remaining = length
	}
	return []Event{{
		Type:      EventSessionTimeChange,
		State:     timer.state,
		Active:    timer.state.Active(),
		Remaining: timer.remaining,
		Duration:  length,
		At:        timer.options.Now(),
	}}
}

func (timer *SessionTimer) startDriverLocked(driver CountdownDriver) {
	if timer.driver != nil && timer.driver != driver {
		timer.driver.Stop()
	}
	timer.driver = driver
	driver.Start(timer.session.Deadline(), timer.tickFor(timer.epoch))
}

func (timer *SessionTimer) stateEventLocked(now time.Time) Event {
	return Event{
		Type:      EventStateChange,
		State:     timer.state,
		Active:    timer.state.Active(),
		Remaining: timer.remaining,
		Duration:  timer.configured,
		Session:   timer.session,
		At:        now,
	}
}

func (timer *SessionTimer) currentEpoch() uint64 {
	timer.mu.Lock()
	defer timer.mu.Unlock()
	return timer.epoch
}

// clearSlot removes the persisted session unless a newer session has
// taken the slot since epoch.
func (timer *SessionTimer) clearSlot(ctx context.Context, epoch uint64) {
	timer.slot.Lock()
	defer timer.slot.Unlock()

	if timer.currentEpoch() != epoch {
		return
	}
	timer.clearSlotLocked(ctx)
}

func (timer *SessionTimer) clearSlotLocked(ctx context.Context) {
	if err := timer.options.Store.Remove(ctx, SlotKey); err != nil {
		timer.logf("clear session: %v", err)
	}
	timer.cancelNotifications(ctx)
}

func (timer *SessionTimer) scheduleCompletion(ctx context.Context, record Record) {
	timer.mu.Lock()
	skip := timer.options.Notifier == nil || timer.notifyDisabled
	after := record.Deadline().Sub(timer.options.Now())
	timer.mu.Unlock()
	if skip {
		return
	}

	err := timer.options.Notifier.Schedule(ctx, after, CompletionNotification)
	if err == nil {
		return
	}
	if errors.Is(err, ErrPermissionDenied) {
		timer.mu.Lock()
		timer.notifyDisabled = true
		timer.mu.Unlock()
	}
	timer.logf("schedule completion notification: %v", err)
}

func (timer *SessionTimer) cancelNotifications(ctx context.Context) {
	if timer.options.Notifier == nil {
		return
	}
	if err := timer.options.Notifier.CancelAll(ctx); err != nil {
		timer.logf("cancel notifications: %v", err)
	}
}

func (timer *SessionTimer) logf(format string, args ...any) {
	timer.options.Logger.Printf("sessiontimer: "+format, args...)
}
