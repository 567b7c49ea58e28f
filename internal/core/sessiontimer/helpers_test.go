package sessiontimer_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"catcafe/internal/core/model"
	"catcafe/internal/core/sessiontimer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(delta time.Duration) {
	clock.mu.Lock()
	clock.now = clock.now.Add(delta)
	clock.mu.Unlock()
}

type manualDriver struct {
	mu       sync.Mutex
	running  bool
	starts   int
	deadline time.Time
	tick     func()
}

func (driver *manualDriver) Start(deadline time.Time, tick func()) {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	driver.running = true
	driver.starts++
	driver.deadline = deadline
	driver.tick = tick
}

func (driver *manualDriver) Stop() {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	driver.running = false
}

func (driver *manualDriver) Running() bool {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	return driver.running
}

// Fire delivers one tick if the driver is running.
func (driver *manualDriver) Fire() {
	driver.mu.Lock()
	tick, running := driver.tick, driver.running
	driver.mu.Unlock()
	if running && tick != nil {
		tick()
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	scheduled []time.Duration
	cancels   int
	err       error
}

func (notifier *recordingNotifier) Schedule(_ context.Context, after time.Duration, _ sessiontimer.Notification) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.err != nil {
		return notifier.err
	}
	notifier.scheduled = append(notifier.scheduled, after)
	return nil
}

func (notifier *recordingNotifier) CancelAll(context.Context) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.cancels++
	return nil
}

func (notifier *recordingNotifier) Scheduled() []time.Duration {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return append([]time.Duration(nil), notifier.scheduled...)
}

func (notifier *recordingNotifier) Cancels() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return notifier.cancels
}

// flakyStore wraps a MemoryStore with injectable failures.
type flakyStore struct {
	*sessiontimer.MemoryStore

	mu     sync.Mutex
	getErr error
	setErr error
	// entered and release, when set, block Get until release is closed.
	entered chan struct{}
	release chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: sessiontimer.NewMemoryStore()}
}

func (store *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	store.mu.Lock()
	err, entered, release := store.getErr, store.entered, store.release
	store.entered, store.release = nil, nil
	store.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}
	if err != nil {
		return "", false, err
	}
	return store.MemoryStore.Get(ctx, key)
}

func (store *flakyStore) Set(ctx context.Context, key, value string) error {
	store.mu.Lock()
	err := store.setErr
	store.mu.Unlock()
	if err != nil {
		return err
	}
	return store.MemoryStore.Set(ctx, key, value)
}

func (store *flakyStore) failGet(err error) {
	store.mu.Lock()
	store.getErr = err
	store.mu.Unlock()
}

func (store *flakyStore) failSet(err error) {
	store.mu.Lock()
	store.setErr = err
	store.mu.Unlock()
}

func (store *flakyStore) blockNextGet() (entered, release chan struct{}) {
	entered, release = make(chan struct{}), make(chan struct{})
	store.mu.Lock()
	store.entered, store.release = entered, release
	store.mu.Unlock()
	return entered, release
}

func (store *flakyStore) raw(t *testing.T) (string, bool) {
	t.Helper()
	value, ok, err := store.MemoryStore.Get(context.Background(), sessiontimer.SlotKey)
	if err != nil {
		t.Fatalf("read slot: %v", err)
	}
	return value, ok
}

type harness struct {
	t        *testing.T
	config   model.TimerConfig
	clock    *fakeClock
	store    *flakyStore
	notifier *recordingNotifier
	fg       *manualDriver
	bg       *manualDriver
	timer    *sessiontimer.SessionTimer

	mu     sync.Mutex
	events []sessiontimer.Event
}

func newHarness(t *testing.T, config model.TimerConfig) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		config:   config,
		clock:    newFakeClock(),
		store:    newFlakyStore(),
		notifier: &recordingNotifier{},
	}
	h.boot()
	return h
}

// boot builds a fresh timer over the same store and clock, as a relaunched
// process would.
func (h *harness) boot() {
	if h.timer != nil {
		h.timer.Close()
	}
	h.fg = &manualDriver{}
	h.bg = &manualDriver{}
	h.timer = sessiontimer.New(h.config, sessiontimer.Config{
		Store:      h.store,
		Notifier:   h.notifier,
		Foreground: h.fg,
		Background: h.bg,
		Now:        h.clock.Now,
		Logger:     log.New(io.Discard, "", 0),
	})
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
	h.timer.Listen(func(event sessiontimer.Event) {
		h.mu.Lock()
		h.events = append(h.events, event)
		h.mu.Unlock()
	})
	h.t.Cleanup(h.timer.Close)
}

func (h *harness) count(eventType sessiontimer.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, event := range h.events {
		if event.Type == eventType {
			total++
		}
	}
	return total
}

func (h *harness) last(eventType sessiontimer.EventType) (sessiontimer.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == eventType {
			return h.events[i], true
		}
	}
	return sessiontimer.Event{}, false
}

func (h *harness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func timerConfig(length time.Duration, strict bool) model.TimerConfig {
	config := model.DefaultTimerConfig()
	config.SessionLength = length
	config.StrictMode = strict
	return config
}
