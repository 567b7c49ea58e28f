package sessiontimer

import (
	"sync"
	"time"
)

// CountdownDriver invokes tick while a session is counting down.
type CountdownDriver interface {
	// Start begins calling tick for a session ending at deadline,
	// replacing any previous registration.
	Start(deadline time.Time, tick func())
	Stop()
}

// IntervalDriver ticks at a fixed interval while the app is in the foreground.
type IntervalDriver struct {
	Interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewIntervalDriver creates an interval driver; non-positive intervals mean one second.
func NewIntervalDriver(interval time.Duration) *IntervalDriver {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalDriver{Interval: interval}
}

// Start launches the ticking loop.
func (driver *IntervalDriver) Start(_ time.Time, tick func()) {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	driver.stopLocked()

	interval := driver.Interval
	if interval <= 0 {
		interval = time.Second
	}
	stopCh := make(chan struct{})
	driver.stopCh = stopCh
	go run(interval, stopCh, tick)
}

// Stop terminates the ticking loop.
func (driver *IntervalDriver) Stop() {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	driver.stopLocked()
}

func (driver *IntervalDriver) stopLocked() {
	if driver.stopCh != nil {
		close(driver.stopCh)
		driver.stopCh = nil
	}
}

func run(interval time.Duration, stopCh <-chan struct{}, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			tick()
		}
	}
}

// DeadlineDriver wakes once at the session deadline. It stands in for
// platform background execution where per-second ticks are throttled.
type DeadlineDriver struct {
	Now func() time.Time

	mu    sync.Mutex
	timer *time.Timer
}

// NewDeadlineDriver creates a driver measuring time with the wall clock.
func NewDeadlineDriver() *DeadlineDriver {
	return &DeadlineDriver{Now: time.Now}
}

// Start schedules a single tick at the deadline.
func (driver *DeadlineDriver) Start(deadline time.Time, tick func()) {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	if driver.timer != nil {
		driver.timer.Stop()
	}
	now := time.Now
	if driver.Now != nil {
		now = driver.Now
	}
	wait := deadline.Sub(now())
	if wait < 0 {
		wait = 0
	}
	driver.timer = time.AfterFunc(wait, tick)
}

// Stop cancels the pending wake-up.
func (driver *DeadlineDriver) Stop() {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	if driver.timer != nil {
		driver.timer.Stop()
		driver.timer = nil
	}
}
