package platform

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrIdleUnsupported indicates the platform cannot report input idleness.
var ErrIdleUnsupported = errors.New("idle detection unsupported")

// IdleProvider returns the duration since last user input.
type IdleProvider interface {
	IdleDuration() (time.Duration, error)
}

// NewIdleProvider returns a platform-specific idle provider.
func NewIdleProvider() IdleProvider {
	return newIdleProvider()
}

// Presence receives away and return transitions.
type Presence interface {
	OnBackground(ctx context.Context)
	OnForeground(ctx context.Context)
}

// IdleWatcher treats a desktop without input for longer than a threshold as
// the app being in the background.
type IdleWatcher struct {
	provider  IdleProvider
	presence  Presence
	threshold time.Duration
	interval  time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	away    bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewIdleWatcher creates a watcher polling provider every interval.
func NewIdleWatcher(provider IdleProvider, presence Presence, threshold, interval time.Duration, logger *log.Logger) *IdleWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IdleWatcher{
		provider:  provider,
		presence:  presence,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins polling until ctx ends or Stop is called.
func (watcher *IdleWatcher) Start(ctx context.Context) {
	watcher.mu.Lock()
	if watcher.stop != nil || watcher.stopped {
		watcher.mu.Unlock()
		return
	}
	watcher.stop = make(chan struct{})
	watcher.done = make(chan struct{})
	stop, done := watcher.stop, watcher.done
	watcher.mu.Unlock()

	go watcher.run(ctx, stop, done)
}

// Stop ends polling and waits for the loop to exit.
func (watcher *IdleWatcher) Stop() {
	watcher.mu.Lock()
	if watcher.stopped {
		watcher.mu.Unlock()
		return
	}
	watcher.stopped = true
	stop, done := watcher.stop, watcher.done
	watcher.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Away reports whether the last poll found the user idle.
func (watcher *IdleWatcher) Away() bool {
	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	return watcher.away
}

func (watcher *IdleWatcher) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(watcher.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := watcher.Poll(ctx); err != nil {
				if errors.Is(err, ErrIdleUnsupported) {
					watcher.logger.Printf("idle watcher: %v", err)
					return
				}
				watcher.logger.Printf("idle watcher: poll: %v", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll samples idleness once and reports a transition to the presence.
func (watcher *IdleWatcher) Poll(ctx context.Context) error {
	idle, err := watcher.provider.IdleDuration()
	if err != nil {
		return err
	}
	isAway := idle >= watcher.threshold

	watcher.mu.Lock()
	changed := isAway != watcher.away
	watcher.away = isAway
	watcher.mu.Unlock()

	if !changed {
		return nil
	}
	if isAway {
		watcher.presence.OnBackground(ctx)
	} else {
		watcher.presence.OnForeground(ctx)
	}
	return nil
}
