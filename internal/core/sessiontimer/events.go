package sessiontimer

import (
	"sync"
	"time"
)

// State represents the current SessionTimer mode.
type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateBackgrounded State = "backgrounded"
	StateCompleted    State = "completed"
	StateCancelled    State = "cancelled"
)

// Active reports whether the state belongs to a live session.
func (state State) Active() bool {
	return state == StateRunning || state == StateBackgrounded
}

// EventType defines the type of SessionTimer event.
type EventType string

const (
	EventStateChange       EventType = "state_change"
	EventProgress          EventType = "progress"
	EventSessionTimeChange EventType = "session_time_change"
	EventComplete          EventType = "complete"
	EventStopped           EventType = "stopped"
	EventAwayTooLong       EventType = "away_too_long"
)

// Event represents a SessionTimer update for observers.
type Event struct {
	Type      EventType
	State     State
	Active    bool
	Remaining time.Duration
	Duration  time.Duration
	Session   Record
	Away      time.Duration
	At        time.Time
}

// Listener receives events synchronously and must not block.
type Listener func(Event)

// Dispatcher fans events out to listeners and channel subscribers.
type Dispatcher struct {
	mu          sync.Mutex
	listeners   []Listener
	subscribers []chan Event
}

// Listen registers a listener invoked for every event.
func (dispatcher *Dispatcher) Listen(listener Listener) {
	if listener == nil {
		return
	}
	dispatcher.mu.Lock()
	dispatcher.listeners = append(dispatcher.listeners, listener)
	dispatcher.mu.Unlock()
}

// Subscribe registers a new observer channel. Events are dropped when the
// channel buffer is full.
func (dispatcher *Dispatcher) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	dispatcher.mu.Lock()
	dispatcher.subscribers = append(dispatcher.subscribers, ch)
	dispatcher.mu.Unlock()
	return ch
}

// Close closes all subscriber channels.
func (dispatcher *Dispatcher) Close() {
	dispatcher.mu.Lock()
	subscribers := dispatcher.subscribers
	dispatcher.subscribers = nil
	dispatcher.mu.Unlock()

	for _, ch := range subscribers {
		close(ch)
	}
}

// Dispatch delivers events in order.
func (dispatcher *Dispatcher) Dispatch(events ...Event) {
	if len(events) == 0 {
		return
	}
	dispatcher.mu.Lock()
	listeners := append([]Listener(nil), dispatcher.listeners...)
	subscribers := append([]chan Event(nil), dispatcher.subscribers...)
	dispatcher.mu.Unlock()

	for _, event := range events {
		for _, listener := range listeners {
			listener(event)
		}
		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Callbacks adapts plain callbacks onto the event stream.
type Callbacks struct {
	OnComplete          func()
	OnStateChange       func(active bool)
	OnSessionTimeChange func(length time.Duration)
	OnAwayTooLong       func()
}

// Listener returns a Listener routing events to the configured callbacks.
func (callbacks Callbacks) Listener() Listener {
	return func(event Event) {
		switch event.Type {
		case EventComplete:
			if callbacks.OnComplete != nil {
				callbacks.OnComplete()
			}
		case EventStateChange:
			if callbacks.OnStateChange != nil {
				callbacks.OnStateChange(event.Active)
			}
		case EventSessionTimeChange:
			if callbacks.OnSessionTimeChange != nil {
				callbacks.OnSessionTimeChange(event.Duration)
			}
		case EventAwayTooLong:
			if callbacks.OnAwayTooLong != nil {
				callbacks.OnAwayTooLong()
			}
		}
	}
}
