// Package ledger turns finished focus sessions into history entries and
// coin rewards.
package ledger

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"catcafe/internal/core/model"
	"catcafe/internal/core/rewards"
	"catcafe/internal/core/sessiontimer"
)

// sessionNamespace scopes the IDs derived from session start timestamps.
var sessionNamespace = uuid.MustParse("6f1c1d2e-7a43-4c55-9b7e-3f0c2a9d8e11")

// History is the persistence the recorder writes to.
type History interface {
	SaveSession(ctx context.Context, entry model.SessionEntry) (string, error)
	CompletionTimes(ctx context.Context) ([]time.Time, error)
}

// Options configures a Recorder.
type Options struct {
	Location *time.Location
	Logger   *log.Logger
	// Duplicate reports whether a save error means the session already
	// exists; such errors are not logged.
	Duplicate func(error) bool
	// OnRecorded, when set, runs after each entry is saved.
	OnRecorded func(model.SessionEntry)
}

// Recorder listens to a session timer and saves each finished session.
// Saving happens on a worker goroutine so the timer never waits on disk.
type Recorder struct {
	history History
	options Options

	queue chan sessiontimer.Event
	stop  chan struct{}
	done  chan struct{}

	closeOnce sync.Once
}

// NewRecorder creates a Recorder and starts its worker.
func NewRecorder(history History, options Options) *Recorder {
	if options.Location == nil {
		options.Location = time.Local
	}
	if options.Logger == nil {
		options.Logger = log.Default()
	}
	recorder := &Recorder{
		history: history,
		options: options,
		queue:   make(chan sessiontimer.Event, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go recorder.run()
	return recorder
}

// Listener returns the timer listener feeding the recorder.
func (recorder *Recorder) Listener() sessiontimer.Listener {
	return func(event sessiontimer.Event) {
		if !finishes(event.Type) {
			return
		}
		select {
		case recorder.queue <- event:
		case <-recorder.stop:
		default:
			recorder.options.Logger.Printf("ledger: queue full, dropping %s event", event.Type)
		}
	}
}

// Close drains queued events and stops the worker.
func (recorder *Recorder) Close() {
	recorder.closeOnce.Do(func() {
		close(recorder.stop)
		<-recorder.done
	})
}

func (recorder *Recorder) run() {
	defer close(recorder.done)
	for {
		select {
		case event := <-recorder.queue:
			recorder.save(event)
		case <-recorder.stop:
			for {
				select {
				case event := <-recorder.queue:
					recorder.save(event)
				default:
					return
				}
			}
		}
	}
}

func (recorder *Recorder) save(event sessiontimer.Event) {
	if _, err := recorder.Record(context.Background(), event); err != nil {
		recorder.options.Logger.Printf("ledger: record %s: %v", event.Type, err)
	}
}

// Record saves the session an event finishes and returns the stored entry.
// Events that do not finish a session are ignored.
func (recorder *Recorder) Record(ctx context.Context, event sessiontimer.Event) (model.SessionEntry, error) {
	entry, ok := Entry(event)
	if !ok {
		return model.SessionEntry{}, nil
	}

	if entry.Outcome == model.OutcomeCompleted {
		completions, err := recorder.history.CompletionTimes(ctx)
		if err != nil {
			return model.SessionEntry{}, err
		}
		completions = append(completions, entry.EndedAt)
		entry.Streak = rewards.Streak(completions, entry.EndedAt, recorder.options.Location)
		entry.Coins = rewards.Coins(entry.Focused, bonusDays(entry.Streak))
	}

	if _, err := recorder.history.SaveSession(ctx, entry); err != nil {
		if recorder.options.Duplicate != nil && recorder.options.Duplicate(err) {
			return entry, nil
		}
		return model.SessionEntry{}, err
	}
	if recorder.options.OnRecorded != nil {
		recorder.options.OnRecorded(entry)
	}
	return entry, nil
}

// Entry maps a finishing event to a history entry without rewards. The ID is
// derived from the session start so a session is stored at most once.
func Entry(event sessiontimer.Event) (model.SessionEntry, bool) {
	if !finishes(event.Type) || event.Session.StartTimestamp <= 0 {
		return model.SessionEntry{}, false
	}
	record := event.Session
	entry := model.SessionEntry{
		ID:        SessionID(record),
		StartedAt: record.StartedAt(),
		EndedAt:   event.At,
		Planned:   record.Duration(),
	}
	switch event.Type {
	case sessiontimer.EventComplete:
		entry.Outcome = model.OutcomeCompleted
		entry.EndedAt = record.Deadline()
		entry.Focused = record.Duration()
	case sessiontimer.EventStopped:
		entry.Outcome = model.OutcomeAbandoned
		entry.Focused = focused(record.Duration(), event.Remaining, 0)
	case sessiontimer.EventAwayTooLong:
		entry.Outcome = model.OutcomeAwayTooLong
		entry.Focused = focused(record.Duration(), event.Remaining, event.Away)
	}
	if entry.EndedAt.IsZero() {
		entry.EndedAt = time.Now()
	}
	return entry, true
}

// SessionID returns the stable history ID for a persisted session.
func SessionID(record sessiontimer.Record) string {
	return uuid.NewSHA1(sessionNamespace, []byte(strconv.FormatInt(record.StartTimestamp, 10))).String()
}

func finishes(eventType sessiontimer.EventType) bool {
	switch eventType {
	case sessiontimer.EventComplete, sessiontimer.EventStopped, sessiontimer.EventAwayTooLong:
		return true
	default:
		return false
	}
}

func focused(planned, remaining, away time.Duration) time.Duration {
	spent := planned - remaining - away
	if spent < 0 {
		return 0
	}
	return spent
}

// bonusDays excludes the current day: the first day of a streak earns the
// base rate.
func bonusDays(streak int) int {
	if streak <= 1 {
		return 0
	}
	return streak - 1
}
