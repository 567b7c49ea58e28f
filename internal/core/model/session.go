package model

import "time"

// Outcome describes how a focus session ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomeAwayTooLong Outcome = "away_too_long"
)

// Valid reports whether the outcome is one of the known values.
func (outcome Outcome) Valid() bool {
	switch outcome {
	case OutcomeCompleted, OutcomeAbandoned, OutcomeAwayTooLong:
		return true
	default:
		return false
	}
}

// SessionEntry is one finished session in the history.
type SessionEntry struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Planned   time.Duration
	Focused   time.Duration
	Outcome   Outcome
	Streak    int
	Coins     int
}

// Stats summarises the session history.
type Stats struct {
	Completed   int
	Abandoned   int
	AwayTooLong int
	FocusTime   time.Duration
	Coins       int
	Streak      int
}

// DayFocus is the focused time on one calendar day.
type DayFocus struct {
	Day     time.Time
	Focused time.Duration
}

// FocusBreakdown splits recent focused time by calendar period. Week covers
// the last seven days with today included, and Days lists them oldest first.
type FocusBreakdown struct {
	Today time.Duration
	Week  time.Duration
	Month time.Duration
	Days  []DayFocus
}
