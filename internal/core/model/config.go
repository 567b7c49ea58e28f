package model

import "time"

const (
	// SessionStep is the granularity of a configured session length.
	SessionStep = time.Minute
	// MaxSessionLength is the longest session a user can configure.
	MaxSessionLength = 120 * time.Minute
	// DefaultSessionLength is used until the user picks another value.
	DefaultSessionLength = 25 * time.Minute
	// DefaultAwayLimit is how long a strict session tolerates the app being away.
	DefaultAwayLimit = 5 * time.Second
)

// TimerConfig contains runtime settings for the session timer state machine.
type TimerConfig struct {
	SessionLength time.Duration
	StrictMode    bool
	AwayLimit     time.Duration
	Notifications bool
}

// DefaultTimerConfig returns the configuration used on first launch.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		SessionLength: DefaultSessionLength,
		AwayLimit:     DefaultAwayLimit,
		Notifications: true,
	}
}

// QuantizeSession rounds a session length to the nearest whole minute
// (half a minute rounds up) and clamps it to [0, MaxSessionLength].
func QuantizeSession(length time.Duration) time.Duration {
	if length <= 0 {
		return 0
	}
	length = length.Round(time.Second)
	steps := (length + SessionStep/2) / SessionStep
	quantized := steps * SessionStep
	if quantized > MaxSessionLength {
		return MaxSessionLength
	}
	return quantized
}
