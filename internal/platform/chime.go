package platform

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"

	"catcafe/internal/core/sessiontimer"
)

const (
	chimeSampleRate = beep.SampleRate(44100)
	chimeFrequency  = 880.0
	chimeLength     = 600 * time.Millisecond
)

// Chime plays a short synthesized tone when a session completes.
type Chime struct {
	logger *log.Logger
	volume float64
	// play is speaker.Play outside of tests.
	play func(beep.Streamer)

	initOnce sync.Once
	initErr  error
	open     func() error
}

// NewChime returns a chime bound to the default audio output. The speaker
// is opened lazily on first play.
func NewChime(logger *log.Logger) *Chime {
	if logger == nil {
		logger = log.Default()
	}
	return &Chime{
		logger: logger,
		volume: -1,
		play:   func(s beep.Streamer) { speaker.Play(s) },
		open: func() error {
			return speaker.Init(chimeSampleRate, chimeSampleRate.N(time.Second/10))
		},
	}
}

// Play queues the tone on the speaker.
func (chime *Chime) Play() error {
	chime.initOnce.Do(func() {
		if err := chime.open(); err != nil {
			chime.initErr = fmt.Errorf("init speaker: %w", err)
		}
	})
	if chime.initErr != nil {
		return chime.initErr
	}
	chime.play(&effects.Volume{
		Streamer: Tone(chimeSampleRate, chimeFrequency, chimeLength),
		Base:     2,
		Volume:   chime.volume,
	})
	return nil
}

// Listener plays the chime on completion while enabled returns true.
func (chime *Chime) Listener(enabled func() bool) sessiontimer.Listener {
	return func(event sessiontimer.Event) {
		if event.Type != sessiontimer.EventComplete || (enabled != nil && !enabled()) {
			return
		}
		if err := chime.Play(); err != nil {
			chime.logger.Printf("chime: %v", err)
		}
	}
}

// Tone is a sine wave of the given frequency with a linear fade-out.
func Tone(sampleRate beep.SampleRate, frequency float64, length time.Duration) beep.Streamer {
	total := sampleRate.N(length)
	position := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if position >= total {
			return 0, false
		}
		n := 0
		for n < len(samples) && position < total {
			phase := 2 * math.Pi * frequency * float64(position) / float64(sampleRate)
			envelope := 1 - float64(position)/float64(total)
			value := math.Sin(phase) * envelope
			samples[n][0] = value
			samples[n][1] = value
			n++
			position++
		}
		return n, true
	})
}
