// Package vad implements energy-based voice activity detection with
// hysteresis. The detector is a pure state machine fed one energy reading
// per tick; it holds no timers of its own, which keeps it deterministic
// and directly testable with synthetic clocks.
package vad

import (
	"fmt"
	"time"
)

// State is the detector's classification of the signal.
type State int

const (
	// StateSilent means no speech is currently detected.
	StateSilent State = iota

	// StateSpeaking means a speech interval is in progress.
	StateSpeaking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateSilent:
		return "silent"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// EventType identifies a confirmed detector transition.
type EventType int

const (
	// EventSpeechStart fires the instant a tick rises above the silence
	// threshold while the detector is silent.
	EventSpeechStart EventType = iota

	// EventSpeechEnd fires when a sustained silence run confirms the end of
	// a speech interval that met the minimum speech duration.
	EventSpeechEnd

	// EventSpeechAborted fires when a confirmed end-of-speech did not meet
	// the minimum speech duration; the interval should be discarded.
	EventSpeechAborted
)

// Event describes a confirmed transition.
type Event struct {
	Type EventType

	// Time is when the transition was confirmed.
	Time time.Time

	// SpeechStart is when the speech interval began.
	SpeechStart time.Time

	// SpeechDuration is the length of the speech interval, measured from
	// SpeechStart to the beginning of the confirming silence run. Set on
	// EventSpeechEnd and EventSpeechAborted.
	SpeechDuration time.Duration
}

// Config holds the detector thresholds.
type Config struct {
	// SilenceThreshold is the normalized energy level above which a tick is
	// classified as speech. Range [0,1].
	SilenceThreshold float64

	// SilenceDuration is how long sub-threshold ticks must persist before a
	// speech interval is considered ended. Brief pauses shorter than this
	// never split an utterance.
	SilenceDuration time.Duration

	// MinSpeechDuration is the minimum confirmed speech length for the
	// interval to be kept; shorter intervals are reported as aborted.
	MinSpeechDuration time.Duration
}

// Detector classifies a stream of energy ticks into speech intervals.
// Not safe for concurrent use; a single goroutine owns it.
type Detector struct {
	cfg   Config
	state State

	speechStart     time.Time
	silenceRunStart time.Time
	inSilenceRun    bool
}

// NewDetector creates a detector in the Silent state.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > 1 {
		return nil, fmt.Errorf("silence threshold must be between 0 and 1, got %f", cfg.SilenceThreshold)
	}
	if cfg.SilenceDuration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive, got %s", cfg.SilenceDuration)
	}
	if cfg.MinSpeechDuration < 0 {
		return nil, fmt.Errorf("minimum speech duration must be non-negative, got %s", cfg.MinSpeechDuration)
	}

	return &Detector{cfg: cfg, state: StateSilent}, nil
}

// State returns the current classification.
func (d *Detector) State() State {
	return d.state
}

// Feed processes one energy tick and returns a confirmed transition event,
// or nil when nothing changed.
func (d *Detector) Feed(level float64, now time.Time) *Event {
	speech := level > d.cfg.SilenceThreshold

	switch d.state {
	case StateSilent:
		if !speech {
			return nil
		}
		// A single above-threshold tick starts a speech interval.
		d.state = StateSpeaking
		d.speechStart = now
		d.inSilenceRun = false
		return &Event{Type: EventSpeechStart, Time: now, SpeechStart: now}

	case StateSpeaking:
		if speech {
			// Any above-threshold tick cancels a pending silence run.
			d.inSilenceRun = false
			return nil
		}

		if !d.inSilenceRun {
			d.inSilenceRun = true
			d.silenceRunStart = now
			return nil
		}

		if now.Sub(d.silenceRunStart) < d.cfg.SilenceDuration {
			return nil
		}

		// Sustained silence: the speech interval ended when the run began.
		return d.confirmEnd(now, d.silenceRunStart)
	}

	return nil
}

// Flush forces the end of an in-progress speech interval, for use when
// capture stops mid-speech. The interval is measured up to now, or up to
// the start of a pending silence run if one is active. Returns nil when
// the detector is already silent.
func (d *Detector) Flush(now time.Time) *Event {
	if d.state != StateSpeaking {
		return nil
	}

	end := now
	if d.inSilenceRun {
		end = d.silenceRunStart
	}
	return d.confirmEnd(now, end)
}

// Reset returns the detector to its initial Silent state.
func (d *Detector) Reset() {
	d.state = StateSilent
	d.speechStart = time.Time{}
	d.silenceRunStart = time.Time{}
	d.inSilenceRun = false
}

func (d *Detector) confirmEnd(now, speechEnd time.Time) *Event {
	duration := speechEnd.Sub(d.speechStart)
	start := d.speechStart

	d.state = StateSilent
	d.inSilenceRun = false
	d.speechStart = time.Time{}
	d.silenceRunStart = time.Time{}

	eventType := EventSpeechEnd
	if duration < d.cfg.MinSpeechDuration {
		eventType = EventSpeechAborted
	}

	return &Event{
		Type:           eventType,
		Time:           now,
		SpeechStart:    start,
		SpeechDuration: duration,
	}
}
