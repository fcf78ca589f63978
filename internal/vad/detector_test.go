package vad

import (
	"testing"
	"time"
)

const tick = 50 * time.Millisecond

func testConfig() Config {
	return Config{
		SilenceThreshold:  0.08,
		SilenceDuration:   1000 * time.Millisecond,
		MinSpeechDuration: 300 * time.Millisecond,
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(testConfig())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

// feedRun feeds count ticks at the given level starting at start, returning
// all non-nil events and the time after the last tick.
func feedRun(d *Detector, level float64, start time.Time, count int) ([]*Event, time.Time) {
	var events []*Event
	now := start
	for i := 0; i < count; i++ {
		if ev := d.Feed(level, now); ev != nil {
			events = append(events, ev)
		}
		now = now.Add(tick)
	}
	return events, now
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative threshold", Config{SilenceThreshold: -0.1, SilenceDuration: time.Second}},
		{"threshold above one", Config{SilenceThreshold: 1.1, SilenceDuration: time.Second}},
		{"zero silence duration", Config{SilenceThreshold: 0.5}},
		{"negative min speech", Config{SilenceThreshold: 0.5, SilenceDuration: time.Second, MinSpeechDuration: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDetector(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSilentStreamProducesNothing(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Scenario A: below threshold the whole session.
	events, _ := feedRun(d, 0.02, start, 200)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if d.State() != StateSilent {
		t.Errorf("expected silent state, got %s", d.State())
	}
}

func TestSpeechStartFiresOnSingleTick(t *testing.T) {
	d := newTestDetector(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ev := d.Feed(0.5, now)
	if ev == nil || ev.Type != EventSpeechStart {
		t.Fatalf("expected speech start event, got %+v", ev)
	}
	if !ev.SpeechStart.Equal(now) {
		t.Errorf("expected speech start at %s, got %s", now, ev.SpeechStart)
	}
	if d.State() != StateSpeaking {
		t.Errorf("expected speaking state, got %s", d.State())
	}
}

func TestSpeechEndRequiresSustainedSilence(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Scenario B: 500ms above threshold, then 1200ms below.
	_, now := feedRun(d, 0.5, start, 10) // 500ms of speech
	silenceStart := now
	events, _ := feedRun(d, 0.02, now, 24) // 1200ms of silence

	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventSpeechEnd {
		t.Fatalf("expected speech end, got type %d", ev.Type)
	}
	if ev.SpeechDuration != 500*time.Millisecond {
		t.Errorf("expected 500ms speech duration, got %s", ev.SpeechDuration)
	}
	// The end must not be confirmed before the hysteresis window elapses.
	if ev.Time.Sub(silenceStart) < 1000*time.Millisecond {
		t.Errorf("speech end confirmed after only %s of silence", ev.Time.Sub(silenceStart))
	}
	if d.State() != StateSilent {
		t.Errorf("expected silent state after confirmed end, got %s", d.State())
	}
}

func TestAboveThresholdTickResetsSilenceRun(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, now := feedRun(d, 0.5, start, 10) // speaking

	// 900ms of silence: not enough to confirm.
	events, now := feedRun(d, 0.02, now, 18)
	if len(events) != 0 {
		t.Fatalf("silence run confirmed early: %d events", len(events))
	}

	// One above-threshold tick cancels the pending run.
	if ev := d.Feed(0.5, now); ev != nil {
		t.Fatalf("unexpected event on resumed speech: %+v", ev)
	}
	now = now.Add(tick)

	// Another 900ms of silence still must not confirm.
	events, _ = feedRun(d, 0.02, now, 18)
	if len(events) != 0 {
		t.Fatalf("silence run was not reset by speech tick: %d events", len(events))
	}
	if d.State() != StateSpeaking {
		t.Errorf("expected speaking state, got %s", d.State())
	}
}

func TestShortBlipIsAborted(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Scenario C: 150ms blip, below the 300ms minimum.
	_, now := feedRun(d, 0.5, start, 3)
	events, _ := feedRun(d, 0.02, now, 25)

	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventSpeechAborted {
		t.Fatalf("expected aborted event, got type %d", ev.Type)
	}
	if ev.SpeechDuration != 150*time.Millisecond {
		t.Errorf("expected 150ms duration, got %s", ev.SpeechDuration)
	}
	if d.State() != StateSilent {
		t.Errorf("expected silent state, got %s", d.State())
	}
}

func TestFlushMidSpeech(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Scenario E: stop after 400ms of accumulated speech.
	_, now := feedRun(d, 0.5, start, 8)

	ev := d.Flush(now)
	if ev == nil || ev.Type != EventSpeechEnd {
		t.Fatalf("expected speech end from flush, got %+v", ev)
	}
	if ev.SpeechDuration != 400*time.Millisecond {
		t.Errorf("expected 400ms duration, got %s", ev.SpeechDuration)
	}
	if d.State() != StateSilent {
		t.Errorf("expected silent state after flush, got %s", d.State())
	}
}

func TestFlushShortSpeechIsAborted(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, now := feedRun(d, 0.5, start, 2) // 100ms

	ev := d.Flush(now)
	if ev == nil || ev.Type != EventSpeechAborted {
		t.Fatalf("expected aborted event from short flush, got %+v", ev)
	}
}

func TestFlushWhileSilentReturnsNil(t *testing.T) {
	d := newTestDetector(t)
	if ev := d.Flush(time.Now()); ev != nil {
		t.Fatalf("expected nil from flush while silent, got %+v", ev)
	}
}

func TestFlushDuringPendingSilenceRunUsesRunStart(t *testing.T) {
	d := newTestDetector(t)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, now := feedRun(d, 0.5, start, 10) // 500ms of speech
	runStart := now
	_, now = feedRun(d, 0.02, now, 10) // 500ms into a pending silence run

	ev := d.Flush(now)
	if ev == nil || ev.Type != EventSpeechEnd {
		t.Fatalf("expected speech end, got %+v", ev)
	}
	// Duration measured to the silence run start, not to the flush time.
	want := runStart.Sub(start)
	if ev.SpeechDuration != want {
		t.Errorf("expected %s duration, got %s", want, ev.SpeechDuration)
	}
}

func TestDetectorReusableAcrossUtterances(t *testing.T) {
	d := newTestDetector(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		var events []*Event
		evs, next := feedRun(d, 0.5, now, 10)
		events = append(events, evs...)
		evs, next = feedRun(d, 0.02, next, 25)
		events = append(events, evs...)
		now = next

		if len(events) != 2 {
			t.Fatalf("utterance %d: expected start+end, got %d events", i, len(events))
		}
		if events[0].Type != EventSpeechStart || events[1].Type != EventSpeechEnd {
			t.Fatalf("utterance %d: unexpected event types %d,%d", i, events[0].Type, events[1].Type)
		}
	}
}

func TestReset(t *testing.T) {
	d := newTestDetector(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.Feed(0.5, now)
	if d.State() != StateSpeaking {
		t.Fatal("expected speaking state before reset")
	}

	d.Reset()
	if d.State() != StateSilent {
		t.Errorf("expected silent state after reset, got %s", d.State())
	}
	if ev := d.Flush(now); ev != nil {
		t.Errorf("expected no event after reset, got %+v", ev)
	}
}
