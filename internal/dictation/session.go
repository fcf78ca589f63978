package dictation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/scribe/internal/audio"
	"github.com/opsdeck/scribe/internal/metrics"
	"github.com/opsdeck/scribe/internal/vad"
	"github.com/opsdeck/scribe/pkg/logger"
)

// session owns one capture run: a device, a speech detector, the header
// chunk, and the utterance buffer. A single goroutine consumes both device
// channels, so all segment state is touched from one place.
type session struct {
	id        string
	device    audio.Device
	detector  *vad.Detector
	queue     *queue
	speaker   func() string
	onLevel   func(level float64, at time.Time)
	onChange  func()
	logger    *logger.Logger
	startedAt time.Time

	header      []byte
	buffer      [][]byte
	bufferBytes int
	segSpeaker  string

	mu       sync.Mutex
	level    float64
	speaking bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(device audio.Device, detector *vad.Detector, q *queue, speaker func() string, onLevel func(float64, time.Time), onChange func(), log *logger.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:        id,
		device:    device,
		detector:  detector,
		queue:     q,
		speaker:   speaker,
		onLevel:   onLevel,
		onChange:  onChange,
		logger:    log.Named("session").With(logger.String("session_id", id)),
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// start acquires the device and launches the run loop. The capture run is
// detached from the caller's cancellation: a session started from an HTTP
// request keeps recording after the request completes, so the device
// context ends only when stop is called.
func (s *session) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if err := s.device.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start audio device: %w", err)
	}

	go s.run()
	return nil
}

// run consumes ticks and chunks until the device closes both channels,
// then flushes any speech still in progress. The queue keeps draining
// after run returns.
func (s *session) run() {
	defer close(s.done)

	ticks := s.device.Ticks()
	chunks := s.device.Chunks()

	for ticks != nil || chunks != nil {
		select {
		case t, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			s.handleTick(t)

		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			s.handleChunk(c)
		}
	}

	s.finish()
}

func (s *session) handleTick(t audio.Tick) {
	metrics.AudioTicks.Inc()

	s.mu.Lock()
	s.level = t.Level
	s.mu.Unlock()

	if s.onLevel != nil {
		s.onLevel(t.Level, t.Time)
	}

	ev := s.detector.Feed(t.Level, t.Time)
	if ev == nil {
		return
	}

	switch ev.Type {
	case vad.EventSpeechStart:
		s.buffer = s.buffer[:0]
		s.bufferBytes = 0
		// The speaker is fixed at speech start; changing it mid-utterance
		// does not relabel the segment in progress.
		s.segSpeaker = s.speaker()
		s.setSpeaking(true)
		s.logger.Debug("Speech started", logger.String("speaker", s.segSpeaker))

	case vad.EventSpeechEnd:
		s.enqueueSegment(ev)
		s.setSpeaking(false)

	case vad.EventSpeechAborted:
		s.discardSegment(ev)
		s.setSpeaking(false)
	}
}

func (s *session) handleChunk(c audio.Chunk) {
	if c.Header {
		s.header = c.Data
		return
	}
	// Chunks outside speech are dropped; chunks during a pending silence
	// run are still buffered because the detector stays in the speaking
	// state until the run is confirmed.
	if s.detector.State() != vad.StateSpeaking {
		return
	}
	s.buffer = append(s.buffer, c.Data)
	s.bufferBytes += len(c.Data)
}

// finish handles a capture stopped mid-utterance: the detector is flushed
// and a sufficiently long final segment is enqueued like any other.
func (s *session) finish() {
	ev := s.detector.Flush(time.Now().UTC())
	if ev == nil {
		return
	}

	switch ev.Type {
	case vad.EventSpeechEnd:
		s.enqueueSegment(ev)
	case vad.EventSpeechAborted:
		s.discardSegment(ev)
	}
	s.setSpeaking(false)
}

func (s *session) enqueueSegment(ev *vad.Event) {
	if len(s.buffer) == 0 {
		s.logger.Debug("Speech ended with no buffered chunks")
		return
	}

	data := make([]byte, 0, len(s.header)+s.bufferBytes)
	data = append(data, s.header...)
	for _, chunk := range s.buffer {
		data = append(data, chunk...)
	}
	s.buffer = nil
	s.bufferBytes = 0

	metrics.SegmentsAssembled.Inc()
	s.logger.Info("Segment assembled",
		logger.Duration("speech_duration", ev.SpeechDuration),
		logger.Int("bytes", len(data)))

	s.queue.Enqueue(Segment{
		SessionID:  s.id,
		Speaker:    s.segSpeaker,
		Data:       data,
		Duration:   ev.SpeechDuration,
		CapturedAt: ev.SpeechStart,
	})
}

func (s *session) discardSegment(ev *vad.Event) {
	metrics.SegmentsDiscarded.Inc()
	s.logger.Debug("Discarded short speech run",
		logger.Duration("speech_duration", ev.SpeechDuration))
	s.buffer = nil
	s.bufferBytes = 0
}

func (s *session) setSpeaking(speaking bool) {
	s.mu.Lock()
	s.speaking = speaking
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange()
	}
}

// stop tears the device down and waits for the run loop to drain.
func (s *session) stop() error {
	err := s.device.Stop()
	s.cancel()
	<-s.done
	return err
}

func (s *session) snapshot() (level float64, speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.speaking
}
