package dictation

import (
	"context"
	"sync"
	"time"

	"github.com/opsdeck/scribe/internal/metrics"
	"github.com/opsdeck/scribe/internal/transcription"
	"github.com/opsdeck/scribe/pkg/logger"
)

// queue serializes transcription work. Segments are processed strictly in
// arrival order and at most one provider call is in flight at any time. A
// failed segment is logged and dropped; the next one proceeds regardless.
type queue struct {
	transcriber transcription.Transcriber
	onResult    func(seg Segment, text string)
	onChange    func()
	logger      *logger.Logger

	mu            sync.Mutex
	pending       []Segment
	inFlight      bool
	workerRunning bool
	abandoned     bool
	wg            sync.WaitGroup
}

func newQueue(t transcription.Transcriber, onResult func(Segment, string), onChange func(), log *logger.Logger) *queue {
	return &queue{
		transcriber: t,
		onResult:    onResult,
		onChange:    onChange,
		logger:      log.Named("queue"),
	}
}

// Enqueue appends a segment and ensures a worker is draining the queue.
// The worker goroutine exits when the queue empties; the next enqueue
// starts a fresh one.
func (q *queue) Enqueue(seg Segment) {
	q.mu.Lock()
	if q.abandoned {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, seg)
	metrics.QueueDepth.Set(float64(len(q.pending) + boolToInt(q.inFlight)))
	start := !q.workerRunning
	if start {
		q.workerRunning = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.notify()
	if start {
		go q.worker()
	}
}

func (q *queue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.abandoned {
			q.workerRunning = false
			metrics.QueueDepth.Set(0)
			q.mu.Unlock()
			q.notify()
			return
		}
		seg := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight = true
		metrics.QueueDepth.Set(float64(len(q.pending) + 1))
		q.mu.Unlock()

		q.notify()

		start := time.Now()
		text, err := q.transcriber.Transcribe(context.Background(), seg.Data)
		metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())

		q.mu.Lock()
		q.inFlight = false
		abandoned := q.abandoned
		metrics.QueueDepth.Set(float64(len(q.pending)))
		q.mu.Unlock()

		switch {
		case err != nil:
			metrics.TranscriptionsFailed.Inc()
			q.logger.Warn("Transcription failed, dropping segment",
				logger.String("session_id", seg.SessionID),
				logger.Int("segment_bytes", len(seg.Data)),
				logger.Error(err))
		case abandoned:
			q.logger.Debug("Discarding result for abandoned session",
				logger.String("session_id", seg.SessionID))
		case text == "":
			q.logger.Debug("Provider returned empty text, dropping segment",
				logger.String("session_id", seg.SessionID))
		default:
			metrics.TranscriptionsSucceeded.Inc()
			q.onResult(seg, text)
		}
	}
}

// Abandon drops all pending segments and marks the queue so an in-flight
// result, if any, is discarded when it returns.
func (q *queue) Abandon() {
	q.mu.Lock()
	q.abandoned = true
	dropped := len(q.pending)
	q.pending = nil
	metrics.QueueDepth.Set(float64(boolToInt(q.inFlight)))
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Info("Abandoned queued segments", logger.Int("dropped", dropped))
	}
}

// Depth returns pending plus in-flight segments.
func (q *queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + boolToInt(q.inFlight)
}

// Transcribing reports whether a provider call is in flight.
func (q *queue) Transcribing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Wait blocks until the worker goroutine has exited.
func (q *queue) Wait() {
	q.wg.Wait()
}

func (q *queue) notify() {
	if q.onChange != nil {
		q.onChange()
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
