// Package metrics exposes Prometheus instrumentation for the dictation
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AudioTicks counts energy ticks received from the capture device.
	AudioTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_audio_ticks_total",
		Help: "Number of audio energy ticks processed",
	})

	// SegmentsAssembled counts speech segments handed to the queue.
	SegmentsAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_segments_assembled_total",
		Help: "Number of speech segments assembled and enqueued",
	})

	// SegmentsDiscarded counts speech runs dropped for being too short.
	SegmentsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_segments_discarded_total",
		Help: "Number of speech runs discarded below the minimum duration",
	})

	// TranscriptionsSucceeded counts provider calls that returned text.
	TranscriptionsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_transcriptions_succeeded_total",
		Help: "Number of segments transcribed successfully",
	})

	// TranscriptionsFailed counts provider calls that errored. The
	// corresponding segments are dropped.
	TranscriptionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_transcriptions_failed_total",
		Help: "Number of segments whose transcription failed",
	})

	// TranscriptionDuration observes provider round-trip time.
	TranscriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scribe_transcription_duration_seconds",
		Help:    "Provider round-trip time per segment",
		Buckets: prometheus.DefBuckets,
	})

	// QueueDepth tracks segments waiting for or undergoing transcription.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribe_transcription_queue_depth",
		Help: "Segments currently queued or in flight",
	})
)
