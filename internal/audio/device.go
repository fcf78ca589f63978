package audio

import (
	"context"
	"time"
)

// Chunk is one block of encoded container audio produced by a capture
// session. Chunks are strictly ordered and contiguous; the first chunk of a
// session carries the container header metadata and is flagged with Header.
// No later chunk can be decoded standalone without that header.
type Chunk struct {
	Data   []byte
	Seq    int
	Header bool
	Time   time.Time
}

// Tick is a transient energy sample taken from the live signal at a fixed
// cadence. Level is normalized to [0,1].
type Tick struct {
	Level float64
	Time  time.Time
}

// Device is a capture session producing two derived streams from the same
// underlying audio input: encoded container chunks and periodic energy
// ticks. Both channels are closed when the device stops.
type Device interface {
	// Start acquires the underlying capture device and begins producing
	// chunks and ticks. A failure to acquire the device is fatal to the
	// session and is returned synchronously.
	Start(ctx context.Context) error

	// Chunks returns the encoded chunk stream. Chunks arrive in per-session
	// monotonic order with no gaps.
	Chunks() <-chan Chunk

	// Ticks returns the energy tick stream.
	Ticks() <-chan Tick

	// Stop releases the capture device and closes both streams.
	Stop() error
}
