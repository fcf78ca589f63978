package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/opsdeck/scribe/pkg/logger"
)

// FFmpegConfig contains configuration for the ffmpeg capture device
type FFmpegConfig struct {
	FFmpegPath  string // Path to the ffmpeg executable
	InputFormat string // Input format for the capture device (e.g., "alsa", "pulse")
	InputDevice string // Device identifier (e.g., "default", "hw:0")
	SampleRate  int    // PCM sample rate in Hz for the energy stream
	Channels    int    // Channel count
	TickMs      int    // Energy tick interval in milliseconds
}

// FFmpegDevice captures audio from an input device through a single ffmpeg
// process with two outputs: an Ogg/Opus container stream on stdout (the
// encoded chunk stream) and raw s16le PCM on an extra pipe, from which the
// energy tick stream is computed. Both derived streams therefore observe
// the same capture session.
type FFmpegDevice struct {
	cfg    FFmpegConfig
	logger *logger.Logger

	cmd      *exec.Cmd
	stdout   io.ReadCloser
	pcmRead  *os.File
	pcmWrite *os.File

	chunks chan Chunk
	ticks  chan Tick

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

// NewFFmpegDevice creates a capture device backed by ffmpeg. The device is
// single-use: one Start/Stop cycle per instance.
func NewFFmpegDevice(cfg FFmpegConfig, log *logger.Logger) (*FFmpegDevice, error) {
	if cfg.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg path is required")
	}
	if cfg.InputDevice == "" {
		return nil, fmt.Errorf("input device is required")
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d or channels %d", cfg.SampleRate, cfg.Channels)
	}
	if cfg.TickMs <= 0 {
		return nil, fmt.Errorf("tick interval must be positive: %d", cfg.TickMs)
	}

	return &FFmpegDevice{
		cfg:    cfg,
		logger: log.Named("ffmpeg-device"),
		chunks: make(chan Chunk, 64),
		ticks:  make(chan Tick, 64),
	}, nil
}

// Chunks returns the encoded chunk stream.
func (d *FFmpegDevice) Chunks() <-chan Chunk { return d.chunks }

// Ticks returns the energy tick stream.
func (d *FFmpegDevice) Ticks() <-chan Tick { return d.ticks }

// Start acquires the capture device by launching the ffmpeg process. An
// ffmpeg startup failure is fatal and returned to the caller; there is no
// automatic retry.
func (d *FFmpegDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return nil
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.logger.Info("Starting capture device",
		logger.String("input_format", d.cfg.InputFormat),
		logger.String("input_device", d.cfg.InputDevice),
		logger.Int("sample_rate", d.cfg.SampleRate),
		logger.Int("channels", d.cfg.Channels))

	var args []string
	args = append(args,
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "nobuffer", // Disable input buffering
		"-flags", "low_delay", // Enable low delay mode
	)
	if d.cfg.InputFormat != "" {
		args = append(args, "-f", d.cfg.InputFormat)
	}
	args = append(args,
		"-i", d.cfg.InputDevice,
		// Encoded container stream for transcription jobs
		"-map", "0:a",
		"-c:a", "libopus",
		"-f", "ogg",
		"-flush_packets", "1",
		"pipe:1",
		// Raw PCM stream for the energy meter
		"-map", "0:a",
		"-ac", fmt.Sprintf("%d", d.cfg.Channels),
		"-ar", fmt.Sprintf("%d", d.cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "s16le",
		"-flush_packets", "1",
		"pipe:3",
	)

	d.cmd = exec.CommandContext(d.ctx, d.cfg.FFmpegPath, args...)

	var err error
	d.stdout, err = d.cmd.StdoutPipe()
	if err != nil {
		d.cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	d.pcmRead, d.pcmWrite, err = os.Pipe()
	if err != nil {
		d.cancel()
		return fmt.Errorf("failed to create pcm pipe: %w", err)
	}
	// Child fd 3
	d.cmd.ExtraFiles = []*os.File{d.pcmWrite}

	if err := d.cmd.Start(); err != nil {
		d.cancel()
		d.pcmRead.Close()
		d.pcmWrite.Close()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// The child holds its own copy of the write end.
	d.pcmWrite.Close()

	d.wg.Add(2)
	go d.processEncodedOutput()
	go d.processEnergy()

	// Close both streams once the readers finish, so consumers observe
	// end-of-session as channel closure.
	go func() {
		d.wg.Wait()
		close(d.chunks)
		close(d.ticks)
	}()

	d.isRunning = true
	return nil
}

// Stop releases the capture device and closes both streams.
func (d *FFmpegDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}

	d.logger.Info("Stopping capture device")

	d.cancel()

	if d.cmd != nil && d.cmd.Process != nil {
		// Errors here are expected: ffmpeg may already be gone.
		_ = d.cmd.Process.Kill()
	}

	// The pipe readers must finish before the process is reaped; Wait
	// closes the stdout pipe under them otherwise.
	d.wg.Wait()

	if d.cmd != nil {
		_ = d.cmd.Wait()
	}
	if d.pcmRead != nil {
		d.pcmRead.Close()
	}

	d.isRunning = false
	return nil
}

// processEncodedOutput reads the container stream from ffmpeg stdout and
// emits ordered chunks. The first chunk of the session carries the
// container header.
func (d *FFmpegDevice) processEncodedOutput() {
	defer d.wg.Done()

	chunker := NewChunker()
	buffer := make([]byte, 4096)

	for {
		n, err := d.stdout.Read(buffer)
		if n > 0 {
			chunk := chunker.Next(buffer[:n], time.Now())
			select {
			case d.chunks <- chunk:
			case <-d.ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF && d.ctx.Err() == nil {
				d.logger.Error("Error reading encoded stream", logger.Error(err))
			}
			d.logger.Debug("Encoded stream ended", logger.Int("chunks_emitted", chunker.Count()))
			return
		}
	}
}

// processEnergy reads fixed windows of PCM from the extra pipe and emits
// one normalized energy tick per window. Ticks are dropped when the
// consumer falls behind; they are transient readings, not audio data.
func (d *FFmpegDevice) processEnergy() {
	defer d.wg.Done()

	window := make([]byte, TickWindowBytes(d.cfg.SampleRate, d.cfg.Channels, d.cfg.TickMs))

	for {
		if _, err := io.ReadFull(d.pcmRead, window); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && d.ctx.Err() == nil {
				d.logger.Error("Error reading pcm stream", logger.Error(err))
			}
			return
		}

		tick := Tick{Level: EnergyLevel(window), Time: time.Now()}
		select {
		case d.ticks <- tick:
		default:
			// Consumer is behind; drop the reading.
		}

		if d.ctx.Err() != nil {
			return
		}
	}
}
