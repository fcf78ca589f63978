package dictation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/scribe/internal/audio"
	"github.com/opsdeck/scribe/internal/config"
	"github.com/opsdeck/scribe/pkg/logger"
)

// fakeDevice hands the session scripted ticks and chunks. Channels are
// unbuffered so each send completes only after the session consumed it,
// which keeps test sequences deterministic.
type fakeDevice struct {
	ticks  chan audio.Tick
	chunks chan audio.Chunk

	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	startCtx context.Context
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		ticks:  make(chan audio.Tick),
		chunks: make(chan audio.Chunk),
	}
}

func (d *fakeDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	d.startCtx = ctx
	return nil
}

func (d *fakeDevice) startContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startCtx
}

func (d *fakeDevice) Chunks() <-chan audio.Chunk { return d.chunks }
func (d *fakeDevice) Ticks() <-chan audio.Tick   { return d.ticks }

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true
	close(d.ticks)
	close(d.chunks)
	return nil
}

func testServiceConfig() *config.Config {
	return &config.Config{
		VAD: config.VADConfig{
			SilenceThreshold:  0.08,
			SilenceDurationMs: 1000,
			MinSpeechMs:       300,
		},
		Dictation: config.DictationConfig{DefaultSpeaker: "operator"},
	}
}

func newTestService(t *testing.T, ft *fakeTranscriber) (*Service, *fakeDevice) {
	t.Helper()
	device := newFakeDevice()
	factory := func() (audio.Device, error) { return device, nil }
	svc := NewService(testServiceConfig(), factory, ft, nil, nil, logger.NewNop())
	t.Cleanup(func() {
		if svc.Status().Active {
			svc.Stop()
		}
	})
	return svc, device
}

// speak pushes a full utterance through the device: speech ticks with a
// chunk after each, then enough silence to confirm the end. Returns the
// time after the last tick.
func speak(d *fakeDevice, start time.Time, speechTicks int, chunks [][]byte) time.Time {
	now := start
	for i := 0; i < speechTicks; i++ {
		d.ticks <- audio.Tick{Level: 0.5, Time: now}
		now = now.Add(50 * time.Millisecond)
	}
	for _, data := range chunks {
		d.chunks <- audio.Chunk{Data: data, Seq: 1, Time: now}
	}
	for i := 0; i < 22; i++ {
		d.ticks <- audio.Tick{Level: 0.02, Time: now}
		now = now.Add(50 * time.Millisecond)
	}
	return now
}

func TestServiceLifecycle(t *testing.T) {
	svc, device := newTestService(t, &fakeTranscriber{})

	if err := svc.Stop(); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	st := svc.Status()
	if !st.Active || st.SessionID == "" {
		t.Errorf("unexpected status after start: %+v", st)
	}
	if st.Speaker != "operator" {
		t.Errorf("expected default speaker, got %q", st.Speaker)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !device.stopped {
		t.Error("device was not stopped")
	}
	if svc.Status().Active {
		t.Error("status still active after stop")
	}
}

func TestServiceSessionOutlivesStartContext(t *testing.T) {
	svc, device := newTestService(t, &fakeTranscriber{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A request context is canceled the moment the start handler returns;
	// the capture device must keep running regardless.
	cancel()

	runCtx := device.startContext()
	if err := runCtx.Err(); err != nil {
		t.Fatalf("device context canceled with the caller's context: %v", err)
	}
	if !svc.Status().Active {
		t.Error("session not active after caller context cancellation")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if runCtx.Err() == nil {
		t.Error("device context still live after stop")
	}
}

func TestServiceStartFactoryFailure(t *testing.T) {
	factory := func() (audio.Device, error) {
		return nil, errors.New("no capture device")
	}
	svc := NewService(testServiceConfig(), factory, &fakeTranscriber{}, nil, nil, logger.NewNop())

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected factory error from Start")
	}
	if svc.Status().Active {
		t.Error("service active after failed start")
	}

	svc.mu.RLock()
	current, lastQueue := svc.current, svc.lastQueue
	svc.mu.RUnlock()
	if current != nil {
		t.Error("session retained after failed start")
	}
	if lastQueue != nil {
		t.Error("queue retained after failed start")
	}
}

func TestServiceStartAcquisitionFailure(t *testing.T) {
	device := newFakeDevice()
	device.startErr = errors.New("device busy")
	factory := func() (audio.Device, error) { return device, nil }
	svc := NewService(testServiceConfig(), factory, &fakeTranscriber{}, nil, nil, logger.NewNop())

	err := svc.Start(context.Background())
	if err == nil {
		t.Fatal("expected acquisition error from Start")
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Errorf("acquisition error not propagated: %v", err)
	}
	if svc.Status().Active {
		t.Error("service active after failed acquisition")
	}

	// The device coming back makes a later start succeed.
	device.mu.Lock()
	device.startErr = nil
	device.mu.Unlock()
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start after recovery failed: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestServiceAssemblesSegmentsWithHeader(t *testing.T) {
	ft := &fakeTranscriber{fn: func(call int, audio []byte) (string, error) {
		return "hello world", nil
	}}
	svc, device := newTestService(t, ft)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	header := []byte("OggS-header")
	device.chunks <- audio.Chunk{Data: header, Seq: 0, Header: true, Time: base}

	now := speak(device, base, 10, [][]byte{[]byte("aaaa"), []byte("bbbb")})
	speak(device, now, 10, [][]byte{[]byte("cccc")})

	waitFor(t, func() bool { return ft.callCount() == 2 }, "segments were not transcribed")

	first := ft.call(0)
	want := "OggS-headeraaaabbbb"
	if string(first) != want {
		t.Errorf("first segment: expected %q, got %q", want, first)
	}
	// Every segment reuses the same header chunk.
	second := ft.call(1)
	if string(second) != "OggS-headercccc" {
		t.Errorf("second segment: expected header reuse, got %q", second)
	}

	waitFor(t, func() bool { return len(svc.Transcript(0)) == 2 }, "transcript entries missing")
	entries := svc.Transcript(0)
	if entries[0].Content != "hello world" {
		t.Errorf("unexpected transcript content %q", entries[0].Content)
	}
	if entries[0].Speaker != "operator" {
		t.Errorf("unexpected speaker %q", entries[0].Speaker)
	}
	if entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Error("entries must carry distinct ids")
	}
}

func TestServiceDiscardsShortBlip(t *testing.T) {
	ft := &fakeTranscriber{}
	svc, device := newTestService(t, ft)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	device.chunks <- audio.Chunk{Data: []byte("hdr"), Seq: 0, Header: true, Time: base}

	// 150ms of speech, below the 300ms minimum.
	now := speak(device, base, 3, [][]byte{[]byte("blip")})
	// A real utterance afterwards proves the pipeline is still healthy.
	speak(device, now, 10, [][]byte{[]byte("real")})

	waitFor(t, func() bool { return ft.callCount() == 1 }, "surviving segment missing")
	if string(ft.call(0)) != "hdrreal" {
		t.Errorf("expected only the long utterance, got %q", ft.call(0))
	}
}

func TestServiceStopFlushesFinalSegment(t *testing.T) {
	ft := &fakeTranscriber{}
	svc, device := newTestService(t, ft)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Speech began 800ms ago and is still running when stop arrives.
	base := time.Now().Add(-800 * time.Millisecond)
	device.chunks <- audio.Chunk{Data: []byte("hdr"), Seq: 0, Header: true, Time: base}
	for i := 0; i < 8; i++ {
		device.ticks <- audio.Tick{Level: 0.5, Time: base.Add(time.Duration(i) * 50 * time.Millisecond)}
	}
	device.chunks <- audio.Chunk{Data: []byte("tail"), Seq: 1, Time: base}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	waitFor(t, func() bool { return ft.callCount() == 1 }, "flushed segment was not transcribed")
	if string(ft.call(0)) != "hdrtail" {
		t.Errorf("unexpected flushed segment %q", ft.call(0))
	}
}

func TestServiceStopDiscardsShortFinalSegment(t *testing.T) {
	ft := &fakeTranscriber{}
	svc, device := newTestService(t, ft)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Only 100ms of speech when stop arrives.
	base := time.Now().Add(-100 * time.Millisecond)
	device.ticks <- audio.Tick{Level: 0.5, Time: base}
	device.ticks <- audio.Tick{Level: 0.5, Time: base.Add(50 * time.Millisecond)}
	device.chunks <- audio.Chunk{Data: []byte("blip"), Seq: 1, Time: base}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if ft.callCount() != 0 {
		t.Errorf("short final segment was transcribed")
	}
}

func TestServiceSetSpeaker(t *testing.T) {
	ft := &fakeTranscriber{fn: func(call int, audio []byte) (string, error) {
		return "ok", nil
	}}
	svc, device := newTestService(t, ft)

	if err := svc.SetSpeaker(""); err == nil {
		t.Error("expected error for empty speaker name")
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	device.chunks <- audio.Chunk{Data: []byte("hdr"), Seq: 0, Header: true, Time: base}

	now := speak(device, base, 10, [][]byte{[]byte("one")})

	if err := svc.SetSpeaker("alice"); err != nil {
		t.Fatalf("SetSpeaker failed: %v", err)
	}

	speak(device, now, 10, [][]byte{[]byte("two")})

	waitFor(t, func() bool { return len(svc.Transcript(0)) == 2 }, "entries missing")
	entries := svc.Transcript(0)
	if entries[0].Speaker != "operator" {
		t.Errorf("first entry speaker: expected operator, got %q", entries[0].Speaker)
	}
	if entries[1].Speaker != "alice" {
		t.Errorf("second entry speaker: expected alice, got %q", entries[1].Speaker)
	}
}

func TestServiceSpeakerFixedAtSpeechStart(t *testing.T) {
	ft := &fakeTranscriber{fn: func(call int, audio []byte) (string, error) {
		return "ok", nil
	}}
	svc, device := newTestService(t, ft)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	device.chunks <- audio.Chunk{Data: []byte("hdr"), Seq: 0, Header: true, Time: base}

	// Begin speaking, then change the speaker mid-utterance. The segment
	// keeps the speaker that was active when speech started.
	now := base
	for i := 0; i < 5; i++ {
		device.ticks <- audio.Tick{Level: 0.5, Time: now}
		now = now.Add(50 * time.Millisecond)
	}
	if err := svc.SetSpeaker("bob"); err != nil {
		t.Fatalf("SetSpeaker failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		device.ticks <- audio.Tick{Level: 0.5, Time: now}
		now = now.Add(50 * time.Millisecond)
	}
	device.chunks <- audio.Chunk{Data: []byte("words"), Seq: 1, Time: now}
	for i := 0; i < 22; i++ {
		device.ticks <- audio.Tick{Level: 0.02, Time: now}
		now = now.Add(50 * time.Millisecond)
	}

	waitFor(t, func() bool { return len(svc.Transcript(0)) == 1 }, "entry missing")
	if got := svc.Transcript(0)[0].Speaker; got != "operator" {
		t.Errorf("expected operator, got %q", got)
	}
}

func TestServiceTranscriptLimit(t *testing.T) {
	svc, _ := newTestService(t, &fakeTranscriber{})

	svc.mu.Lock()
	for _, content := range []string{"a", "b", "c"} {
		svc.entries = append(svc.entries, TranscriptEntry{ID: content, Content: content})
	}
	svc.mu.Unlock()

	got := svc.Transcript(2)
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Errorf("unexpected limited transcript: %+v", got)
	}
	if len(svc.Transcript(0)) != 3 {
		t.Error("zero limit must return everything")
	}
}

func TestServiceRestartAbandonsPreviousQueue(t *testing.T) {
	ft := &fakeTranscriber{gate: make(chan struct{})}
	svc, device := newTestService(t, ft)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	device.chunks <- audio.Chunk{Data: []byte("hdr"), Seq: 0, Header: true, Time: base}
	speak(device, base, 10, [][]byte{[]byte("old")})

	waitFor(t, func() bool { return ft.callCount() == 1 }, "segment never started")

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Restarting supersedes the draining queue; its in-flight result must
	// be discarded when the provider finally answers.
	fresh := newFakeDevice()
	svc.factory = func() (audio.Device, error) { return fresh, nil }
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	ft.gate <- struct{}{}
	time.Sleep(50 * time.Millisecond)

	if len(svc.Transcript(0)) != 0 {
		t.Errorf("abandoned session produced transcript entries: %+v", svc.Transcript(0))
	}
}
