package record

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/transport"
)

// fakeDevice simulates a microphone: Start opens a chunk channel, Stop
// closes it and counts the release.
type fakeDevice struct {
	mu       sync.Mutex
	failWith error
	chunks   chan []byte
	starts   int
	stops    int
}

func (d *fakeDevice) Start(_ context.Context) (<-chan []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.starts++
	d.chunks = make(chan []byte, 16)
	return d.chunks, nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	if d.chunks != nil {
		close(d.chunks)
		d.chunks = nil
	}
	return nil
}

func (d *fakeDevice) MIME() string { return "audio/webm" }

func (d *fakeDevice) emit(chunk []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks <- chunk
}

func (d *fakeDevice) released(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stops != d.starts {
		t.Errorf("device not released: %d starts, %d stops", d.starts, d.stops)
	}
}

func TestStartStopAssemblesClip(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := rec.State(); got != StateRecording {
		t.Fatalf("state after start: %v", got)
	}

	dev.emit([]byte("chunk-1 "))
	dev.emit([]byte("chunk-2"))

	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := rec.State(); got != StateCaptured {
		t.Fatalf("state after stop: %v", got)
	}

	clip := rec.Clip()
	if clip == nil {
		t.Fatal("no clip after stop")
	}
	if string(clip.Data) != "chunk-1 chunk-2" {
		t.Errorf("clip data %q", clip.Data)
	}
	if clip.MIME != "audio/webm" {
		t.Errorf("clip MIME %q", clip.MIME)
	}
	if clip.FileName != ClipFileName {
		t.Errorf("clip filename %q, want %q", clip.FileName, ClipFileName)
	}
	dev.released(t)
}

func TestStartDeniedStaysIdle(t *testing.T) {
	denied := errors.New("permission denied")
	dev := &fakeDevice{failWith: denied}
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, nil)

	err := rec.Start(context.Background())
	if !errors.Is(err, denied) {
		t.Fatalf("expected device error, got %v", err)
	}
	if got := rec.State(); got != StateIdle {
		t.Errorf("state after denial: %v", got)
	}
	if got := rec.Elapsed(); got != 0 {
		t.Errorf("elapsed after denial: %d", got)
	}
}

func TestDiscardFromRecordingReleasesDeviceAndResets(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.emit([]byte("something"))

	if err := rec.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if got := rec.State(); got != StateIdle {
		t.Errorf("state after discard: %v", got)
	}
	if got := rec.Elapsed(); got != 0 {
		t.Errorf("elapsed after discard: %d", got)
	}
	if rec.Clip() != nil {
		t.Error("clip survived discard")
	}
	dev.released(t)
}

func TestDiscardFromCapturedDropsClip(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.emit([]byte("x"))
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := rec.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if got := rec.State(); got != StateIdle {
		t.Errorf("state after discard: %v", got)
	}
	if rec.Clip() != nil {
		t.Error("clip survived discard")
	}
}

func TestDiscardWhileIdleIsNoop(t *testing.T) {
	rec := NewRecorder(&fakeDevice{}, func(transport.AudioClip) error { return nil }, nil)
	if err := rec.Discard(); err != nil {
		t.Fatalf("idle discard errored: %v", err)
	}
}

func TestConfirmSendHandsClipToSinkOnce(t *testing.T) {
	dev := &fakeDevice{}
	var sent []transport.AudioClip
	rec := NewRecorder(dev, func(c transport.AudioClip) error {
		sent = append(sent, c)
		return nil
	}, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.emit([]byte("opus-data"))
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := rec.ConfirmSend(); err != nil {
		t.Fatalf("ConfirmSend failed: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected exactly one composed audio message, got %d", len(sent))
	}
	if string(sent[0].Data) != "opus-data" {
		t.Errorf("sink got clip data %q", sent[0].Data)
	}
	if got := rec.State(); got != StateIdle {
		t.Errorf("state after confirm: %v", got)
	}

	// Nothing left to send.
	if err := rec.ConfirmSend(); !errors.Is(err, ErrNoClip) {
		t.Errorf("second ConfirmSend: %v", err)
	}
}

func TestConfirmSendFailureKeepsClip(t *testing.T) {
	dev := &fakeDevice{}
	sinkErr := errors.New("backend down")
	rec := NewRecorder(dev, func(transport.AudioClip) error { return sinkErr }, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.emit([]byte("clip"))
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := rec.ConfirmSend(); !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if got := rec.State(); got != StateCaptured {
		t.Errorf("state after failed confirm: %v", got)
	}
	if rec.Clip() == nil {
		t.Error("clip lost on failed confirm")
	}
}

func TestStartWhileBusyRejected(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rec.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Errorf("expected ErrNotIdle, got %v", err)
	}
	if err := rec.Discard(); err != nil {
		t.Fatalf("cleanup discard failed: %v", err)
	}
	dev.released(t)
}

func TestElapsedCounterTicksAndResets(t *testing.T) {
	dev := &fakeDevice{}
	var mu sync.Mutex
	var reported []int
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, func(s int) {
		mu.Lock()
		reported = append(reported, s)
		mu.Unlock()
	})
	rec.tickInterval = 5 * time.Millisecond

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if got := rec.Elapsed(); got == 0 {
		t.Error("elapsed never advanced while recording")
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The final elapsed value stays available for the captured-clip UI.
	if got := rec.Elapsed(); got == 0 {
		t.Error("final elapsed lost after stop")
	}

	mu.Lock()
	last := reported[len(reported)-1]
	mu.Unlock()
	if last != 0 {
		t.Errorf("live display not reset on stop: last report %d", last)
	}
}

func TestCloseDuringRecordingReleasesDevice(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, func(transport.AudioClip) error { return nil }, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	dev.released(t)
	if err := rec.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("closed recorder accepted Start: %v", err)
	}
}
