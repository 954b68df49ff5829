// Package record drives microphone capture for voice messages through a
// small state machine: Idle -> Recording -> Captured -> sent or discarded.
// The capture device is acquired exclusively and released on every exit
// path from Recording, including forced teardown.
package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/transport"
)

// State is the recorder's position in the capture lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateCaptured

	// stateStopping covers the window where capture is being wound down
	// and the device released; it blocks re-entrant transitions.
	stateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateCaptured:
		return "captured"
	case stateStopping:
		return "stopping"
	}
	return "unknown"
}

var (
	// ErrNotIdle rejects Start while a recording or captured clip exists.
	ErrNotIdle = errors.New("record: recorder is not idle")

	// ErrNotRecording rejects Stop when no capture is running.
	ErrNotRecording = errors.New("record: no capture in progress")

	// ErrNoClip rejects ConfirmSend when no captured clip is held.
	ErrNoClip = errors.New("record: no captured clip")

	// ErrClosed rejects any use after teardown.
	ErrClosed = errors.New("record: recorder closed")
)

// Device is the microphone boundary. Start acquires the hardware and
// begins delivering audio chunks on the returned channel; the channel is
// closed after Stop releases the device. Acquisition may fail (permission
// denied, device unavailable).
type Device interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
	MIME() string // container type of the delivered chunks, e.g. audio/webm
}

// ClipFileName is the upload name convention for voice messages.
const ClipFileName = "voice-message.webm"

// Recorder owns one microphone capture at a time. A finished clip is
// handed to the sink (the message composer) on ConfirmSend; a sink failure
// keeps the clip so the user can retry.
//
// Recorder is safe for use from UI callbacks and its own timer goroutine.
type Recorder struct {
	device Device
	sink   func(transport.AudioClip) error

	// onElapsed, when set, receives the live elapsed seconds once per
	// second while recording, and 0 when the live counter resets.
	onElapsed func(seconds int)

	tickInterval time.Duration

	mu        sync.Mutex
	state     State
	chunks    [][]byte
	elapsed   int // live seconds while recording
	final     int // elapsed seconds of the captured clip
	clip      *transport.AudioClip
	stopTick  chan struct{}
	tickDone  chan struct{}
	drainDone chan struct{}
	closed    bool
}

// NewRecorder creates an idle recorder. sink receives the finished clip on
// ConfirmSend; onElapsed may be nil.
func NewRecorder(device Device, sink func(transport.AudioClip) error, onElapsed func(seconds int)) *Recorder {
	return &Recorder{
		device:       device,
		sink:         sink,
		onElapsed:    onElapsed,
		tickInterval: time.Second,
	}
}

// State returns the recorder's current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns the live elapsed seconds while recording, or the final
// elapsed value of the captured clip afterwards.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return r.elapsed
	}
	return r.final
}

// Clip returns a copy of the captured clip, or nil outside Captured.
func (r *Recorder) Clip() *transport.AudioClip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clip == nil {
		return nil
	}
	c := *r.clip
	return &c
}

// Start requests microphone access and begins buffering audio chunks. On
// denial the recorder stays Idle and the device error is returned. A
// 1-second elapsed counter runs for the duration of the capture.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrNotIdle
	}
	r.mu.Unlock()

	// Acquire outside the lock: device acquisition can block on a
	// permission prompt.
	chunks, err := r.device.Start(ctx)
	if err != nil {
		return fmt.Errorf("record: microphone access: %w", err)
	}

	r.mu.Lock()
	r.state = StateRecording
	r.chunks = nil
	r.clip = nil
	r.elapsed = 0
	r.final = 0
	r.stopTick = make(chan struct{})
	r.tickDone = make(chan struct{})
	r.drainDone = make(chan struct{})
	stopTick, tickDone, drainDone := r.stopTick, r.tickDone, r.drainDone
	r.mu.Unlock()

	go r.drain(chunks, drainDone)
	go r.tick(stopTick, tickDone)
	return nil
}

func (r *Recorder) drain(chunks <-chan []byte, done chan struct{}) {
	for chunk := range chunks {
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
	}
	close(done)
}

func (r *Recorder) tick(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.state != StateRecording {
				r.mu.Unlock()
				return
			}
			r.elapsed++
			seconds := r.elapsed
			cb := r.onElapsed
			r.mu.Unlock()

			if cb != nil {
				cb(seconds)
			}
		}
	}
}

// Stop ends the capture, releases the microphone, and assembles the
// buffered chunks into a single clip. The live elapsed display resets; the
// final value stays available through Elapsed for the captured-clip UI.
func (r *Recorder) Stop() error {
	data, seconds, err := r.endCapture()
	if errors.Is(err, ErrNotRecording) {
		return err
	}
	// A device release failure is reported, but the assembled clip is
	// still usable.

	r.mu.Lock()
	r.clip = &transport.AudioClip{
		FileName: ClipFileName,
		MIME:     r.device.MIME(),
		Data:     data,
		Duration: time.Duration(seconds) * time.Second,
	}
	r.final = seconds
	r.state = StateCaptured
	cb := r.onElapsed
	r.mu.Unlock()

	if cb != nil {
		cb(0)
	}
	return err
}

// Discard throws away the current capture or captured clip and returns to
// Idle with the elapsed counter at 0. From Recording it performs Stop
// semantics (device released) without the Captured state being observed.
// Discard in Idle is a no-op.
func (r *Recorder) Discard() error {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	var releaseErr error
	switch state {
	case StateRecording:
		if _, _, err := r.endCapture(); errors.Is(err, ErrNotRecording) {
			return err
		} else if err != nil {
			releaseErr = err
		}
	case StateCaptured:
	case StateIdle:
		return nil
	default:
		return ErrNotRecording
	}

	r.mu.Lock()
	r.reset()
	cb := r.onElapsed
	r.mu.Unlock()

	metrics.RecordingsCaptured.WithLabelValues("discarded").Inc()
	if cb != nil {
		cb(0)
	}
	return releaseErr
}

// ConfirmSend hands the captured clip to the sink (the message composer)
// and returns to Idle for the next recording. If the sink fails, the clip
// is kept and the recorder stays Captured so the user can retry.
func (r *Recorder) ConfirmSend() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.state != StateCaptured || r.clip == nil {
		r.mu.Unlock()
		return ErrNoClip
	}
	clip := *r.clip
	r.mu.Unlock()

	if err := r.sink(clip); err != nil {
		return fmt.Errorf("record: send clip: %w", err)
	}

	r.mu.Lock()
	r.reset()
	r.mu.Unlock()

	metrics.RecordingsCaptured.WithLabelValues("sent").Inc()
	return nil
}

// Close tears the recorder down. An in-progress capture is stopped and the
// device released; any held clip is dropped. The recorder is unusable
// afterwards.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	state := r.state
	r.mu.Unlock()

	var err error
	if state == StateRecording {
		_, _, err = r.endCapture()
	}

	r.mu.Lock()
	r.reset()
	r.closed = true
	r.mu.Unlock()
	return err
}

// endCapture is the single finalizer path out of Recording: it stops the
// elapsed ticker, releases the device, and waits for the chunk stream to
// finish. Every exit transition (stop, discard, teardown) funnels through
// here so the microphone can never be left open.
func (r *Recorder) endCapture() ([]byte, int, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, 0, ErrNotRecording
	}
	r.state = stateStopping
	close(r.stopTick)
	tickDone, drainDone := r.tickDone, r.drainDone
	r.mu.Unlock()

	<-tickDone
	stopErr := r.device.Stop()
	<-drainDone

	r.mu.Lock()
	data := bytes.Join(r.chunks, nil)
	seconds := r.elapsed
	r.chunks = nil
	r.mu.Unlock()

	if stopErr != nil {
		// The chunk stream ended, so treat the capture as finished but
		// report the release failure.
		return data, seconds, fmt.Errorf("record: release device: %w", stopErr)
	}
	return data, seconds, nil
}

// reset returns the recorder to Idle. Callers hold r.mu.
func (r *Recorder) reset() {
	r.state = StateIdle
	r.clip = nil
	r.chunks = nil
	r.elapsed = 0
	r.final = 0
	r.stopTick = nil
	r.tickDone = nil
	r.drainDone = nil
}
