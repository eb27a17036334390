// Package testutil provides a scriptable in-memory engine and event
// recorders shared by the rtcsession tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// Recorder collects events sent to it. It satisfies any sink interface with
// a Send(E) method.
type Recorder[E any] struct {
	mu     sync.Mutex
	events []E
	notify chan struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder[E any]() *Recorder[E] {
	return &Recorder[E]{notify: make(chan struct{}, 1)}
}

func (r *Recorder[E]) Send(ev E) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder[E]) Events() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]E(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WaitFor blocks until an event matching match is recorded and returns it.
// The test fails after timeout.
func (r *Recorder[E]) WaitFor(tb testing.TB, timeout time.Duration, match func(E) bool) E {
	tb.Helper()
	deadline := time.After(timeout)
	for {
		for _, ev := range r.Events() {
			if match(ev) {
				return ev
			}
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			tb.Fatalf("no matching event after %s; got %d events", timeout, r.Len())
			var zero E
			return zero
		}
	}
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(tb testing.TB, timeout time.Duration, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("condition not met after %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// DefaultDevices is a camera, a microphone and a speaker.
func DefaultDevices() []engine.DeviceInfo {
	return []engine.DeviceInfo{
		{DeviceID: "cam0", Label: "Camera 0", Kind: engine.DeviceKindVideoInput},
		{DeviceID: "cam1", Label: "Camera 1", Kind: engine.DeviceKindVideoInput},
		{DeviceID: "mic0", Label: "Microphone 0", Kind: engine.DeviceKindAudioInput},
		{DeviceID: "spk0", Label: "Speaker 0", Kind: engine.DeviceKindAudioOutput},
	}
}

// CreateTestVideoFrame creates an I420 frame with a diagonal gradient.
func CreateTestVideoFrame(width, height int) *engine.VideoFrame {
	f := engine.NewI420Frame(width, height)
	for i := range f.Data[0] {
		y := i / width
		x := i % width
		f.Data[0][i] = byte((x + y) % 256)
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
	return f
}
