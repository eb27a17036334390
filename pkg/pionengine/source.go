package pionengine

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// sourceTracks is the fan-out list shared by both source kinds.
type sourceTracks[T interface{ end() }] struct {
	mu       sync.Mutex
	tracks   []T
	released bool
}

func (s *sourceTracks[T]) add(t T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.tracks = append(s.tracks, t)
	return true
}

func (s *sourceTracks[T]) remove(match func(T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tracks {
		if match(t) {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

func (s *sourceTracks[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.tracks...)
}

func (s *sourceTracks[T]) release() {
	s.mu.Lock()
	s.released = true
	s.tracks = nil
	s.mu.Unlock()
}

func (s *sourceTracks[T]) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// endAll ends every track as if the device went away.
func (s *sourceTracks[T]) endAll() {
	for _, t := range s.snapshot() {
		t.end()
	}
}

// VideoSource is a virtual capture device. The application feeds it with
// PushFrame for local sinks and WriteSample for encoded media on the wire.
type VideoSource struct {
	deviceID    string
	constraints engine.VideoConstraints
	tracks      sourceTracks[*videoTrack]
}

var _ engine.VideoSource = (*VideoSource)(nil)

func (s *VideoSource) DeviceID() string                      { return s.deviceID }
func (s *VideoSource) Constraints() engine.VideoConstraints { return s.constraints }

// Release drops every remaining track. Later pushes are ignored.
func (s *VideoSource) Release() { s.tracks.release() }

// Released reports whether the source was released.
func (s *VideoSource) Released() bool { return s.tracks.isReleased() }

// PushFrame hands f to the sinks of every enabled track.
func (s *VideoSource) PushFrame(f *engine.VideoFrame) {
	for _, t := range s.tracks.snapshot() {
		t.deliver(f)
	}
}

// WriteSample sends an encoded sample on every enabled track.
func (s *VideoSource) WriteSample(sample media.Sample) error {
	var result *multierror.Error
	for _, t := range s.tracks.snapshot() {
		if err := t.writeSample(sample); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// End ends all tracks of the source, as when the device is unplugged.
func (s *VideoSource) End() { s.tracks.endAll() }

// AudioSource is a virtual microphone.
type AudioSource struct {
	deviceID    string
	constraints engine.AudioConstraints
	tracks      sourceTracks[*audioTrack]
}

var _ engine.AudioSource = (*AudioSource)(nil)

func (s *AudioSource) DeviceID() string                      { return s.deviceID }
func (s *AudioSource) Constraints() engine.AudioConstraints { return s.constraints }

func (s *AudioSource) Release()       { s.tracks.release() }
func (s *AudioSource) Released() bool { return s.tracks.isReleased() }

// WriteSample sends an encoded Opus sample on every enabled track.
func (s *AudioSource) WriteSample(sample media.Sample) error {
	var result *multierror.Error
	for _, t := range s.tracks.snapshot() {
		if err := t.writeSample(sample); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// PushLevel reports a capture level in [0, 1] to the tracks' level handlers.
func (s *AudioSource) PushLevel(level float64) {
	for _, t := range s.tracks.snapshot() {
		t.reportLevel(level)
	}
}

// PushPCM reports the RMS level of a block of 16-bit samples.
func (s *AudioSource) PushPCM(samples []int16) {
	s.PushLevel(engine.PCMLevel(samples))
}

func (s *AudioSource) End() { s.tracks.endAll() }
