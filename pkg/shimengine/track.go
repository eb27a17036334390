package shimengine

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// remoteTrack is a track received from the remote peer. Decoded media is
// delivered by the shim through a sink installed by attach.
type remoteTrack struct {
	lib    native
	handle uintptr
	id     string
	kind   engine.MediaKind
	log    *logrus.Entry

	mu       sync.Mutex
	enabled  bool
	state    engine.TrackState
	onEnded  []func()
	attached bool
	level    func(float64)
	sinks    []engine.VideoSink
}

type remoteAudioTrack struct{ *remoteTrack }

type remoteVideoTrack struct{ *remoteTrack }

var (
	_ engine.AudioTrack = remoteAudioTrack{}
	_ engine.VideoTrack = remoteVideoTrack{}
)

func newRemoteTrack(lib native, handle uintptr, kind engine.MediaKind, log *logrus.Entry) *remoteTrack {
	id := lib.TrackID(handle)
	return &remoteTrack{
		lib:     lib,
		handle:  handle,
		id:      id,
		kind:    kind,
		log:     log.WithField("track", id),
		enabled: true,
	}
}

// typed returns the track as the engine interface of its kind.
func (t *remoteTrack) typed() engine.Track {
	if t.kind == engine.MediaKindVideo {
		return remoteVideoTrack{t}
	}
	return remoteAudioTrack{t}
}

func (t *remoteTrack) attach() error {
	var err error
	if t.kind == engine.MediaKindVideo {
		err = t.lib.SetVideoSink(t.handle, t.onVideo)
	} else {
		err = t.lib.SetAudioSink(t.handle, t.onAudio)
	}
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.attached = true
	t.mu.Unlock()
	return nil
}

func (t *remoteTrack) detach() {
	t.mu.Lock()
	attached := t.attached
	t.attached = false
	t.mu.Unlock()
	if !attached {
		return
	}
	if t.kind == engine.MediaKindVideo {
		t.lib.RemoveVideoSink(t.handle)
	} else {
		t.lib.RemoveAudioSink(t.handle)
	}
}

func (t *remoteTrack) ID() string             { return t.id }
func (t *remoteTrack) Kind() engine.MediaKind { return t.kind }

func (t *remoteTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *remoteTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *remoteTrack) State() engine.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *remoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// Stop ends the track without running the ended handlers.
func (t *remoteTrack) Stop() {
	t.finish()
	t.detach()
}

// end ends the track because its peer connection went away.
func (t *remoteTrack) end() {
	for _, fn := range t.finish() {
		fn()
	}
	t.detach()
}

// finish marks the track ended and hands out the ended handlers once.
func (t *remoteTrack) finish() []func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == engine.TrackStateEnded {
		return nil
	}
	t.state = engine.TrackStateEnded
	fns := t.onEnded
	t.onEnded = nil
	return fns
}

func (t *remoteTrack) active() bool {
	return t.enabled && t.state == engine.TrackStateLive
}

func (t *remoteTrack) onAudio(samples []int16, _, _ int, _ int64) {
	t.mu.Lock()
	fn := t.level
	if !t.active() {
		fn = nil
	}
	t.mu.Unlock()
	if fn != nil {
		fn(engine.PCMLevel(samples))
	}
}

func (t *remoteTrack) onVideo(width, height int, y, u, v []byte, yStride, uStride, vStride int, timestampUs int64) {
	t.mu.Lock()
	if !t.active() || len(t.sinks) == 0 {
		t.mu.Unlock()
		return
	}
	sinks := append([]engine.VideoSink(nil), t.sinks...)
	t.mu.Unlock()

	f := &engine.VideoFrame{
		Width:     width,
		Height:    height,
		Data:      [3][]byte{y, u, v},
		Stride:    [3]int{yStride, uStride, vStride},
		Timestamp: time.Duration(timestampUs) * time.Microsecond,
	}
	for _, s := range sinks {
		s.OnFrame(f)
	}
}

func (t remoteAudioTrack) SetAudioLevelHandler(fn func(level float64)) {
	t.mu.Lock()
	t.level = fn
	t.mu.Unlock()
}

func (t remoteVideoTrack) AddSink(s engine.VideoSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.sinks {
		if existing == s {
			return
		}
	}
	t.sinks = append(t.sinks, s)
}

func (t remoteVideoTrack) RemoveSink(s engine.VideoSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.sinks {
		if existing == s {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			return
		}
	}
}
