package pionengine

import (
	"math"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// trackState is the part shared by local and remote tracks.
type trackState struct {
	id   string
	kind engine.MediaKind

	mu      sync.Mutex
	enabled bool
	state   engine.TrackState
	onEnded []func()
}

func (t *trackState) ID() string             { return t.id }
func (t *trackState) Kind() engine.MediaKind { return t.kind }

func (t *trackState) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *trackState) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *trackState) State() engine.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *trackState) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// active reports whether media should flow through the track.
func (t *trackState) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && t.state == engine.TrackStateLive
}

// finish moves the track to ended and returns the ended handlers when it
// was live. Handlers are only handed out once.
func (t *trackState) finish() []func() {
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

// end finishes the track and runs its ended handlers.
func (t *trackState) end() {
	for _, fn := range t.finish() {
		fn()
	}
}

// localTrack is a track fed by a capture source and sent through pion as a
// sample track.
type localTrack struct {
	trackState
	sample *webrtc.TrackLocalStaticSample
	self   engine.Track
	detach func()
}

type localTrackOwner interface {
	local() *localTrack
}

func newLocalTrack(id string, kind engine.MediaKind, capability webrtc.RTPCodecCapability) (*localTrack, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(capability, id, "rtcsession")
	if err != nil {
		return nil, err
	}
	return &localTrack{
		trackState: trackState{id: id, kind: kind, enabled: true},
		sample:     sample,
	}, nil
}

func (t *localTrack) local() *localTrack { return t }

// Stop ends the track without running its ended handlers and detaches it
// from its source.
func (t *localTrack) Stop() {
	t.finish()
	if t.detach != nil {
		t.detach()
	}
}

func (t *localTrack) writeSample(s media.Sample) error {
	if !t.active() {
		return nil
	}
	return t.sample.WriteSample(s)
}

type videoTrack struct {
	*localTrack

	sinkMu sync.Mutex
	sinks  []engine.VideoSink
}

var _ engine.VideoTrack = (*videoTrack)(nil)

func (t *videoTrack) AddSink(s engine.VideoSink) {
	t.sinkMu.Lock()
	defer t.sinkMu.Unlock()
	for _, existing := range t.sinks {
		if existing == s {
			return
		}
	}
	t.sinks = append(t.sinks, s)
}

func (t *videoTrack) RemoveSink(s engine.VideoSink) {
	t.sinkMu.Lock()
	defer t.sinkMu.Unlock()
	for i, existing := range t.sinks {
		if existing == s {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			return
		}
	}
}

func (t *videoTrack) deliver(f *engine.VideoFrame) {
	if !t.active() {
		return
	}
	t.sinkMu.Lock()
	sinks := append([]engine.VideoSink(nil), t.sinks...)
	t.sinkMu.Unlock()
	for _, s := range sinks {
		s.OnFrame(f)
	}
}

type audioTrack struct {
	*localTrack

	levelMu sync.Mutex
	level   func(float64)
}

var _ engine.AudioTrack = (*audioTrack)(nil)

func (t *audioTrack) SetAudioLevelHandler(fn func(level float64)) {
	t.levelMu.Lock()
	t.level = fn
	t.levelMu.Unlock()
}

func (t *audioTrack) reportLevel(level float64) {
	if !t.active() {
		return
	}
	t.levelMu.Lock()
	fn := t.level
	t.levelMu.Unlock()
	if fn != nil {
		fn(level)
	}
}

// remoteTrack wraps the track of a pion receiver. It ends when reading from
// the receiver fails, which happens once the connection closes.
type remoteTrack struct {
	trackState
	remote   *webrtc.TrackRemote
	levelExt uint8
	log      *logrus.Entry

	hookMu sync.Mutex
	level  func(float64)
	sinks  []engine.VideoSink

	self engine.Track
}

func newRemoteTrack(remote *webrtc.TrackRemote, levelExt uint8, log *logrus.Entry) *remoteTrack {
	t := &remoteTrack{
		trackState: trackState{id: remote.ID(), kind: fromPionKind(remote.Kind()), enabled: true},
		remote:     remote,
		levelExt:   levelExt,
		log:        log.WithField("track", remote.ID()),
	}
	if t.kind == engine.MediaKindAudio {
		t.self = &remoteAudioTrack{t}
	} else {
		t.self = &remoteVideoTrack{t}
	}
	return t
}

func (t *remoteTrack) typed() engine.Track { return t.self }

// Stop marks the track ended. The receiver keeps running until its
// connection closes.
func (t *remoteTrack) Stop() { t.finish() }

func (t *remoteTrack) readLoop() {
	for {
		pkt, _, err := t.remote.ReadRTP()
		if err != nil {
			t.log.WithError(err).Debug("remote track ended")
			t.end()
			return
		}
		if t.levelExt == 0 || t.kind != engine.MediaKindAudio {
			continue
		}
		if level, ok := packetAudioLevel(pkt, t.levelExt); ok {
			t.reportLevel(level)
		}
	}
}

func (t *remoteTrack) reportLevel(level float64) {
	if !t.active() {
		return
	}
	t.hookMu.Lock()
	fn := t.level
	t.hookMu.Unlock()
	if fn != nil {
		fn(level)
	}
}

type remoteAudioTrack struct{ *remoteTrack }

var _ engine.AudioTrack = (*remoteAudioTrack)(nil)

func (t *remoteAudioTrack) SetAudioLevelHandler(fn func(level float64)) {
	t.hookMu.Lock()
	t.level = fn
	t.hookMu.Unlock()
}

// remoteVideoTrack accepts sinks but has no decoder behind it, so they
// receive no frames.
type remoteVideoTrack struct{ *remoteTrack }

var _ engine.VideoTrack = (*remoteVideoTrack)(nil)

func (t *remoteVideoTrack) AddSink(s engine.VideoSink) {
	t.hookMu.Lock()
	t.sinks = append(t.sinks, s)
	t.hookMu.Unlock()
}

func (t *remoteVideoTrack) RemoveSink(s engine.VideoSink) {
	t.hookMu.Lock()
	defer t.hookMu.Unlock()
	for i, existing := range t.sinks {
		if existing == s {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			return
		}
	}
}

// audioLevelExtensionID returns the negotiated id of the RFC 6464 header
// extension, or 0 when it was not negotiated.
func audioLevelExtensionID(params webrtc.RTPParameters) uint8 {
	for _, ext := range params.HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI {
			return uint8(ext.ID)
		}
	}
	return 0
}

func packetAudioLevel(pkt *rtp.Packet, extID uint8) (float64, bool) {
	payload := pkt.GetExtension(extID)
	if payload == nil {
		return 0, false
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(payload); err != nil {
		return 0, false
	}
	return levelFromDBov(ext.Level), true
}

// levelFromDBov converts an RFC 6464 level (0 loudest, 127 silence) to a
// linear amplitude in [0, 1].
func levelFromDBov(dBov uint8) float64 {
	return math.Pow(10, -float64(dBov&0x7f)/20)
}
