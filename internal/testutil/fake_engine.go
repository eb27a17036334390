package testutil

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// CompletionMode controls when a FakePeerConnection completes asynchronous
// operations.
type CompletionMode int

const (
	// CompleteImmediately runs completions inline, before the issuing call
	// returns.
	CompleteImmediately CompletionMode = iota
	// CompleteOnRelease queues completions in issue order until Release.
	CompleteOnRelease
)

// FakeEngine is an in-memory engine.Engine. Failures are injected per
// operation name with Fail.
type FakeEngine struct {
	mu             sync.Mutex
	devices        []engine.DeviceInfo
	displays       []engine.DisplayInfo
	failures       map[string]error
	mode           CompletionMode
	peers          []*FakePeerConnection
	sources        []*FakeSource
	sourcesCreated map[string]int
	mutedHints     []bool
	closed         bool
}

var _ engine.Engine = (*FakeEngine)(nil)

// NewFakeEngine returns an engine with DefaultDevices and one display.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		devices:        DefaultDevices(),
		displays:       []engine.DisplayInfo{{ID: 1, Title: "Screen 1"}},
		failures:       make(map[string]error),
		sourcesCreated: make(map[string]int),
	}
}

// SetDevices replaces the device list.
func (e *FakeEngine) SetDevices(devices ...engine.DeviceInfo) {
	e.mu.Lock()
	e.devices = devices
	e.mu.Unlock()
}

// SetMode sets the completion mode of peer connections created afterwards.
func (e *FakeEngine) SetMode(m CompletionMode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
}

// Fail makes the named operation fail with err until cleared with a nil
// err. Names: "peer-connection", "enumerate-devices", "audio-source",
// "video-source", "display-source", "audio-track", "video-track".
func (e *FakeEngine) Fail(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = err
}

func (e *FakeEngine) failure(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[op]
}

// Peers returns the peer connections created so far.
func (e *FakeEngine) Peers() []*FakePeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakePeerConnection(nil), e.peers...)
}

// LastPeer returns the most recently created peer connection.
func (e *FakeEngine) LastPeer() *FakePeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.peers) == 0 {
		return nil
	}
	return e.peers[len(e.peers)-1]
}

// SourcesCreated returns how many native sources were created for key.
func (e *FakeEngine) SourcesCreated(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sourcesCreated[key]
}

// Sources returns every source created so far.
func (e *FakeEngine) Sources() []*FakeSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeSource(nil), e.sources...)
}

// MutedHints returns every SetOutputWillBeMuted value in call order.
func (e *FakeEngine) MutedHints() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.mutedHints...)
}

// OutputMuted returns the last muted hint.
func (e *FakeEngine) OutputMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.mutedHints) == 0 {
		return false
	}
	return e.mutedHints[len(e.mutedHints)-1]
}

func (e *FakeEngine) NewPeerConnection(cfg engine.Configuration, obs engine.Observer) (engine.PeerConnection, error) {
	if err := e.failure("peer-connection"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &FakePeerConnection{
		Config:   cfg,
		obs:      obs,
		mode:     e.mode,
		failures: make(map[string]error),
	}
	e.peers = append(e.peers, p)
	return p, nil
}

func (e *FakeEngine) EnumerateDevices() ([]engine.DeviceInfo, error) {
	if err := e.failure("enumerate-devices"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.DeviceInfo(nil), e.devices...), nil
}

func (e *FakeEngine) EnumerateDisplays() ([]engine.DisplayInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.DisplayInfo(nil), e.displays...), nil
}

func (e *FakeEngine) newSource(op, key string, kind engine.MediaKind) (*FakeSource, error) {
	if err := e.failure(op); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &FakeSource{deviceID: key, kind: kind}
	e.sources = append(e.sources, s)
	e.sourcesCreated[key]++
	return s, nil
}

func (e *FakeEngine) NewAudioSource(deviceID string, c engine.AudioConstraints) (engine.AudioSource, error) {
	s, err := e.newSource("audio-source", deviceID, engine.MediaKindAudio)
	if err != nil {
		return nil, err
	}
	return &FakeAudioSource{FakeSource: s, constraints: c}, nil
}

func (e *FakeEngine) NewVideoSource(deviceID string, c engine.VideoConstraints) (engine.VideoSource, error) {
	s, err := e.newSource("video-source", deviceID, engine.MediaKindVideo)
	if err != nil {
		return nil, err
	}
	return &FakeVideoSource{FakeSource: s, constraints: c}, nil
}

func (e *FakeEngine) NewDisplaySource(displayID int64, c engine.VideoConstraints) (engine.VideoSource, error) {
	s, err := e.newSource("display-source", "display:"+strconv.FormatInt(displayID, 10), engine.MediaKindVideo)
	if err != nil {
		return nil, err
	}
	return &FakeVideoSource{FakeSource: s, constraints: c}, nil
}

func (e *FakeEngine) NewAudioTrack(id string, src engine.AudioSource) (engine.AudioTrack, error) {
	if err := e.failure("audio-track"); err != nil {
		return nil, err
	}
	fs, ok := src.(*FakeAudioSource)
	if !ok {
		return nil, engine.ErrForeignTrack
	}
	return NewFakeTrack(id, engine.MediaKindAudio, fs.FakeSource), nil
}

func (e *FakeEngine) NewVideoTrack(id string, src engine.VideoSource) (engine.VideoTrack, error) {
	if err := e.failure("video-track"); err != nil {
		return nil, err
	}
	fs, ok := src.(*FakeVideoSource)
	if !ok {
		return nil, engine.ErrForeignTrack
	}
	return NewFakeTrack(id, engine.MediaKindVideo, fs.FakeSource), nil
}

func (e *FakeEngine) SetOutputWillBeMuted(muted bool) {
	e.mu.Lock()
	e.mutedHints = append(e.mutedHints, muted)
	e.mu.Unlock()
}

func (e *FakeEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// FakeSource is the state shared by FakeAudioSource and FakeVideoSource.
type FakeSource struct {
	deviceID string
	kind     engine.MediaKind

	mu       sync.Mutex
	released int
}

func (s *FakeSource) DeviceID() string       { return s.deviceID }
func (s *FakeSource) Kind() engine.MediaKind { return s.kind }

func (s *FakeSource) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

// Released reports how many times Release was called.
func (s *FakeSource) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// FakeAudioSource is an audio source of FakeEngine.
type FakeAudioSource struct {
	*FakeSource
	constraints engine.AudioConstraints
}

func (s *FakeAudioSource) Constraints() engine.AudioConstraints { return s.constraints }

// FakeVideoSource is a camera or display source of FakeEngine.
type FakeVideoSource struct {
	*FakeSource
	constraints engine.VideoConstraints
}

func (s *FakeVideoSource) Constraints() engine.VideoConstraints { return s.constraints }

// FakeTrack is a track of FakeEngine, local or remote.
type FakeTrack struct {
	id     string
	kind   engine.MediaKind
	source *FakeSource

	mu      sync.Mutex
	enabled bool
	state   engine.TrackState
	stopped bool
	ended   bool
	onEnded []func()
	sinks   []engine.VideoSink
	level   func(float64)
}

// NewFakeTrack returns a live, enabled track. source is nil for remote
// tracks.
func NewFakeTrack(id string, kind engine.MediaKind, source *FakeSource) *FakeTrack {
	return &FakeTrack{id: id, kind: kind, source: source, enabled: true}
}

func (t *FakeTrack) ID() string             { return t.id }
func (t *FakeTrack) Kind() engine.MediaKind { return t.kind }

// Source returns the source the track was created on, or nil.
func (t *FakeTrack) Source() *FakeSource { return t.source }

func (t *FakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *FakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *FakeTrack) State() engine.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *FakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *FakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.state = engine.TrackStateEnded
	t.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (t *FakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// End ends the track as if the device or remote side went away.
func (t *FakeTrack) End() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.state = engine.TrackStateEnded
	fns := append([]func(){}, t.onEnded...)
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (t *FakeTrack) AddSink(s engine.VideoSink) {
	t.mu.Lock()
	t.sinks = append(t.sinks, s)
	t.mu.Unlock()
}

func (t *FakeTrack) RemoveSink(s engine.VideoSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.sinks {
		if cur == s {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			return
		}
	}
}

// Sinks returns the number of attached sinks.
func (t *FakeTrack) Sinks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// PushFrame delivers f to every attached sink.
func (t *FakeTrack) PushFrame(f *engine.VideoFrame) {
	t.mu.Lock()
	sinks := append([]engine.VideoSink(nil), t.sinks...)
	t.mu.Unlock()
	for _, s := range sinks {
		s.OnFrame(f)
	}
}

func (t *FakeTrack) SetAudioLevelHandler(fn func(level float64)) {
	t.mu.Lock()
	t.level = fn
	t.mu.Unlock()
}

// EmitLevel reports level to the installed handler, if any.
func (t *FakeTrack) EmitLevel(level float64) {
	t.mu.Lock()
	fn := t.level
	t.mu.Unlock()
	if fn != nil {
		fn(level)
	}
}

// HasLevelHandler reports whether a level handler is installed.
func (t *FakeTrack) HasLevelHandler() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level != nil
}

// FakeSender is the sender of a FakeTransceiver.
type FakeSender struct {
	mu         sync.Mutex
	track      engine.Track
	replaceErr error
	replaces   int
}

func (s *FakeSender) Track() engine.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *FakeSender) ReplaceTrack(t engine.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	if t != nil {
		if _, ok := t.(*FakeTrack); !ok {
			return engine.ErrForeignTrack
		}
	}
	s.track = t
	s.replaces++
	return nil
}

// FailReplace makes ReplaceTrack fail with err; nil clears it.
func (s *FakeSender) FailReplace(err error) {
	s.mu.Lock()
	s.replaceErr = err
	s.mu.Unlock()
}

// FakeReceiver is the receiver of a FakeTransceiver.
type FakeReceiver struct {
	track *FakeTrack
}

func (r *FakeReceiver) Track() engine.Track {
	if r.track == nil {
		return nil
	}
	return r.track
}

// RemoteTrack returns the receiver track as a *FakeTrack.
func (r *FakeReceiver) RemoteTrack() *FakeTrack { return r.track }

// FakeTransceiver is a transceiver of FakePeerConnection.
type FakeTransceiver struct {
	kind     engine.MediaKind
	sender   *FakeSender
	receiver *FakeReceiver

	mu      sync.Mutex
	mid     string
	dir     engine.TransceiverDirection
	stopped bool
}

func (t *FakeTransceiver) Mid() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mid
}

func (t *FakeTransceiver) Kind() engine.MediaKind { return t.kind }

func (t *FakeTransceiver) Direction() engine.TransceiverDirection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return engine.TransceiverDirectionStopped
	}
	return t.dir
}

func (t *FakeTransceiver) SetDirection(d engine.TransceiverDirection) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return engine.ErrClosed
	}
	t.dir = d
	return nil
}

func (t *FakeTransceiver) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}

func (t *FakeTransceiver) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *FakeTransceiver) Sender() engine.Sender     { return t.sender }
func (t *FakeTransceiver) Receiver() engine.Receiver { return t.receiver }

// FakeSender returns the sender with its concrete type.
func (t *FakeTransceiver) FakeSender() *FakeSender { return t.sender }

// FakeReceiver returns the receiver with its concrete type.
func (t *FakeTransceiver) FakeReceiver() *FakeReceiver { return t.receiver }

func (t *FakeTransceiver) setMid(mid string) {
	t.mu.Lock()
	if t.mid == "" {
		t.mid = mid
	}
	t.mu.Unlock()
}

// String identifies the transceiver in test failures.
func (t *FakeTransceiver) String() string {
	return fmt.Sprintf("%s transceiver mid=%q", t.kind, t.Mid())
}
