// Package pionengine implements the native engine contract on top of
// pion/webrtc.
//
// Capture devices are virtual. The application receives every source the
// engine creates through WithCaptureHandler and feeds it with frames,
// encoded samples and audio levels. Remote video is not decoded.
package pionengine

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// Default virtual devices.
var (
	DefaultCamera     = engine.DeviceInfo{DeviceID: "virtual-camera", Label: "Virtual Camera", Kind: engine.DeviceKindVideoInput}
	DefaultMicrophone = engine.DeviceInfo{DeviceID: "virtual-microphone", Label: "Virtual Microphone", Kind: engine.DeviceKindAudioInput}
	DefaultSpeaker    = engine.DeviceInfo{DeviceID: "virtual-speaker", Label: "Virtual Speaker", Kind: engine.DeviceKindAudioOutput}
)

type options struct {
	log      *logrus.Entry
	devices  []engine.DeviceInfo
	displays []engine.DisplayInfo
	video    webrtc.RTPCodecCapability
	audio    webrtc.RTPCodecCapability
	onSource func(engine.Source)
	settings func(*webrtc.SettingEngine)
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the entry used by the engine and by pion itself.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithDevices replaces the virtual device list.
func WithDevices(devices ...engine.DeviceInfo) Option {
	return func(o *options) { o.devices = devices }
}

// WithDisplays sets the displays reported for enumeration. Display capture
// itself is not supported.
func WithDisplays(displays ...engine.DisplayInfo) Option {
	return func(o *options) { o.displays = displays }
}

// WithVideoCodec sets the codec of local video tracks.
func WithVideoCodec(c webrtc.RTPCodecCapability) Option {
	return func(o *options) { o.video = c }
}

// WithCaptureHandler registers fn to receive every capture source the
// engine creates, before any track uses it.
func WithCaptureHandler(fn func(engine.Source)) Option {
	return func(o *options) { o.onSource = fn }
}

// WithSettingEngine lets the caller adjust pion's setting engine.
func WithSettingEngine(fn func(*webrtc.SettingEngine)) Option {
	return func(o *options) { o.settings = fn }
}

// Engine is a pion-backed engine.
type Engine struct {
	api  *webrtc.API
	opts options
	log  *logrus.Entry

	mu     sync.Mutex
	peers  map[*peerConnection]struct{}
	muted  bool
	closed bool
}

var _ engine.Engine = (*Engine)(nil)

// New builds the pion API with the default codecs, the default interceptors
// and the RFC 6464 audio level extension.
func New(opts ...Option) (*Engine, error) {
	o := options{
		log:     logrus.StandardLogger().WithField("component", "pionengine"),
		devices: []engine.DeviceInfo{DefaultCamera, DefaultMicrophone, DefaultSpeaker},
		video:   webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		audio:   webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Wrap(err, "register codecs")
	}
	err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI}, webrtc.RTPCodecTypeAudio)
	if err != nil {
		return nil, errors.Wrap(err, "register audio level extension")
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, errors.Wrap(err, "register interceptors")
	}

	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(o.log)}
	if o.settings != nil {
		o.settings(&se)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Engine{
		api:   api,
		opts:  o,
		log:   o.log,
		peers: make(map[*peerConnection]struct{}),
		muted: true,
	}, nil
}

func (e *Engine) NewPeerConnection(cfg engine.Configuration, obs engine.Observer) (engine.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engine.ErrClosed
	}

	pcfg, err := toPionConfiguration(cfg)
	if err != nil {
		return nil, errors.Wrap(engine.ErrNotSupported, err.Error())
	}
	raw, err := e.api.NewPeerConnection(pcfg)
	if err != nil {
		return nil, err
	}
	p := newPeerConnection(raw, obs, e.log)
	p.onClose = e.forget
	e.peers[p] = struct{}{}
	return p, nil
}

func (e *Engine) forget(p *peerConnection) {
	e.mu.Lock()
	delete(e.peers, p)
	e.mu.Unlock()
}

func (e *Engine) EnumerateDevices() ([]engine.DeviceInfo, error) {
	return append([]engine.DeviceInfo(nil), e.opts.devices...), nil
}

func (e *Engine) EnumerateDisplays() ([]engine.DisplayInfo, error) {
	return append([]engine.DisplayInfo(nil), e.opts.displays...), nil
}

// findDevice returns the device with id, or the first device of kind when
// id is empty.
func (e *Engine) findDevice(id string, kind engine.DeviceKind) (engine.DeviceInfo, error) {
	for _, d := range e.opts.devices {
		if d.Kind == kind && (id == "" || d.DeviceID == id) {
			return d, nil
		}
	}
	if id == "" {
		return engine.DeviceInfo{}, errors.Wrapf(engine.ErrNoSuchDevice, "no %s", kind)
	}
	return engine.DeviceInfo{}, errors.Wrapf(engine.ErrNoSuchDevice, "%s %q", kind, id)
}

func (e *Engine) NewAudioSource(deviceID string, c engine.AudioConstraints) (engine.AudioSource, error) {
	d, err := e.findDevice(deviceID, engine.DeviceKindAudioInput)
	if err != nil {
		return nil, err
	}
	src := &AudioSource{deviceID: d.DeviceID, constraints: c}
	e.announce(src)
	return src, nil
}

func (e *Engine) NewVideoSource(deviceID string, c engine.VideoConstraints) (engine.VideoSource, error) {
	d, err := e.findDevice(deviceID, engine.DeviceKindVideoInput)
	if err != nil {
		return nil, err
	}
	src := &VideoSource{deviceID: d.DeviceID, constraints: c}
	e.announce(src)
	return src, nil
}

func (e *Engine) NewDisplaySource(displayID int64, _ engine.VideoConstraints) (engine.VideoSource, error) {
	return nil, errors.Wrapf(engine.ErrNotSupported, "display capture of %d", displayID)
}

func (e *Engine) announce(src engine.Source) {
	e.log.WithField("device", src.DeviceID()).Debug("capture source created")
	if e.opts.onSource != nil {
		e.opts.onSource(src)
	}
}

func (e *Engine) NewAudioTrack(id string, src engine.AudioSource) (engine.AudioTrack, error) {
	s, ok := src.(*AudioSource)
	if !ok {
		return nil, engine.ErrForeignTrack
	}
	lt, err := newLocalTrack(id, engine.MediaKindAudio, e.opts.audio)
	if err != nil {
		return nil, err
	}
	t := &audioTrack{localTrack: lt}
	lt.self = t
	lt.detach = func() { s.tracks.remove(func(x *audioTrack) bool { return x == t }) }
	if !s.tracks.add(t) {
		return nil, errors.Wrapf(engine.ErrClosed, "source %s released", s.deviceID)
	}
	return t, nil
}

func (e *Engine) NewVideoTrack(id string, src engine.VideoSource) (engine.VideoTrack, error) {
	s, ok := src.(*VideoSource)
	if !ok {
		return nil, engine.ErrForeignTrack
	}
	lt, err := newLocalTrack(id, engine.MediaKindVideo, e.opts.video)
	if err != nil {
		return nil, err
	}
	t := &videoTrack{localTrack: lt}
	lt.self = t
	lt.detach = func() { s.tracks.remove(func(x *videoTrack) bool { return x == t }) }
	if !s.tracks.add(t) {
		return nil, errors.Wrapf(engine.ErrClosed, "source %s released", s.deviceID)
	}
	return t, nil
}

// SetOutputWillBeMuted records the hint. There is no audio device module to
// pass it to.
func (e *Engine) SetOutputWillBeMuted(muted bool) {
	e.mu.Lock()
	changed := e.muted != muted
	e.muted = muted
	e.mu.Unlock()
	if changed {
		e.log.WithField("muted", muted).Debug("output mute hint")
	}
}

// OutputMuted returns the last mute hint.
func (e *Engine) OutputMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Close closes the peer connections that are still open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	peers := make([]*peerConnection, 0, len(e.peers))
	for p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	var result *multierror.Error
	for _, p := range peers {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
