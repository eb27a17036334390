// Package shimengine implements the native engine contract on top of the
// libwebrtc C shim loaded at runtime.
//
// The engine drives signaling, transceivers, statistics and device
// enumeration through the shim. Remote tracks deliver decoded audio levels
// and I420 frames. Local capture is not exposed by the shim, so source and
// local track constructors report engine.ErrNotSupported.
package shimengine

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/internal/ffi"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

type options struct {
	log    *logrus.Entry
	path   string
	native native
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the entry used by the engine and the shim callbacks.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLibraryPath loads the shim from path instead of searching for it.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.path = path }
}

func withNative(n native) Option {
	return func(o *options) { o.native = n }
}

// Engine is a shim-backed engine.
type Engine struct {
	lib native
	log *logrus.Entry

	mu     sync.Mutex
	peers  map[*peerConnection]struct{}
	muted  bool
	closed bool
}

var _ engine.Engine = (*Engine)(nil)

// New loads the shim library. A version mismatch is logged, not fatal.
func New(opts ...Option) (*Engine, error) {
	o := options{log: logrus.StandardLogger().WithField("component", "shimengine")}
	for _, opt := range opts {
		opt(&o)
	}

	if o.native == nil {
		if err := ffi.LoadLibrary(o.path); err != nil {
			return nil, errors.Wrap(err, "load shim")
		}
		ffi.SetLogger(o.log)
		if err := ffi.CheckVersion(); err != nil {
			o.log.WithError(err).Warn("shim version check failed")
		}
		o.log.WithFields(logrus.Fields{
			"shim":      ffi.ShimVersion(),
			"libwebrtc": ffi.LibWebRTCVersion(),
		}).Info("shim loaded")
		o.native = library{}
	}

	return &Engine{
		lib:   o.native,
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

	scfg, err := toShimConfiguration(cfg)
	if err != nil {
		return nil, errors.Wrap(engine.ErrNotSupported, err.Error())
	}
	h, err := e.lib.CreatePeerConnection(scfg)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}
	p := newPeerConnection(e.lib, h, obs, e.log.WithField("pc", h))
	p.onClose = e.forget
	e.peers[p] = struct{}{}
	return p, nil
}

func (e *Engine) forget(p *peerConnection) {
	e.mu.Lock()
	delete(e.peers, p)
	e.mu.Unlock()
}

// EnumerateDevices skips devices of a kind the engine does not know.
func (e *Engine) EnumerateDevices() ([]engine.DeviceInfo, error) {
	raw, err := e.lib.EnumerateDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate devices")
	}
	out := make([]engine.DeviceInfo, 0, len(raw))
	for _, d := range raw {
		if info, ok := fromShimDevice(d); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (e *Engine) EnumerateDisplays() ([]engine.DisplayInfo, error) {
	raw, err := e.lib.EnumerateScreens()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate screens")
	}
	out := make([]engine.DisplayInfo, 0, len(raw))
	for _, s := range raw {
		out = append(out, engine.DisplayInfo{ID: s.ID, Title: s.Title, IsWindow: s.IsWindow})
	}
	return out, nil
}

func (e *Engine) NewAudioSource(deviceID string, _ engine.AudioConstraints) (engine.AudioSource, error) {
	return nil, errors.Wrapf(engine.ErrNotSupported, "audio capture from %q", deviceID)
}

func (e *Engine) NewVideoSource(deviceID string, _ engine.VideoConstraints) (engine.VideoSource, error) {
	return nil, errors.Wrapf(engine.ErrNotSupported, "video capture from %q", deviceID)
}

func (e *Engine) NewDisplaySource(displayID int64, _ engine.VideoConstraints) (engine.VideoSource, error) {
	return nil, errors.Wrapf(engine.ErrNotSupported, "display capture of %d", displayID)
}

func (e *Engine) NewAudioTrack(string, engine.AudioSource) (engine.AudioTrack, error) {
	return nil, engine.ErrForeignTrack
}

func (e *Engine) NewVideoTrack(string, engine.VideoSource) (engine.VideoTrack, error) {
	return nil, engine.ErrForeignTrack
}

// SetOutputWillBeMuted records the hint.
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

// Close closes the peer connections that are still open. The library stays
// loaded for the life of the process.
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
