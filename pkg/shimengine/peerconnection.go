package shimengine

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/internal/ffi"
	"github.com/thesyncim/rtcsession/internal/opqueue"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

// peerConnection adapts the synchronous shim calls to the asynchronous
// engine contract by running them on a per-connection queue.
type peerConnection struct {
	lib    native
	handle uintptr
	obs    engine.Observer
	log    *logrus.Entry
	queue  *opqueue.Queue

	onClose func(*peerConnection)

	mu           sync.Mutex
	transceivers map[uintptr]*transceiver
	closed       bool
}

var _ engine.PeerConnection = (*peerConnection)(nil)

func newPeerConnection(lib native, handle uintptr, obs engine.Observer, log *logrus.Entry) *peerConnection {
	if obs == nil {
		obs = engine.NopObserver{}
	}
	p := &peerConnection{
		lib:          lib,
		handle:       handle,
		obs:          obs,
		log:          log,
		queue:        opqueue.New(log),
		transceivers: make(map[uintptr]*transceiver),
	}

	lib.SetCallbacks(handle, ffi.PeerCallbacks{
		OnSignalingStateChange: func(s int) {
			if st, ok := fromShimSignalingState(s); ok {
				p.obs.OnSignalingStateChange(st)
			} else {
				p.unknownState("signaling", s)
			}
		},
		OnICEConnectionStateChange: func(s int) {
			if st, ok := fromShimICEConnectionState(s); ok {
				p.obs.OnICEConnectionStateChange(st)
			} else {
				p.unknownState("ice connection", s)
			}
		},
		OnConnectionStateChange: func(s int) {
			if st, ok := fromShimConnectionState(s); ok {
				p.obs.OnConnectionStateChange(st)
			} else {
				p.unknownState("connection", s)
			}
		},
		OnICEGatheringStateChange: func(s int) {
			if st, ok := fromShimGatheringState(s); ok {
				p.obs.OnICEGatheringStateChange(st)
			} else {
				p.unknownState("ice gathering", s)
			}
		},
		OnICECandidate: func(c ffi.ICECandidate) {
			p.obs.OnICECandidate(fromShimCandidate(c))
		},
		OnNegotiationNeeded: func() {
			p.obs.OnNegotiationNeeded()
		},
		OnTrack: p.handleTrack,
	})
	return p
}

func (p *peerConnection) unknownState(name string, v int) {
	p.log.WithFields(logrus.Fields{"state": name, "value": v}).Warn("unknown shim state")
}

func (p *peerConnection) handleTrack(track, recv uintptr, streams string) {
	log := p.log.WithField("streams", streams)

	tr := p.transceiverForReceiver(recv)
	if tr == nil {
		log.Warn("remote track without a transceiver")
		return
	}
	kind, ok := fromShimKind(p.lib.TrackKind(track))
	if !ok {
		log.Warn("remote track of unknown kind")
		return
	}
	tr.setKind(kind)

	rt := newRemoteTrack(p.lib, track, kind, log)
	if err := rt.attach(); err != nil {
		log.WithError(err).Warn("install remote track sink")
	}
	tr.receiver.setTrack(rt)
	p.obs.OnTrack(tr)
}

func (p *peerConnection) transceiverForReceiver(recv uintptr) *transceiver {
	handles, err := p.lib.Transceivers(p.handle)
	if err != nil {
		p.log.WithError(err).Warn("list transceivers")
		return nil
	}
	for _, h := range handles {
		if p.lib.TransceiverReceiver(h) == recv {
			return p.wrap(h)
		}
	}
	return nil
}

// wrap returns the wrapper of a native transceiver, creating it on first
// sight so that the same handle always maps to the same value.
func (p *peerConnection) wrap(h uintptr) *transceiver {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tr, ok := p.transceivers[h]; ok {
		return tr
	}
	tr := newTransceiver(p.lib, h)
	p.transceivers[h] = tr
	return tr
}

// enqueue runs op on the peer's operation queue. fail completes the
// operation instead when the peer is closed.
func (p *peerConnection) enqueue(fail func(error), op func()) {
	ok := p.queue.Push(func() {
		if p.isClosed() {
			fail(engine.ErrClosed)
			return
		}
		op()
	})
	if !ok {
		fail(engine.ErrClosed)
	}
}

func (p *peerConnection) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *peerConnection) CreateOffer(opts engine.OfferOptions, done func(engine.SessionDescription, error)) {
	fail := func(err error) { done(engine.SessionDescription{}, err) }
	p.enqueue(fail, func() {
		if opts.ICERestart {
			if err := p.lib.RestartICE(p.handle); err != nil {
				fail(errors.Wrap(err, "restart ice"))
				return
			}
		}
		sdp, err := p.lib.CreateOffer(p.handle)
		if err != nil {
			fail(errors.Wrap(err, "create offer"))
			return
		}
		done(engine.SessionDescription{Type: engine.SDPTypeOffer, SDP: sdp}, nil)
	})
}

func (p *peerConnection) CreateAnswer(_ engine.AnswerOptions, done func(engine.SessionDescription, error)) {
	fail := func(err error) { done(engine.SessionDescription{}, err) }
	p.enqueue(fail, func() {
		sdp, err := p.lib.CreateAnswer(p.handle)
		if err != nil {
			fail(errors.Wrap(err, "create answer"))
			return
		}
		done(engine.SessionDescription{Type: engine.SDPTypeAnswer, SDP: sdp}, nil)
	})
}

func (p *peerConnection) SetLocalDescription(desc engine.SessionDescription, done func(error)) {
	p.enqueue(done, func() {
		err := p.lib.SetLocalDescription(p.handle, toShimSDPType(desc.Type), desc.SDP)
		done(errors.Wrap(err, "set local description"))
	})
}

func (p *peerConnection) SetRemoteDescription(desc engine.SessionDescription, done func(error)) {
	p.enqueue(done, func() {
		err := p.lib.SetRemoteDescription(p.handle, toShimSDPType(desc.Type), desc.SDP)
		done(errors.Wrap(err, "set remote description"))
	})
}

func (p *peerConnection) AddICECandidate(c engine.ICECandidate, done func(error)) {
	p.enqueue(done, func() {
		done(errors.Wrap(p.lib.AddICECandidate(p.handle, toShimCandidate(c)), "add ice candidate"))
	})
}

func (p *peerConnection) GetStats(done func([]engine.Stats, error)) {
	fail := func(err error) { done(nil, err) }
	p.enqueue(fail, func() {
		stats, err := p.collectStats()
		if err != nil {
			fail(err)
			return
		}
		done(stats, nil)
	})
}

// collectStats gathers the transport record and one record per sender and
// receiver. Per-transceiver failures drop that record only.
func (p *peerConnection) collectStats() ([]engine.Stats, error) {
	st, err := p.lib.PeerStats(p.handle)
	if err != nil {
		return nil, errors.Wrap(err, "peer connection stats")
	}
	out := peerRecords(st)

	handles, err := p.lib.Transceivers(p.handle)
	if err != nil {
		return nil, errors.Wrap(err, "list transceivers")
	}
	for i, h := range handles {
		tr := p.wrap(h)
		kind, mid := tr.Kind(), tr.Mid()

		if tr.sender.handle != 0 {
			if st, err := p.lib.SenderStats(tr.sender.handle); err == nil {
				out = append(out, outboundRecords(i, kind, mid, st)...)
			} else {
				p.log.WithError(err).WithField("index", i).Debug("sender stats")
			}
		}
		if recv := p.lib.TransceiverReceiver(h); recv != 0 {
			if st, err := p.lib.ReceiverStats(recv); err == nil {
				out = append(out, inboundRecord(i, kind, mid, st))
			} else {
				p.log.WithError(err).WithField("index", i).Debug("receiver stats")
			}
		}
	}
	return out, nil
}

func (p *peerConnection) AddTransceiver(kind engine.MediaKind, init engine.TransceiverInit) (engine.Transceiver, error) {
	if p.isClosed() {
		return nil, engine.ErrClosed
	}
	if init.Direction == engine.TransceiverDirectionStopped {
		return nil, errors.Wrap(engine.ErrNotSupported, "add stopped transceiver")
	}
	h, err := p.lib.AddTransceiver(p.handle, toShimKind(kind), toShimDirection(init.Direction))
	if err != nil {
		return nil, errors.Wrap(err, "add transceiver")
	}
	tr := p.wrap(h)
	tr.setKind(kind)
	return tr, nil
}

func (p *peerConnection) Transceivers() ([]engine.Transceiver, error) {
	if p.isClosed() {
		return nil, engine.ErrClosed
	}
	handles, err := p.lib.Transceivers(p.handle)
	if err != nil {
		return nil, errors.Wrap(err, "list transceivers")
	}
	out := make([]engine.Transceiver, 0, len(handles))
	for _, h := range handles {
		out = append(out, p.wrap(h))
	}
	return out, nil
}

func (p *peerConnection) RestartICE() error {
	if p.isClosed() {
		return engine.ErrClosed
	}
	return errors.Wrap(p.lib.RestartICE(p.handle), "restart ice")
}

// Close closes the native connection, drains queued operations, ends the
// remote tracks and frees the handle.
func (p *peerConnection) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.lib.ClosePeerConnection(p.handle)
	p.queue.Close()

	p.mu.Lock()
	remotes := make([]*remoteTrack, 0, len(p.transceivers))
	for _, tr := range p.transceivers {
		if rt := tr.receiver.remote(); rt != nil {
			remotes = append(remotes, rt)
		}
	}
	p.mu.Unlock()
	for _, rt := range remotes {
		rt.end()
	}

	p.lib.DestroyPeerConnection(p.handle)
	if p.onClose != nil {
		p.onClose(p)
	}
	return nil
}
