package pionengine

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/internal/opqueue"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

type peerConnection struct {
	pc    *webrtc.PeerConnection
	obs   engine.Observer
	log   *logrus.Entry
	queue *opqueue.Queue

	onClose func(*peerConnection)

	mu           sync.Mutex
	transceivers map[*webrtc.RTPTransceiver]*transceiver
	gathering    engine.ICEGatheringState
	restartICE   bool
	closed       bool
}

var _ engine.PeerConnection = (*peerConnection)(nil)

func newPeerConnection(pc *webrtc.PeerConnection, obs engine.Observer, log *logrus.Entry) *peerConnection {
	if obs == nil {
		obs = engine.NopObserver{}
	}
	p := &peerConnection{
		pc:           pc,
		obs:          obs,
		log:          log,
		queue:        opqueue.New(log),
		transceivers: make(map[*webrtc.RTPTransceiver]*transceiver),
	}

	pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		p.obs.OnSignalingStateChange(fromPionSignalingState(s))
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		p.obs.OnICEConnectionStateChange(fromPionICEConnectionState(s))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.obs.OnConnectionStateChange(fromPionConnectionState(s))
	})
	pc.OnNegotiationNeeded(func() {
		p.obs.OnNegotiationNeeded()
	})
	pc.OnICECandidate(p.handleCandidate)
	pc.OnTrack(p.handleTrack)
	return p
}

// handleCandidate derives the gathering state from the candidate stream:
// the first candidate moves it to gathering, the nil end-of-candidates
// marker to complete.
func (p *peerConnection) handleCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		p.setGathering(engine.ICEGatheringStateComplete)
		return
	}
	p.setGathering(engine.ICEGatheringStateGathering)
	p.obs.OnICECandidate(fromPionCandidate(c.ToJSON()))
}

func (p *peerConnection) setGathering(s engine.ICEGatheringState) {
	p.mu.Lock()
	changed := p.gathering != s && !p.closed
	p.gathering = s
	p.mu.Unlock()
	if changed {
		p.obs.OnICEGatheringStateChange(s)
	}
}

func (p *peerConnection) handleTrack(remote *webrtc.TrackRemote, recv *webrtc.RTPReceiver) {
	var tr *transceiver
	for _, raw := range p.pc.GetTransceivers() {
		if raw.Receiver() == recv {
			tr = p.wrap(raw)
			break
		}
	}
	if tr == nil {
		p.log.WithField("track", remote.ID()).Warn("remote track without a transceiver")
		return
	}

	rt := newRemoteTrack(remote, audioLevelExtensionID(recv.GetParameters()), p.log)
	tr.receiver.setTrack(rt)
	go rt.readLoop()
	p.obs.OnTrack(tr)
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
		p.mu.Lock()
		restart := opts.ICERestart || p.restartICE
		p.mu.Unlock()

		offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{
			OfferAnswerOptions: webrtc.OfferAnswerOptions{VoiceActivityDetection: opts.VoiceActivityDetection},
			ICERestart:         restart,
		})
		if err != nil {
			fail(err)
			return
		}
		if restart {
			p.mu.Lock()
			p.restartICE = false
			p.mu.Unlock()
		}
		done(fromPionDescription(offer), nil)
	})
}

func (p *peerConnection) CreateAnswer(opts engine.AnswerOptions, done func(engine.SessionDescription, error)) {
	fail := func(err error) { done(engine.SessionDescription{}, err) }
	p.enqueue(fail, func() {
		answer, err := p.pc.CreateAnswer(&webrtc.AnswerOptions{
			OfferAnswerOptions: webrtc.OfferAnswerOptions{VoiceActivityDetection: opts.VoiceActivityDetection},
		})
		if err != nil {
			fail(err)
			return
		}
		done(fromPionDescription(answer), nil)
	})
}

func (p *peerConnection) SetLocalDescription(desc engine.SessionDescription, done func(error)) {
	p.enqueue(done, func() {
		done(p.pc.SetLocalDescription(webrtc.SessionDescription{
			Type: toPionSDPType(desc.Type),
			SDP:  desc.SDP,
		}))
	})
}

func (p *peerConnection) SetRemoteDescription(desc engine.SessionDescription, done func(error)) {
	p.enqueue(done, func() {
		done(p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: toPionSDPType(desc.Type),
			SDP:  desc.SDP,
		}))
	})
}

func (p *peerConnection) AddICECandidate(c engine.ICECandidate, done func(error)) {
	p.enqueue(done, func() {
		done(p.pc.AddICECandidate(toPionCandidate(c)))
	})
}

func (p *peerConnection) GetStats(done func([]engine.Stats, error)) {
	fail := func(err error) { done(nil, err) }
	p.enqueue(fail, func() {
		stats, err := convertStats(p.pc.GetStats())
		if err != nil {
			fail(err)
			return
		}
		done(stats, nil)
	})
}

func (p *peerConnection) AddTransceiver(kind engine.MediaKind, init engine.TransceiverInit) (engine.Transceiver, error) {
	if p.isClosed() {
		return nil, engine.ErrClosed
	}
	dir, err := toPionDirection(init.Direction)
	if err != nil {
		return nil, err
	}
	raw, err := p.pc.AddTransceiverFromKind(toPionKind(kind), webrtc.RTPTransceiverInit{Direction: dir})
	if err != nil {
		return nil, err
	}
	return p.wrap(raw), nil
}

func (p *peerConnection) Transceivers() ([]engine.Transceiver, error) {
	if p.isClosed() {
		return nil, engine.ErrClosed
	}
	raws := p.pc.GetTransceivers()
	out := make([]engine.Transceiver, 0, len(raws))
	for _, raw := range raws {
		out = append(out, p.wrap(raw))
	}
	return out, nil
}

// wrap returns the wrapper of raw, creating it on first sight so that the
// same native transceiver always maps to the same value.
func (p *peerConnection) wrap(raw *webrtc.RTPTransceiver) *transceiver {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tr, ok := p.transceivers[raw]; ok {
		return tr
	}
	tr := newTransceiver(raw)
	p.transceivers[raw] = tr
	return tr
}

// RestartICE makes the next offer restart ICE.
func (p *peerConnection) RestartICE() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return engine.ErrClosed
	}
	p.restartICE = true
	return nil
}

func (p *peerConnection) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.pc.Close()
	p.queue.Close()
	if p.onClose != nil {
		p.onClose(p)
	}
	return errors.Wrap(err, "close peer connection")
}
