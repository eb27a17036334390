package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// CreateOffer asks the engine for an offer and waits for it.
func (r *Registry) CreateOffer(ctx context.Context, id PeerConnectionID, opts engine.OfferOptions) (engine.SessionDescription, error) {
	return r.createDescription(ctx, id, requestCreateOffer, func(p *peerConnection, b *bridge[engine.SessionDescription]) {
		p.native.CreateOffer(opts, b.complete)
	})
}

// CreateAnswer asks the engine for an answer and waits for it.
func (r *Registry) CreateAnswer(ctx context.Context, id PeerConnectionID, opts engine.AnswerOptions) (engine.SessionDescription, error) {
	return r.createDescription(ctx, id, requestCreateAnswer, func(p *peerConnection, b *bridge[engine.SessionDescription]) {
		p.native.CreateAnswer(opts, b.complete)
	})
}

func (r *Registry) createDescription(
	ctx context.Context,
	id PeerConnectionID,
	kind requestKind,
	issue func(*peerConnection, *bridge[engine.SessionDescription]),
) (engine.SessionDescription, error) {
	p, err := r.peer(id)
	if err != nil {
		return engine.SessionDescription{}, err
	}
	prev, err := p.begin(NegotiationStateLocalOfferOrAnswerPending)
	if err != nil {
		return engine.SessionDescription{}, err
	}

	b := newBridge[engine.SessionDescription](kind, id, r.metrics, r.log)
	issue(p, b)
	desc, err := b.wait(ctx, r.timeout)
	if err != nil {
		p.finish(prev, prev, err)
		return engine.SessionDescription{}, err
	}
	p.finish(prev, NegotiationStateLocalOfferOrAnswerPending, nil)
	return desc, nil
}

// SetLocalDescription applies a local description and waits for the engine.
func (r *Registry) SetLocalDescription(ctx context.Context, id PeerConnectionID, typ engine.SDPType, sdp string) error {
	p, err := r.peer(id)
	if err != nil {
		return err
	}
	prev, err := p.begin(NegotiationStateLocalOfferOrAnswerPending)
	if err != nil {
		return err
	}

	b := newBridge[struct{}](requestSetLocalDescription, id, r.metrics, r.log)
	p.native.SetLocalDescription(engine.SessionDescription{Type: typ, SDP: sdp}, b.completeErr)
	_, err = b.wait(ctx, r.timeout)
	p.finish(prev, NegotiationStateLocalDescriptionSet, err)
	return err
}

// SetRemoteDescription applies a remote description and waits for the
// engine. The first successful call flushes candidates buffered by
// AddICECandidate in the order they were added; the first flush failure is
// returned, and candidates already accepted stay accepted.
func (r *Registry) SetRemoteDescription(ctx context.Context, id PeerConnectionID, typ engine.SDPType, sdp string) error {
	p, err := r.peer(id)
	if err != nil {
		return err
	}
	prev, err := p.begin(NegotiationStateRemoteDescriptionPending)
	if err != nil {
		return err
	}

	b := newBridge[struct{}](requestSetRemoteDescription, id, r.metrics, r.log)
	p.native.SetRemoteDescription(engine.SessionDescription{Type: typ, SDP: sdp}, b.completeErr)
	if _, err := b.wait(ctx, r.timeout); err != nil {
		p.finish(prev, prev, err)
		return err
	}

	p.mu.Lock()
	if p.state == NegotiationStateClosed {
		p.mu.Unlock()
		return ErrPeerConnectionClosed
	}
	var flush []*bridge[struct{}]
	if !p.hasRemoteDescription {
		p.hasRemoteDescription = true
		for _, c := range p.pending {
			fb := newBridge[struct{}](requestAddICECandidate, id, r.metrics, r.log)
			p.native.AddICECandidate(c, fb.completeErr)
			flush = append(flush, fb)
		}
		p.pending = nil
	}
	p.state = NegotiationStateNegotiated
	p.mu.Unlock()

	if len(flush) > 0 {
		r.log.WithFields(logrus.Fields{
			"peer":       id,
			"candidates": len(flush),
		}).Debug("flushing buffered ice candidates")
	}

	var first error
	for _, fb := range flush {
		if _, err := fb.wait(ctx, r.timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AddICECandidate forwards c to the engine once a remote description has
// been applied. Before that, c is buffered and nil is returned.
func (r *Registry) AddICECandidate(ctx context.Context, id PeerConnectionID, c engine.ICECandidate) error {
	p, err := r.peer(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.state == NegotiationStateClosed {
		p.mu.Unlock()
		return ErrPeerConnectionClosed
	}
	if !p.hasRemoteDescription {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		r.metrics.bufferedICE.Inc()
		return nil
	}
	b := newBridge[struct{}](requestAddICECandidate, id, r.metrics, r.log)
	p.native.AddICECandidate(c, b.completeErr)
	p.mu.Unlock()

	_, err = b.wait(ctx, r.timeout)
	return err
}

// PendingICECandidates returns how many candidates are buffered for the peer.
func (r *Registry) PendingICECandidates(id PeerConnectionID) (int, error) {
	p, err := r.peer(id)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending), nil
}

// GetStats collects a stats report from the engine.
func (r *Registry) GetStats(ctx context.Context, id PeerConnectionID) (StatsReport, error) {
	p, err := r.peer(id)
	if err != nil {
		return StatsReport{}, err
	}
	if p.closed.Load() {
		return StatsReport{}, ErrPeerConnectionClosed
	}

	b := newBridge[[]engine.Stats](requestGetStats, id, r.metrics, r.log)
	p.native.GetStats(b.complete)
	stats, err := b.wait(ctx, r.timeout)
	if err != nil {
		return StatsReport{}, err
	}
	return newStatsReport(stats), nil
}
