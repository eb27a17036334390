package session

import (
	"sync"
	"sync/atomic"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// NegotiationState tracks offer/answer progress of a peer connection.
type NegotiationState int

const (
	NegotiationStateNew NegotiationState = iota
	NegotiationStateLocalOfferOrAnswerPending
	NegotiationStateLocalDescriptionSet
	NegotiationStateRemoteDescriptionPending
	NegotiationStateNegotiated
	NegotiationStateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationStateNew:
		return "new"
	case NegotiationStateLocalOfferOrAnswerPending:
		return "local-offer-or-answer-pending"
	case NegotiationStateLocalDescriptionSet:
		return "local-description-set"
	case NegotiationStateRemoteDescriptionPending:
		return "remote-description-pending"
	case NegotiationStateNegotiated:
		return "negotiated"
	case NegotiationStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peerConnection wraps a native connection with its negotiation state and
// the candidates received before a remote description was applied.
type peerConnection struct {
	id     PeerConnectionID
	native engine.PeerConnection
	sink   PeerEventSink
	closed atomic.Bool

	// mu serializes the buffer-or-forward decision for candidates and the
	// order in which they are issued to the engine. It is never held while
	// waiting on a bridge and never taken while holding the registry lock.
	mu                   sync.Mutex
	state                NegotiationState
	hasRemoteDescription bool
	pending              []engine.ICECandidate
}

func newPeerConnection(id PeerConnectionID, sink PeerEventSink) *peerConnection {
	return &peerConnection{id: id, sink: sink}
}

// begin moves to the pending state of an operation and returns the state to
// restore if it fails. A negotiated connection stays negotiated while it
// renegotiates.
func (p *peerConnection) begin(pending NegotiationState) (NegotiationState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == NegotiationStateClosed {
		return p.state, ErrPeerConnectionClosed
	}
	prev := p.state
	if !p.hasRemoteDescription {
		p.state = pending
	}
	return prev, nil
}

// finish records the outcome of an operation started with begin.
func (p *peerConnection) finish(prev, next NegotiationState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == NegotiationStateClosed || p.hasRemoteDescription {
		return
	}
	if err != nil {
		p.state = prev
		return
	}
	p.state = next
}

func (p *peerConnection) negotiationState() NegotiationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// markClosed moves the connection to its terminal state and drops any
// candidates still buffered.
func (p *peerConnection) markClosed() int {
	p.closed.Store(true)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = NegotiationStateClosed
	dropped := len(p.pending)
	p.pending = nil
	return dropped
}
