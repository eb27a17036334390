package session

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// CreatePeerConnection creates a native peer connection whose events are
// delivered to sink, and announces it with a PeerCreated event.
func (r *Registry) CreatePeerConnection(cfg engine.Configuration, sink PeerEventSink) (PeerConnectionID, error) {
	id := PeerConnectionID(r.nextPeerID.Add(1))
	p := newPeerConnection(id, sink)

	err := r.guard(func() error {
		native, err := r.engine.NewPeerConnection(cfg, &peerObserver{r: r, p: p})
		if err != nil {
			return newNativeError("create-peer-connection", err)
		}
		p.native = native
		r.peers[id] = p
		r.metrics.peers.Inc()
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.WithFields(logrus.Fields{
		"peer":        id,
		"ice_servers": len(cfg.ICEServers),
	}).Debug("peer connection created")

	if sink != nil {
		sink.Send(PeerCreated{Peer: id})
	}
	return id, nil
}

// DisposePeerConnection detaches the peer from every track, detaches every
// sender of the peer and closes the native connection. Remote tracks
// received from the peer stay registered but report TrackEnded. Disposing
// an unknown id is a no-op.
func (r *Registry) DisposePeerConnection(id PeerConnectionID) error {
	type endedNotice struct {
		sink TrackEventSink
		ev   TrackEnded
	}

	var (
		p      *peerConnection
		ended  []endedNotice
		result *multierror.Error
	)
	err := r.guard(func() error {
		var ok bool
		if p, ok = r.peers[id]; !ok {
			return nil
		}
		delete(r.peers, id)
		r.metrics.peers.Dec()

		for _, kind := range []MediaKind{MediaKindAudio, MediaKindVideo} {
			for _, t := range r.tracksOf(kind) {
				b := t.base()
				b.senders.removePeer(id)
				if from, remote := b.origin.Peer(); remote && from == id {
					if sink := r.markEnded(t); sink != nil {
						ended = append(ended, endedNotice{
							sink: sink,
							ev:   TrackEnded{ID: b.id, Kind: b.kind, Origin: b.origin},
						})
					}
				}
			}
		}

		trs, err := p.native.Transceivers()
		if err != nil {
			result = multierror.Append(result, errors.Wrap(err, "list transceivers"))
		}
		for i, tr := range trs {
			if tr.Sender().Track() == nil {
				continue
			}
			if err := tr.Sender().ReplaceTrack(nil); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "detach sender %d", i))
			}
		}

		r.updateOutputMuted()
		return nil
	})
	if err != nil || p == nil {
		return err
	}

	dropped := p.markClosed()
	if err := p.native.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close"))
	}

	log := r.log.WithField("peer", id)
	if result != nil {
		log.WithError(result).Warn("peer connection disposed with errors")
	} else {
		log.WithField("dropped_candidates", dropped).Debug("peer connection disposed")
	}

	for _, n := range ended {
		n.sink.Send(n.ev)
	}
	return nil
}

// RestartICE makes the next offer of the peer restart ICE.
func (r *Registry) RestartICE(id PeerConnectionID) error {
	return r.guard(func() error {
		p, err := r.lookupPeer(id)
		if err != nil {
			return err
		}
		if err := p.native.RestartICE(); err != nil {
			return newNativeError("restart-ice", err)
		}
		return nil
	})
}

// NegotiationState returns the negotiation progress of the peer.
func (r *Registry) NegotiationState(id PeerConnectionID) (NegotiationState, error) {
	p, err := r.peer(id)
	if err != nil {
		return 0, err
	}
	return p.negotiationState(), nil
}
