package session

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// peerObserver fans engine events of one peer connection out to its sink.
// State and candidate events are forwarded on the engine goroutine; work
// that needs the registry lock runs on the worker pool.
type peerObserver struct {
	r *Registry
	p *peerConnection
}

var _ engine.Observer = (*peerObserver)(nil)

func (o *peerObserver) send(ev PeerConnectionEvent) {
	if o.p.closed.Load() || o.p.sink == nil {
		return
	}
	o.p.sink.Send(ev)
}

func (o *peerObserver) OnSignalingStateChange(s engine.SignalingState) {
	o.send(SignalingStateChanged{Peer: o.p.id, State: s})
}

func (o *peerObserver) OnICEConnectionStateChange(s engine.ICEConnectionState) {
	o.send(ICEConnectionStateChanged{Peer: o.p.id, State: s})
}

func (o *peerObserver) OnConnectionStateChange(s engine.PeerConnectionState) {
	o.send(ConnectionStateChanged{Peer: o.p.id, State: s})
}

func (o *peerObserver) OnICEGatheringStateChange(s engine.ICEGatheringState) {
	o.send(ICEGatheringStateChanged{Peer: o.p.id, State: s})
}

func (o *peerObserver) OnICECandidate(c engine.ICECandidate) {
	o.send(ICECandidateDiscovered{Peer: o.p.id, Candidate: c})
}

func (o *peerObserver) OnICECandidateError(e engine.ICECandidateError) {
	o.send(ICECandidateFailed{Peer: o.p.id, Error: e})
}

func (o *peerObserver) OnNegotiationNeeded() {
	o.send(NegotiationNeeded{Peer: o.p.id})
}

// OnTrack resolves the transceiver index on a worker, since that needs the
// registry lock and a scan of the native transceiver list.
func (o *peerObserver) OnTrack(tr engine.Transceiver) {
	if o.p.closed.Load() {
		return
	}
	if !o.r.pool.submit(func() { o.r.registerRemoteTrack(o.p, tr) }) {
		o.r.metrics.droppedEvents.WithLabelValues("track").Inc()
	}
}

// registerRemoteTrack registers the receiver track of tr as a remote-origin
// track of p and announces it.
func (r *Registry) registerRemoteTrack(p *peerConnection, tr engine.Transceiver) {
	var (
		added   *TrackAdded
		trackID TrackID
	)
	err := r.guard(func() error {
		if _, err := r.lookupPeer(p.id); err != nil {
			return err
		}
		index, err := transceiverIndex(p.native, tr)
		if err != nil {
			return err
		}
		rt := tr.Receiver().Track()
		if rt == nil {
			return notFound("receiver track of transceiver %d", index)
		}

		trackID = TrackID(rt.ID())
		origin := RemoteOrigin(p.id)
		base := trackBase{
			id:      trackID,
			kind:    tr.Kind(),
			origin:  origin,
			label:   rt.ID(),
			senders: make(senderSet),
		}

		var t registeredTrack
		switch tr.Kind() {
		case MediaKindVideo:
			native, ok := rt.(engine.VideoTrack)
			if !ok {
				return errors.Errorf("video receiver track %q is not a video track", rt.ID())
			}
			if _, ok := r.videoTracks[base.key()]; ok {
				return nil
			}
			vt := &videoTrack{
				trackBase: base,
				native:    native,
				source:    mediaSource[engine.VideoSource]{mid: tr.Mid(), peer: p.id},
			}
			r.videoTracks[base.key()] = vt
			t = vt
		case MediaKindAudio:
			native, ok := rt.(engine.AudioTrack)
			if !ok {
				return errors.Errorf("audio receiver track %q is not an audio track", rt.ID())
			}
			if _, ok := r.audioTracks[base.key()]; ok {
				return nil
			}
			at := &audioTrack{
				trackBase: base,
				native:    native,
				source:    mediaSource[engine.AudioSource]{mid: tr.Mid(), peer: p.id},
				levels:    newAudioLevelBroadcaster(trackID, origin),
			}
			r.audioTracks[base.key()] = at
			t = at
		default:
			return notFound("%s receiver track of transceiver %d", tr.Kind(), index)
		}

		r.watchEnded(t)
		r.metrics.trackAdded(base.kind, origin)
		added = &TrackAdded{
			Peer:        p.id,
			Track:       t.snapshot(),
			Transceiver: transceiverInfo(index, tr),
		}
		return nil
	})
	if err != nil {
		r.metrics.droppedEvents.WithLabelValues("track").Inc()
		r.log.WithFields(logrus.Fields{
			"peer":  p.id,
			"track": trackID,
		}).WithError(err).Debug("dropping remote track event")
		return
	}
	if added != nil && !p.closed.Load() && p.sink != nil {
		p.sink.Send(*added)
	}
}

// watchEnded arranges for a TrackEnded event when the native track ends on
// its own. The engine may fire OnEnded while the registry lock is held, so
// the lookup is deferred to a worker. Must hold r.mu.
func (r *Registry) watchEnded(t registeredTrack) {
	b := t.base()
	key, kind := b.key(), b.kind
	t.nativeTrack().OnEnded(func() {
		r.pool.submit(func() { r.trackEnded(kind, key) })
	})
}

func (r *Registry) trackEnded(kind MediaKind, key trackKey) {
	var sink TrackEventSink
	_ = r.guard(func() error {
		t, err := r.lookupTrack(key.origin, key.id, kind)
		if err != nil {
			return err
		}
		sink = r.markEnded(t)
		return nil
	})
	if sink != nil {
		sink.Send(TrackEnded{ID: key.id, Kind: kind, Origin: key.origin})
	}
}

// markEnded flags t as ended and returns the sink to notify, or nil if the
// track was already ended or has no observer. Must hold r.mu.
func (r *Registry) markEnded(t registeredTrack) TrackEventSink {
	b := t.base()
	if b.ended {
		return nil
	}
	b.ended = true
	return b.sink
}
