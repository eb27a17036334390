package session

import (
	"github.com/thesyncim/rtcsession/pkg/engine"
)

// TransceiverInfo is a snapshot of a native transceiver.
type TransceiverInfo struct {
	Index     int
	Mid       string
	Kind      MediaKind
	Direction engine.TransceiverDirection
	Stopped   bool
}

func transceiverInfo(index int, tr engine.Transceiver) TransceiverInfo {
	return TransceiverInfo{
		Index:     index,
		Mid:       tr.Mid(),
		Kind:      tr.Kind(),
		Direction: tr.Direction(),
		Stopped:   tr.Stopped(),
	}
}

// transceiverIndex finds tr in the native list of pc.
func transceiverIndex(pc engine.PeerConnection, tr engine.Transceiver) (int, error) {
	list, err := pc.Transceivers()
	if err != nil {
		return -1, newNativeError("get-transceivers", err)
	}
	for i, t := range list {
		if t == tr {
			return i, nil
		}
	}
	return -1, notFound("transceiver (mid %q)", tr.Mid())
}

// transceiverAt resolves a transceiver index of peer p. Must hold r.mu.
func (r *Registry) transceiverAt(p *peerConnection, index int) (engine.Transceiver, error) {
	list, err := p.native.Transceivers()
	if err != nil {
		return nil, newNativeError("get-transceivers", err)
	}
	if index < 0 || index >= len(list) {
		return nil, notFound("transceiver %d of peer connection %d", index, p.id)
	}
	return list[index], nil
}

// AddTransceiver adds a transceiver of kind to the peer.
func (r *Registry) AddTransceiver(id PeerConnectionID, kind MediaKind, init engine.TransceiverInit) (TransceiverInfo, error) {
	var info TransceiverInfo
	err := r.guard(func() error {
		p, err := r.lookupPeer(id)
		if err != nil {
			return err
		}
		tr, err := p.native.AddTransceiver(kind, init)
		if err != nil {
			return newNativeError("add-transceiver", err)
		}
		index, err := transceiverIndex(p.native, tr)
		if err != nil {
			return err
		}
		info = transceiverInfo(index, tr)
		return nil
	})
	return info, err
}

// GetTransceivers returns snapshots of the peer's transceivers by index.
func (r *Registry) GetTransceivers(id PeerConnectionID) ([]TransceiverInfo, error) {
	var out []TransceiverInfo
	err := r.guard(func() error {
		p, err := r.lookupPeer(id)
		if err != nil {
			return err
		}
		list, err := p.native.Transceivers()
		if err != nil {
			return newNativeError("get-transceivers", err)
		}
		out = make([]TransceiverInfo, len(list))
		for i, tr := range list {
			out[i] = transceiverInfo(i, tr)
		}
		return nil
	})
	return out, err
}

// GetTransceiverMid returns the negotiated mid of a transceiver. ok is false
// before negotiation assigned one.
func (r *Registry) GetTransceiverMid(id PeerConnectionID, index int) (mid string, ok bool, err error) {
	err = r.withTransceiver(id, index, func(_ *peerConnection, tr engine.Transceiver) error {
		mid = tr.Mid()
		return nil
	})
	return mid, mid != "", err
}

// GetTransceiverDirection returns the preferred direction of a transceiver.
func (r *Registry) GetTransceiverDirection(id PeerConnectionID, index int) (engine.TransceiverDirection, error) {
	var dir engine.TransceiverDirection
	err := r.withTransceiver(id, index, func(_ *peerConnection, tr engine.Transceiver) error {
		dir = tr.Direction()
		return nil
	})
	return dir, err
}

// SetTransceiverDirection changes the preferred direction of a transceiver.
func (r *Registry) SetTransceiverDirection(id PeerConnectionID, index int, dir engine.TransceiverDirection) error {
	if dir == engine.TransceiverDirectionStopped {
		return r.StopTransceiver(id, index)
	}
	return r.withTransceiver(id, index, func(_ *peerConnection, tr engine.Transceiver) error {
		return setDirection(tr, dir)
	})
}

// SetTransceiverRecv toggles the receive half of a transceiver's direction.
func (r *Registry) SetTransceiverRecv(id PeerConnectionID, index int, recv bool) error {
	return r.withTransceiver(id, index, func(_ *peerConnection, tr engine.Transceiver) error {
		return setDirection(tr, tr.Direction().WithRecv(recv))
	})
}

// SetTransceiverSend toggles the send half of a transceiver's direction.
func (r *Registry) SetTransceiverSend(id PeerConnectionID, index int, send bool) error {
	return r.withTransceiver(id, index, func(_ *peerConnection, tr engine.Transceiver) error {
		return setDirection(tr, tr.Direction().WithSend(send))
	})
}

func setDirection(tr engine.Transceiver, dir engine.TransceiverDirection) error {
	if tr.Direction() == dir {
		return nil
	}
	if err := tr.SetDirection(dir); err != nil {
		return newNativeError("set-transceiver-direction", err)
	}
	return nil
}

// StopTransceiver stops a transceiver. Its sender no longer carries a track.
func (r *Registry) StopTransceiver(id PeerConnectionID, index int) error {
	return r.withTransceiver(id, index, func(p *peerConnection, tr engine.Transceiver) error {
		if tr.Stopped() {
			return nil
		}
		if tr.Sender().Track() != nil {
			if err := tr.Sender().ReplaceTrack(nil); err != nil {
				return newNativeError("stop-transceiver", err)
			}
		}
		if err := tr.Stop(); err != nil {
			return newNativeError("stop-transceiver", err)
		}
		if bound := r.trackBoundTo(tr.Kind(), p.id, index); bound != nil {
			bound.base().senders.remove(p.id, index)
			if tr.Kind() == MediaKindAudio {
				r.updateOutputMuted()
			}
		}
		return nil
	})
}

// SenderReplaceTrack binds the local track trackID to the sender of a
// transceiver, or detaches the sender when trackID is empty. The native
// sender and the senders maps of both the previous and the new track are
// updated in one critical section.
func (r *Registry) SenderReplaceTrack(id PeerConnectionID, index int, trackID TrackID) error {
	return r.guard(func() error {
		p, err := r.lookupPeer(id)
		if err != nil {
			return err
		}
		return r.replaceTrack(p, index, trackID)
	})
}

// replaceTrack is SenderReplaceTrack with the lock held and the peer
// resolved. Must hold r.mu.
func (r *Registry) replaceTrack(p *peerConnection, index int, trackID TrackID) error {
	tr, err := r.transceiverAt(p, index)
	if err != nil {
		return err
	}
	kind := tr.Kind()

	var next registeredTrack
	var nativeNext engine.Track
	if trackID != "" {
		next, err = r.lookupTrack(LocalOrigin(), trackID, kind)
		if err != nil {
			return err
		}
		nativeNext = next.nativeTrack()
	}

	prev := r.trackBoundTo(kind, p.id, index)
	if prev != nil && prev == next {
		return nil
	}

	if err := tr.Sender().ReplaceTrack(nativeNext); err != nil {
		return newNativeError("replace-track", err)
	}
	if prev != nil {
		prev.base().senders.remove(p.id, index)
	}
	if next != nil {
		next.base().senders.add(p.id, index)
	}
	if kind == MediaKindAudio {
		r.updateOutputMuted()
	}
	return nil
}

// trackBoundTo returns the track whose senders map holds (peer, index), or
// nil. Must hold r.mu.
func (r *Registry) trackBoundTo(kind MediaKind, peer PeerConnectionID, index int) registeredTrack {
	switch kind {
	case MediaKindVideo:
		for _, t := range r.videoTracks {
			if t.senders.has(peer, index) {
				return t
			}
		}
	case MediaKindAudio:
		for _, t := range r.audioTracks {
			if t.senders.has(peer, index) {
				return t
			}
		}
	}
	return nil
}

// updateOutputMuted tells the engine whether any local audio is being sent.
// Must hold r.mu.
func (r *Registry) updateOutputMuted() {
	muted := true
	for _, t := range r.audioTracks {
		if len(t.senders) > 0 {
			muted = false
			break
		}
	}
	if muted != r.outputMuted {
		r.outputMuted = muted
		r.engine.SetOutputWillBeMuted(muted)
	}
}

func (r *Registry) withTransceiver(id PeerConnectionID, index int, fn func(*peerConnection, engine.Transceiver) error) error {
	return r.guard(func() error {
		p, err := r.lookupPeer(id)
		if err != nil {
			return err
		}
		tr, err := r.transceiverAt(p, index)
		if err != nil {
			return err
		}
		return fn(p, tr)
	})
}
