package session

import (
	"sort"
	"sync"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// MediaStreamTrack is a snapshot of a registered track.
type MediaStreamTrack struct {
	ID       TrackID
	Kind     MediaKind
	Origin   TrackOrigin
	DeviceID string
	Label    string
	Enabled  bool
}

// senderRef names one transceiver of one peer.
type senderRef struct {
	peer  PeerConnectionID
	index int
}

// senderSet records every transceiver whose sender currently carries a
// track. It mirrors the native senders.
type senderSet map[PeerConnectionID]map[int]struct{}

func (s senderSet) add(peer PeerConnectionID, index int) {
	idx, ok := s[peer]
	if !ok {
		idx = make(map[int]struct{})
		s[peer] = idx
	}
	idx[index] = struct{}{}
}

func (s senderSet) remove(peer PeerConnectionID, index int) {
	idx, ok := s[peer]
	if !ok {
		return
	}
	delete(idx, index)
	if len(idx) == 0 {
		delete(s, peer)
	}
}

func (s senderSet) removePeer(peer PeerConnectionID) {
	delete(s, peer)
}

func (s senderSet) has(peer PeerConnectionID, index int) bool {
	_, ok := s[peer][index]
	return ok
}

// refs returns the bindings ordered by peer then index.
func (s senderSet) refs() []senderRef {
	var out []senderRef
	for peer, idx := range s {
		for i := range idx {
			out = append(out, senderRef{peer: peer, index: i})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].peer != out[b].peer {
			return out[a].peer < out[b].peer
		}
		return out[a].index < out[b].index
	})
	return out
}

// mediaSource is either a shared local source or the transceiver of a peer
// that a remote track was received on. The remote form holds only the peer
// id; the peer is resolved through the registry on every use and may be
// gone.
type mediaSource[S engine.Source] struct {
	local *sharedSource[S]
	mid   string
	peer  PeerConnectionID
}

func (s mediaSource[S]) isLocal() bool {
	return s.local != nil
}

// trackBase holds what video and audio tracks have in common. Fields are
// guarded by the registry lock.
type trackBase struct {
	id       TrackID
	kind     MediaKind
	origin   TrackOrigin
	deviceID string
	label    string
	senders  senderSet
	sink     TrackEventSink
	ended    bool
}

func (t *trackBase) key() trackKey {
	return trackKey{id: t.id, origin: t.origin}
}

// registeredTrack is implemented by *videoTrack and *audioTrack.
type registeredTrack interface {
	base() *trackBase
	nativeTrack() engine.Track
	snapshot() MediaStreamTrack
}

type videoTrack struct {
	trackBase
	native engine.VideoTrack
	source mediaSource[engine.VideoSource]
}

func (t *videoTrack) base() *trackBase          { return &t.trackBase }
func (t *videoTrack) nativeTrack() engine.Track { return t.native }

func (t *videoTrack) snapshot() MediaStreamTrack {
	return t.trackBase.snapshot(t.native)
}

type audioTrack struct {
	trackBase
	native engine.AudioTrack
	source mediaSource[engine.AudioSource]
	levels *audioLevelBroadcaster
}

func (t *audioTrack) base() *trackBase          { return &t.trackBase }
func (t *audioTrack) nativeTrack() engine.Track { return t.native }

func (t *audioTrack) snapshot() MediaStreamTrack {
	return t.trackBase.snapshot(t.native)
}

func (t *trackBase) snapshot(native engine.Track) MediaStreamTrack {
	return MediaStreamTrack{
		ID:       t.id,
		Kind:     t.kind,
		Origin:   t.origin,
		DeviceID: t.deviceID,
		Label:    t.label,
		Enabled:  native.Enabled(),
	}
}

// audioLevelBroadcaster forwards engine audio levels to a track's sink. It
// has its own lock so level updates never touch the registry lock.
type audioLevelBroadcaster struct {
	id     TrackID
	origin TrackOrigin

	mu      sync.RWMutex
	enabled bool
	sink    TrackEventSink
}

func newAudioLevelBroadcaster(id TrackID, origin TrackOrigin) *audioLevelBroadcaster {
	return &audioLevelBroadcaster{id: id, origin: origin}
}

func (b *audioLevelBroadcaster) setSink(s TrackEventSink) {
	b.mu.Lock()
	b.sink = s
	b.mu.Unlock()
}

func (b *audioLevelBroadcaster) setEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

func (b *audioLevelBroadcaster) publish(level float64) {
	b.mu.RLock()
	sink := b.sink
	enabled := b.enabled
	b.mu.RUnlock()

	if !enabled || sink == nil {
		return
	}
	sink.Send(AudioLevelUpdated{ID: b.id, Origin: b.origin, Level: level})
}
