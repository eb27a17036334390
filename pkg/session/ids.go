package session

import (
	"fmt"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// PeerConnectionID identifies a peer connection. IDs are issued from a
// monotonic counter and never reused within a Registry.
type PeerConnectionID uint64

// TrackID identifies a track within its kind and origin.
type TrackID string

// VideoSinkID identifies a renderer attached to a video track.
type VideoSinkID int64

// TrackOrigin tells a locally captured track from one received from a peer.
// The zero value is the local origin.
type TrackOrigin struct {
	remote bool
	peer   PeerConnectionID
}

// LocalOrigin is the origin of tracks created by GetMedia and their clones.
func LocalOrigin() TrackOrigin {
	return TrackOrigin{}
}

// RemoteOrigin is the origin of tracks received from peer.
func RemoteOrigin(peer PeerConnectionID) TrackOrigin {
	return TrackOrigin{remote: true, peer: peer}
}

// IsLocal reports whether the origin is local.
func (o TrackOrigin) IsLocal() bool {
	return !o.remote
}

// Peer returns the sending peer of a remote origin.
func (o TrackOrigin) Peer() (PeerConnectionID, bool) {
	return o.peer, o.remote
}

func (o TrackOrigin) String() string {
	if !o.remote {
		return "local"
	}
	return fmt.Sprintf("remote(%d)", o.peer)
}

// trackKey is the identity of a track inside one kind's map.
type trackKey struct {
	id     TrackID
	origin TrackOrigin
}

// MediaKind is re-exported for callers that only import session.
type MediaKind = engine.MediaKind

const (
	MediaKindAudio = engine.MediaKindAudio
	MediaKindVideo = engine.MediaKindVideo
)
