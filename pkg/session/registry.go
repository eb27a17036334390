// Package session tracks peer connections, media tracks, shared capture
// sources and sender bindings on top of an engine.Engine, and turns the
// engine's asynchronous callbacks into blocking calls and event streams.
//
// A Registry is the single owner of that state. Map mutation is serialized
// by one mutex that is never held while waiting for the engine.
package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// Registry orchestrates sessions on one engine. It is safe for concurrent use.
type Registry struct {
	engine  engine.Engine
	timeout time.Duration
	log     *logrus.Entry
	metrics *metrics
	pool    *workerPool

	nextPeerID atomic.Uint64

	mu           sync.Mutex
	poisoned     atomic.Bool
	closed       bool
	peers        map[PeerConnectionID]*peerConnection
	videoTracks  map[trackKey]*videoTrack
	audioTracks  map[trackKey]*audioTrack
	videoSources *sourceRegistry[engine.VideoSource]
	audioSources *sourceRegistry[engine.AudioSource]
	videoSinks   map[VideoSinkID]*videoSink
	outputMuted  bool
}

// New returns a Registry driving eng.
func New(eng engine.Engine, opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := newMetrics(o.registerer)
	r := &Registry{
		engine:       eng,
		timeout:      o.bridgeTimeout,
		log:          o.log,
		metrics:      m,
		pool:         newWorkerPool(o.workers, o.log),
		peers:        make(map[PeerConnectionID]*peerConnection),
		videoTracks:  make(map[trackKey]*videoTrack),
		audioTracks:  make(map[trackKey]*audioTrack),
		videoSources: newSourceRegistry[engine.VideoSource](MediaKindVideo, m),
		audioSources: newSourceRegistry[engine.AudioSource](MediaKindAudio, m),
		videoSinks:   make(map[VideoSinkID]*videoSink),
		outputMuted:  true,
	}
	eng.SetOutputWillBeMuted(true)
	return r
}

// guard runs fn with the registry lock held. A panic escaping fn poisons
// the registry and is re-raised; every later call returns ErrLockPoisoned.
func (r *Registry) guard(fn func() error) error {
	r.mu.Lock()
	if r.poisoned.Load() {
		r.mu.Unlock()
		return ErrLockPoisoned
	}
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}

	defer func() {
		if p := recover(); p != nil {
			r.poisoned.Store(true)
			r.mu.Unlock()
			r.log.WithField("panic", p).Error("registry lock poisoned")
			panic(p)
		}
		r.mu.Unlock()
	}()
	return fn()
}

// lookupPeer returns the live peer for id. Must hold r.mu.
func (r *Registry) lookupPeer(id PeerConnectionID) (*peerConnection, error) {
	p, ok := r.peers[id]
	if !ok {
		return nil, notFound("peer connection %d", id)
	}
	return p, nil
}

// peer resolves id under the lock and returns it for use outside the lock.
func (r *Registry) peer(id PeerConnectionID) (*peerConnection, error) {
	var p *peerConnection
	err := r.guard(func() error {
		var err error
		p, err = r.lookupPeer(id)
		return err
	})
	return p, err
}

// lookupTrack returns the track for (id, origin) of kind. Must hold r.mu.
func (r *Registry) lookupTrack(origin TrackOrigin, id TrackID, kind MediaKind) (registeredTrack, error) {
	key := trackKey{id: id, origin: origin}
	switch kind {
	case MediaKindVideo:
		if t, ok := r.videoTracks[key]; ok {
			return t, nil
		}
	case MediaKindAudio:
		if t, ok := r.audioTracks[key]; ok {
			return t, nil
		}
	}
	return nil, notFound("%s track %q (%s)", kind, id, origin)
}

// tracksOf returns every track of kind ordered by id then origin. Must
// hold r.mu.
func (r *Registry) tracksOf(kind MediaKind) []registeredTrack {
	var out []registeredTrack
	switch kind {
	case MediaKindVideo:
		for _, t := range r.videoTracks {
			out = append(out, t)
		}
	case MediaKindAudio:
		for _, t := range r.audioTracks {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].base(), out[j].base()
		if a.id != b.id {
			return a.id < b.id
		}
		return a.origin.String() < b.origin.String()
	})
	return out
}

// Close disposes every peer connection and track and stops the workers.
// Later calls on the registry return ErrRegistryClosed.
func (r *Registry) Close() error {
	var peers []PeerConnectionID
	var tracks []MediaStreamTrack
	err := r.guard(func() error {
		for id := range r.peers {
			peers = append(peers, id)
		}
		for _, kind := range []MediaKind{MediaKindAudio, MediaKindVideo} {
			for _, t := range r.tracksOf(kind) {
				b := t.base()
				tracks = append(tracks, MediaStreamTrack{ID: b.id, Kind: b.kind, Origin: b.origin})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	var result *multierror.Error
	for _, id := range peers {
		if err := r.DisposePeerConnection(id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, t := range tracks {
		if err := r.DisposeTrack(t.Origin, t.ID, t.Kind); err != nil {
			result = multierror.Append(result, err)
		}
	}

	err = r.guard(func() error {
		for id, s := range r.videoSinks {
			s.detach()
			delete(r.videoSinks, id)
		}
		r.closed = true
		return nil
	})
	if err != nil {
		result = multierror.Append(result, err)
	}

	r.pool.stop()
	return result.ErrorOrNil()
}

// SourceRefCount returns how many tracks share the capture source of kind
// keyed by key (the device id, or "display:<id>" for display capture).
// It returns 0 when no such source is registered.
func (r *Registry) SourceRefCount(kind MediaKind, key string) int {
	var n int
	_ = r.guard(func() error {
		switch kind {
		case MediaKindVideo:
			n = r.videoSources.refCount(key)
		case MediaKindAudio:
			n = r.audioSources.refCount(key)
		}
		return nil
	})
	return n
}

// SourceCount returns the number of shared sources of kind.
func (r *Registry) SourceCount(kind MediaKind) int {
	var n int
	_ = r.guard(func() error {
		switch kind {
		case MediaKindVideo:
			n = r.videoSources.len()
		case MediaKindAudio:
			n = r.audioSources.len()
		}
		return nil
	})
	return n
}

// Tracks returns snapshots of every registered track.
func (r *Registry) Tracks() ([]MediaStreamTrack, error) {
	var out []MediaStreamTrack
	err := r.guard(func() error {
		for _, kind := range []MediaKind{MediaKindAudio, MediaKindVideo} {
			for _, t := range r.tracksOf(kind) {
				out = append(out, t.snapshot())
			}
		}
		return nil
	})
	return out, err
}

// PeerConnections returns the ids of live peer connections in issue order.
func (r *Registry) PeerConnections() ([]PeerConnectionID, error) {
	var out []PeerConnectionID
	err := r.guard(func() error {
		for id := range r.peers {
			out = append(out, id)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}
