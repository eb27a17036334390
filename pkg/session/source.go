package session

import (
	"github.com/thesyncim/rtcsession/pkg/engine"
)

// sharedSource is a native capture source shared by every local track
// drawing from the same device. refs counts those tracks; the registry
// entry itself is not a reference.
type sharedSource[S engine.Source] struct {
	key    string
	native S
	refs   int
}

// sourceRegistry holds the shared sources of one media kind keyed by device.
// All methods must be called with the registry lock held.
type sourceRegistry[S engine.Source] struct {
	kind    MediaKind
	entries map[string]*sharedSource[S]
	m       *metrics
}

func newSourceRegistry[S engine.Source](kind MediaKind, m *metrics) *sourceRegistry[S] {
	return &sourceRegistry[S]{
		kind:    kind,
		entries: make(map[string]*sharedSource[S]),
		m:       m,
	}
}

// acquire returns the source for key with one more reference, creating it
// through create if none exists.
func (r *sourceRegistry[S]) acquire(key string, create func() (S, error)) (*sharedSource[S], error) {
	if s, ok := r.entries[key]; ok {
		s.refs++
		return s, nil
	}

	native, err := create()
	if err != nil {
		return nil, err
	}
	s := &sharedSource[S]{key: key, native: native, refs: 1}
	r.entries[key] = s
	r.m.sources.WithLabelValues(r.kind.String()).Inc()
	return s, nil
}

// retain adds a reference for a cloned track.
func (r *sourceRegistry[S]) retain(s *sharedSource[S]) {
	s.refs++
}

// release drops one reference. The last release evicts the source and
// frees the device. It reports whether the source was evicted.
func (r *sourceRegistry[S]) release(s *sharedSource[S]) bool {
	s.refs--
	if s.refs > 0 {
		return false
	}
	if r.entries[s.key] == s {
		delete(r.entries, s.key)
		r.m.sources.WithLabelValues(r.kind.String()).Dec()
	}
	s.native.Release()
	return true
}

func (r *sourceRegistry[S]) refCount(key string) int {
	if s, ok := r.entries[key]; ok {
		return s.refs
	}
	return 0
}

func (r *sourceRegistry[S]) len() int {
	return len(r.entries)
}
