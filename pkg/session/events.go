package session

import (
	"github.com/thesyncim/rtcsession/pkg/engine"
)

// PeerConnectionEvent is pushed to the PeerEventSink of a peer connection.
type PeerConnectionEvent interface {
	// EventType returns the event's wire name.
	EventType() string
	PeerID() PeerConnectionID
}

// PeerEventSink receives the events of one peer connection. Send is called
// from engine goroutines and from the registry's workers; it must not block
// for long and must not call back into the Registry synchronously.
type PeerEventSink interface {
	Send(ev PeerConnectionEvent)
}

// PeerEventSinkFunc adapts a function to PeerEventSink.
type PeerEventSinkFunc func(ev PeerConnectionEvent)

func (f PeerEventSinkFunc) Send(ev PeerConnectionEvent) { f(ev) }

// PeerEventChan is a PeerEventSink writing to a channel. Events are dropped
// while the channel is full.
type PeerEventChan chan<- PeerConnectionEvent

func (c PeerEventChan) Send(ev PeerConnectionEvent) {
	select {
	case c <- ev:
	default:
	}
}

type PeerCreated struct {
	Peer PeerConnectionID
}

type ICECandidateDiscovered struct {
	Peer      PeerConnectionID
	Candidate engine.ICECandidate
}

type ICECandidateFailed struct {
	Peer  PeerConnectionID
	Error engine.ICECandidateError
}

type ICEGatheringStateChanged struct {
	Peer  PeerConnectionID
	State engine.ICEGatheringState
}

type ICEConnectionStateChanged struct {
	Peer  PeerConnectionID
	State engine.ICEConnectionState
}

type SignalingStateChanged struct {
	Peer  PeerConnectionID
	State engine.SignalingState
}

type ConnectionStateChanged struct {
	Peer  PeerConnectionID
	State engine.PeerConnectionState
}

type NegotiationNeeded struct {
	Peer PeerConnectionID
}

// TrackAdded reports a remote track registered for a negotiated transceiver.
type TrackAdded struct {
	Peer        PeerConnectionID
	Track       MediaStreamTrack
	Transceiver TransceiverInfo
}

func (e PeerCreated) EventType() string               { return "peer-created" }
func (e ICECandidateDiscovered) EventType() string    { return "ice-candidate" }
func (e ICECandidateFailed) EventType() string        { return "ice-candidate-error" }
func (e ICEGatheringStateChanged) EventType() string  { return "ice-gathering-state-change" }
func (e ICEConnectionStateChanged) EventType() string { return "ice-connection-state-change" }
func (e SignalingStateChanged) EventType() string     { return "signaling-state-change" }
func (e ConnectionStateChanged) EventType() string    { return "connection-state-change" }
func (e NegotiationNeeded) EventType() string         { return "negotiation-needed" }
func (e TrackAdded) EventType() string                { return "track" }

func (e PeerCreated) PeerID() PeerConnectionID               { return e.Peer }
func (e ICECandidateDiscovered) PeerID() PeerConnectionID    { return e.Peer }
func (e ICECandidateFailed) PeerID() PeerConnectionID        { return e.Peer }
func (e ICEGatheringStateChanged) PeerID() PeerConnectionID  { return e.Peer }
func (e ICEConnectionStateChanged) PeerID() PeerConnectionID { return e.Peer }
func (e SignalingStateChanged) PeerID() PeerConnectionID     { return e.Peer }
func (e ConnectionStateChanged) PeerID() PeerConnectionID    { return e.Peer }
func (e NegotiationNeeded) PeerID() PeerConnectionID         { return e.Peer }
func (e TrackAdded) PeerID() PeerConnectionID                { return e.Peer }

// TrackEvent is pushed to the TrackEventSink registered for a track.
type TrackEvent interface {
	EventType() string
	TrackRef() (TrackID, MediaKind, TrackOrigin)
}

// TrackEventSink receives the events of one track.
type TrackEventSink interface {
	Send(ev TrackEvent)
}

// TrackEventSinkFunc adapts a function to TrackEventSink.
type TrackEventSinkFunc func(ev TrackEvent)

func (f TrackEventSinkFunc) Send(ev TrackEvent) { f(ev) }

// TrackEventChan is a TrackEventSink writing to a channel. Events are
// dropped while the channel is full.
type TrackEventChan chan<- TrackEvent

func (c TrackEventChan) Send(ev TrackEvent) {
	select {
	case c <- ev:
	default:
	}
}

// TrackCreated is sent once when an observer is registered.
type TrackCreated struct {
	Track MediaStreamTrack
}

// TrackEnded is sent when the native track ends on its own or when the
// peer a remote track was received from is disposed.
type TrackEnded struct {
	ID     TrackID
	Kind   MediaKind
	Origin TrackOrigin
}

// AudioLevelUpdated carries an audio level in [0, 1].
type AudioLevelUpdated struct {
	ID     TrackID
	Origin TrackOrigin
	Level  float64
}

func (e TrackCreated) EventType() string      { return "track-created" }
func (e TrackEnded) EventType() string        { return "ended" }
func (e AudioLevelUpdated) EventType() string { return "audio-level-updated" }

func (e TrackCreated) TrackRef() (TrackID, MediaKind, TrackOrigin) {
	return e.Track.ID, e.Track.Kind, e.Track.Origin
}

func (e TrackEnded) TrackRef() (TrackID, MediaKind, TrackOrigin) {
	return e.ID, e.Kind, e.Origin
}

func (e AudioLevelUpdated) TrackRef() (TrackID, MediaKind, TrackOrigin) {
	return e.ID, MediaKindAudio, e.Origin
}
