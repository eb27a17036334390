// Package engine defines the capabilities a native WebRTC engine exposes to
// the session layer.
//
// Asynchronous operations take a completion callback. Implementations must
// run the asynchronous operations of one PeerConnection in the order they
// were issued, may complete them on any goroutine, and must invoke each
// completion at most once. Completions may arrive after the caller stopped
// waiting for them.
package engine

import "errors"

var (
	ErrNotSupported = errors.New("not supported by engine")
	ErrClosed       = errors.New("engine object closed")
	ErrForeignTrack = errors.New("track was not created by this engine")
	ErrNoSuchDevice = errors.New("no such device")
)

// Engine creates peer connections, capture sources and local tracks.
type Engine interface {
	NewPeerConnection(cfg Configuration, obs Observer) (PeerConnection, error)

	EnumerateDevices() ([]DeviceInfo, error)
	EnumerateDisplays() ([]DisplayInfo, error)

	NewAudioSource(deviceID string, c AudioConstraints) (AudioSource, error)
	NewVideoSource(deviceID string, c VideoConstraints) (VideoSource, error)
	NewDisplaySource(displayID int64, c VideoConstraints) (VideoSource, error)

	NewAudioTrack(id string, src AudioSource) (AudioTrack, error)
	NewVideoTrack(id string, src VideoSource) (VideoTrack, error)

	// SetOutputWillBeMuted hints that no local audio is currently being sent.
	SetOutputWillBeMuted(muted bool)

	Close() error
}

// PeerConnection is a native peer connection handle.
type PeerConnection interface {
	CreateOffer(opts OfferOptions, done func(SessionDescription, error))
	CreateAnswer(opts AnswerOptions, done func(SessionDescription, error))
	SetLocalDescription(desc SessionDescription, done func(error))
	SetRemoteDescription(desc SessionDescription, done func(error))
	AddICECandidate(c ICECandidate, done func(error))
	GetStats(done func([]Stats, error))

	AddTransceiver(kind MediaKind, init TransceiverInit) (Transceiver, error)
	// Transceivers returns the transceivers in creation order. The same
	// Transceiver value is returned for the same native transceiver.
	Transceivers() ([]Transceiver, error)

	RestartICE() error
	Close() error
}

// Transceiver is a permanent pairing of an RTP sender and receiver.
type Transceiver interface {
	// Mid returns the negotiated media id, or "" before negotiation.
	Mid() string
	Kind() MediaKind
	Direction() TransceiverDirection
	SetDirection(d TransceiverDirection) error
	// Stop ends both directions permanently. Engines may keep the sender's
	// track; callers detach it first.
	Stop() error
	Stopped() bool
	Sender() Sender
	Receiver() Receiver
}

// Sender is the sending half of a transceiver.
type Sender interface {
	// Track returns the bound track, or nil.
	Track() Track
	// ReplaceTrack binds t, or detaches the current track when t is nil.
	ReplaceTrack(t Track) error
}

// Receiver is the receiving half of a transceiver.
type Receiver interface {
	Track() Track
}

// Source is a capture source shared by any number of tracks.
type Source interface {
	DeviceID() string
	// Release frees the underlying device. Called once, after the last
	// track using the source is gone.
	Release()
}

// AudioSource produces audio for local tracks.
type AudioSource interface {
	Source
	Constraints() AudioConstraints
}

// VideoSource produces video for local tracks.
type VideoSource interface {
	Source
	Constraints() VideoConstraints
}

// Track is a native media track.
type Track interface {
	ID() string
	Kind() MediaKind
	Enabled() bool
	SetEnabled(enabled bool)
	State() TrackState
	// OnEnded adds fn to the functions run when the track ends on its own.
	OnEnded(fn func())
	Stop()
}

// VideoSink receives decoded frames of a video track.
type VideoSink interface {
	OnFrame(f *VideoFrame)
}

// VideoTrack is a native video track.
type VideoTrack interface {
	Track
	AddSink(s VideoSink)
	RemoveSink(s VideoSink)
}

// AudioTrack is a native audio track.
type AudioTrack interface {
	Track
	// SetAudioLevelHandler installs fn to receive levels in [0, 1].
	// A nil fn stops level reporting.
	SetAudioLevelHandler(fn func(level float64))
}

// Observer receives events from a PeerConnection. Methods are called on
// engine-owned goroutines and must not block.
type Observer interface {
	OnSignalingStateChange(s SignalingState)
	OnICEConnectionStateChange(s ICEConnectionState)
	OnConnectionStateChange(s PeerConnectionState)
	OnICEGatheringStateChange(s ICEGatheringState)
	OnICECandidate(c ICECandidate)
	OnICECandidateError(e ICECandidateError)
	OnNegotiationNeeded()
	OnTrack(t Transceiver)
}

// NopObserver ignores every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnSignalingStateChange(SignalingState)         {}
func (NopObserver) OnICEConnectionStateChange(ICEConnectionState) {}
func (NopObserver) OnConnectionStateChange(PeerConnectionState)   {}
func (NopObserver) OnICEGatheringStateChange(ICEGatheringState)   {}
func (NopObserver) OnICECandidate(ICECandidate)                   {}
func (NopObserver) OnICECandidateError(ICECandidateError)         {}
func (NopObserver) OnNegotiationNeeded()                          {}
func (NopObserver) OnTrack(Transceiver)                           {}
