package engine

// Enum names follow the W3C WebRTC spellings. Values outside a table print
// as "unknown".

func nameOf(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "unknown"
	}
	return names[i]
}

func parseName[T ~int](names []string, s string) (T, bool) {
	for i, n := range names {
		if n == s {
			return T(i), true
		}
	}
	return 0, false
}

// MediaKind is the kind of media carried by a track or transceiver.
type MediaKind int

const (
	MediaKindAudio MediaKind = iota
	MediaKindVideo
)

var mediaKindNames = []string{"audio", "video"}

func (k MediaKind) String() string { return nameOf(mediaKindNames, int(k)) }

// ParseMediaKind parses "audio" or "video".
func ParseMediaKind(s string) (MediaKind, bool) { return parseName[MediaKind](mediaKindNames, s) }

type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

var signalingStateNames = []string{
	"stable", "have-local-offer", "have-remote-offer",
	"have-local-pranswer", "have-remote-pranswer", "closed",
}

func (s SignalingState) String() string { return nameOf(signalingStateNames, int(s)) }

type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
)

var iceConnectionStateNames = []string{
	"new", "checking", "connected", "completed", "disconnected", "failed", "closed",
}

func (s ICEConnectionState) String() string { return nameOf(iceConnectionStateNames, int(s)) }

type ICEGatheringState int

const (
	ICEGatheringStateNew ICEGatheringState = iota
	ICEGatheringStateGathering
	ICEGatheringStateComplete
)

var iceGatheringStateNames = []string{"new", "gathering", "complete"}

func (s ICEGatheringState) String() string { return nameOf(iceGatheringStateNames, int(s)) }

// PeerConnectionState aggregates the ICE and DTLS transport states.
type PeerConnectionState int

const (
	PeerConnectionStateNew PeerConnectionState = iota
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
)

var peerConnectionStateNames = []string{
	"new", "connecting", "connected", "disconnected", "failed", "closed",
}

func (s PeerConnectionState) String() string { return nameOf(peerConnectionStateNames, int(s)) }

type SDPType int

const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

var sdpTypeNames = []string{"offer", "pranswer", "answer", "rollback"}

func (t SDPType) String() string { return nameOf(sdpTypeNames, int(t)) }

// ParseSDPType parses the name of a description type.
func ParseSDPType(s string) (SDPType, bool) { return parseName[SDPType](sdpTypeNames, s) }

type TransceiverDirection int

const (
	TransceiverDirectionSendRecv TransceiverDirection = iota
	TransceiverDirectionSendOnly
	TransceiverDirectionRecvOnly
	TransceiverDirectionInactive
	TransceiverDirectionStopped
)

var directionNames = []string{"sendrecv", "sendonly", "recvonly", "inactive", "stopped"}

func (d TransceiverDirection) String() string { return nameOf(directionNames, int(d)) }

// ParseTransceiverDirection parses the name of a direction.
func ParseTransceiverDirection(s string) (TransceiverDirection, bool) {
	return parseName[TransceiverDirection](directionNames, s)
}

// Sends reports whether the direction includes sending.
func (d TransceiverDirection) Sends() bool {
	return d == TransceiverDirectionSendRecv || d == TransceiverDirectionSendOnly
}

// Receives reports whether the direction includes receiving.
func (d TransceiverDirection) Receives() bool {
	return d == TransceiverDirectionSendRecv || d == TransceiverDirectionRecvOnly
}

// WithSend returns the direction with its send half set to send.
// A stopped direction is returned unchanged.
func (d TransceiverDirection) WithSend(send bool) TransceiverDirection {
	if d == TransceiverDirectionStopped {
		return d
	}
	return directionOf(send, d.Receives())
}

// WithRecv returns the direction with its receive half set to recv.
// A stopped direction is returned unchanged.
func (d TransceiverDirection) WithRecv(recv bool) TransceiverDirection {
	if d == TransceiverDirectionStopped {
		return d
	}
	return directionOf(d.Sends(), recv)
}

func directionOf(send, recv bool) TransceiverDirection {
	switch {
	case send && recv:
		return TransceiverDirectionSendRecv
	case send:
		return TransceiverDirectionSendOnly
	case recv:
		return TransceiverDirectionRecvOnly
	default:
		return TransceiverDirectionInactive
	}
}

// TrackState is the readyState of a media track.
type TrackState int

const (
	TrackStateLive TrackState = iota
	TrackStateEnded
)

func (s TrackState) String() string { return nameOf([]string{"live", "ended"}, int(s)) }

type DeviceKind int

const (
	DeviceKindVideoInput DeviceKind = iota
	DeviceKindAudioInput
	DeviceKindAudioOutput
)

var deviceKindNames = []string{"videoinput", "audioinput", "audiooutput"}

func (k DeviceKind) String() string { return nameOf(deviceKindNames, int(k)) }

// DeviceInfo describes a capture or playout device.
type DeviceInfo struct {
	DeviceID string
	Label    string
	Kind     DeviceKind
}

// DisplayInfo describes a screen or window available for capture.
type DisplayInfo struct {
	ID       int64
	Title    string
	IsWindow bool
}

// SessionDescription represents an SDP session description.
// SDP is passed through verbatim.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

// ICECandidate represents an ICE candidate.
type ICECandidate struct {
	Candidate        string
	SDPMid           string
	SDPMLineIndex    uint16
	UsernameFragment string
}

// ICECandidateError is reported when gathering against a STUN/TURN server fails.
type ICECandidateError struct {
	Address   string
	Port      int
	URL       string
	ErrorCode int
	ErrorText string
}

// ICEServer represents an ICE server configuration.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Configuration for a peer connection.
type Configuration struct {
	ICEServers           []ICEServer
	ICETransportPolicy   string // "all" or "relay"
	BundlePolicy         string // "balanced", "max-compat", "max-bundle"
	RTCPMuxPolicy        string // "require" or "negotiate"
	ICECandidatePoolSize int
}

// OfferOptions controls offer creation.
type OfferOptions struct {
	ICERestart             bool
	VoiceActivityDetection bool
}

// AnswerOptions controls answer creation.
type AnswerOptions struct {
	VoiceActivityDetection bool
}

// TransceiverInit configures a new transceiver.
type TransceiverInit struct {
	Direction TransceiverDirection
	StreamIDs []string
}

// AudioConstraints configures an audio capture source.
type AudioConstraints struct {
	EchoCancellation bool
	AutoGainControl  bool
	NoiseSuppression bool
	SampleRate       int
	Channels         int
}

// VideoConstraints configures a video capture source.
type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate float64
}
