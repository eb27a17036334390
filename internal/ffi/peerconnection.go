package ffi

import (
	"errors"
	"runtime"
	"unsafe"
)

// ICEServer is one STUN or TURN server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Configuration is the Go side of ShimPeerConnectionConfig. Empty policy
// strings select the shim defaults.
type Configuration struct {
	ICEServers           []ICEServer
	ICETransportPolicy   string
	BundlePolicy         string
	RTCPMuxPolicy        string
	ICECandidatePoolSize int
}

// arena keeps Go memory referenced by C structs alive for one call.
type arena struct {
	keep []any
}

func (a *arena) cstr(s string) *byte {
	if s == "" {
		return nil
	}
	b := CString(s)
	a.keep = append(a.keep, b)
	return &b[0]
}

func (a *arena) peerConnectionConfig(cfg Configuration) *peerConnectionConfig {
	servers := make([]iceServerConfig, len(cfg.ICEServers))
	for i, s := range cfg.ICEServers {
		urls := make([]uintptr, len(s.URLs))
		for j, u := range s.URLs {
			urls[j] = uintptr(unsafe.Pointer(a.cstr(u)))
		}
		a.keep = append(a.keep, urls)
		servers[i] = iceServerConfig{
			URLCount:   int32(len(urls)),
			Username:   a.cstr(s.Username),
			Credential: a.cstr(s.Credential),
		}
		if len(urls) > 0 {
			servers[i].URLs = uintptr(unsafe.Pointer(&urls[0]))
		}
	}
	a.keep = append(a.keep, servers)

	c := &peerConnectionConfig{
		ICEServerCount:       int32(len(servers)),
		ICECandidatePoolSize: int32(cfg.ICECandidatePoolSize),
		ICETransportPolicy:   a.cstr(cfg.ICETransportPolicy),
		BundlePolicy:         a.cstr(cfg.BundlePolicy),
		RTCPMuxPolicy:        a.cstr(cfg.RTCPMuxPolicy),
		SDPSemantics:         a.cstr("unified-plan"),
	}
	if len(servers) > 0 {
		c.ICEServers = uintptr(unsafe.Pointer(&servers[0]))
	}
	a.keep = append(a.keep, c)
	return c
}

// CreatePeerConnection creates a native peer connection.
func CreatePeerConnection(cfg Configuration) (uintptr, error) {
	if !IsLoaded() {
		return 0, ErrLibraryNotLoaded
	}
	var a arena
	c := a.peerConnectionConfig(cfg)
	pc := shimPeerConnectionCreate(uintptr(unsafe.Pointer(c)))
	runtime.KeepAlive(a.keep)
	if pc == 0 {
		return 0, ErrInitFailed
	}
	return pc, nil
}

// PeerConnectionClose closes the peer connection. The handle stays valid
// until PeerConnectionDestroy.
func PeerConnectionClose(pc uintptr) {
	if !IsLoaded() {
		return
	}
	shimPeerConnectionClose(pc)
}

// PeerConnectionDestroy frees the peer connection and drops its callbacks.
func PeerConnectionDestroy(pc uintptr) {
	UnregisterPeerConnectionCallbacks(pc)
	if !IsLoaded() {
		return
	}
	shimPeerConnectionDestroy(pc)
}

const (
	initialSDPBuffer = 16 << 10
	maxSDPBuffer     = 1 << 20
)

type describeFunc func(pc, sdpOut uintptr, sdpOutSize int32, outLen uintptr) int32

// describe calls fn with a growing buffer until the description fits.
func describe(pc uintptr, fn describeFunc) (string, error) {
	if !IsLoaded() {
		return "", ErrLibraryNotLoaded
	}
	for size := initialSDPBuffer; size <= maxSDPBuffer; size *= 4 {
		buf := make([]byte, size)
		var n int32
		err := ShimError(fn(pc, ByteSlicePtr(buf), int32(size), Int32Ptr(&n)))
		if errors.Is(err, ErrBufferTooSmall) {
			continue
		}
		if err != nil {
			return "", err
		}
		if n < 0 || int(n) > size {
			return "", ErrInvalidParam
		}
		return string(buf[:n]), nil
	}
	return "", ErrBufferTooSmall
}

// PeerConnectionCreateOffer creates an SDP offer.
func PeerConnectionCreateOffer(pc uintptr) (string, error) {
	return describe(pc, shimPeerConnectionCreateOffer)
}

// PeerConnectionCreateAnswer creates an SDP answer.
func PeerConnectionCreateAnswer(pc uintptr) (string, error) {
	return describe(pc, shimPeerConnectionCreateAnswer)
}

// PeerConnectionSetLocalDescription applies a local description.
func PeerConnectionSetLocalDescription(pc uintptr, typ SDPType, sdp string) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	s := CString(sdp)
	result := shimPeerConnectionSetLocalDescription(pc, int32(typ), ByteSlicePtr(s))
	runtime.KeepAlive(s)
	return ShimError(result)
}

// PeerConnectionSetRemoteDescription applies a remote description.
func PeerConnectionSetRemoteDescription(pc uintptr, typ SDPType, sdp string) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	s := CString(sdp)
	result := shimPeerConnectionSetRemoteDescription(pc, int32(typ), ByteSlicePtr(s))
	runtime.KeepAlive(s)
	return ShimError(result)
}

// PeerConnectionAddICECandidate adds a remote candidate.
func PeerConnectionAddICECandidate(pc uintptr, c ICECandidate) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	cand := CString(c.Candidate)
	mid := CString(c.SDPMid)
	result := shimPeerConnectionAddICECandidate(pc, ByteSlicePtr(cand), ByteSlicePtr(mid), int32(c.SDPMLineIndex))
	runtime.KeepAlive(cand)
	runtime.KeepAlive(mid)
	return ShimError(result)
}

// PeerConnectionSignalingState returns the signaling state, or -1.
func PeerConnectionSignalingState(pc uintptr) int {
	if !IsLoaded() {
		return -1
	}
	return int(shimPeerConnectionSignalingState(pc))
}

// PeerConnectionICEConnectionState returns the ICE connection state, or -1.
func PeerConnectionICEConnectionState(pc uintptr) int {
	if !IsLoaded() {
		return -1
	}
	return int(shimPeerConnectionICEConnectionState(pc))
}

// PeerConnectionICEGatheringState returns the gathering state, or -1.
func PeerConnectionICEGatheringState(pc uintptr) int {
	if !IsLoaded() {
		return -1
	}
	return int(shimPeerConnectionICEGatheringState(pc))
}

// PeerConnectionConnectionState returns the connection state, or -1.
func PeerConnectionConnectionState(pc uintptr) int {
	if !IsLoaded() {
		return -1
	}
	return int(shimPeerConnectionConnectionState(pc))
}

// PeerConnectionAddTransceiver adds a transceiver and returns its handle.
func PeerConnectionAddTransceiver(pc uintptr, kind MediaKind, direction TransceiverDirection) (uintptr, error) {
	if !IsLoaded() {
		return 0, ErrLibraryNotLoaded
	}
	t := shimPeerConnectionAddTransceiver(pc, int32(kind), int32(direction))
	if t == 0 {
		return 0, ErrOperationFailed
	}
	return t, nil
}

const maxTransceivers = 1024

// PeerConnectionGetTransceivers returns the transceiver handles in creation
// order.
func PeerConnectionGetTransceivers(pc uintptr) ([]uintptr, error) {
	if !IsLoaded() {
		return nil, ErrLibraryNotLoaded
	}
	for limit := 16; ; limit *= 2 {
		out := make([]uintptr, limit)
		var count int32
		result := shimPeerConnectionGetTransceivers(pc, uintptr(unsafe.Pointer(&out[0])), int32(limit), Int32Ptr(&count))
		err := ShimError(result)
		if limit < maxTransceivers && (errors.Is(err, ErrBufferTooSmall) || (err == nil && int(count) == limit)) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out[:clampCount(count, limit)], nil
	}
}

// PeerConnectionRestartICE makes the next offer restart ICE.
func PeerConnectionRestartICE(pc uintptr) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	return ShimError(shimPeerConnectionRestartICE(pc))
}

type statsFunc func(handle, out uintptr) int32

func stats(handle uintptr, fn statsFunc) (RTCStats, error) {
	var st RTCStats
	if !IsLoaded() {
		return st, ErrLibraryNotLoaded
	}
	err := ShimError(fn(handle, uintptr(unsafe.Pointer(&st))))
	return st, err
}

// PeerConnectionGetStats returns transport level statistics.
func PeerConnectionGetStats(pc uintptr) (RTCStats, error) {
	return stats(pc, shimPeerConnectionGetStats)
}

// RTPSenderGetStats returns outbound RTP statistics of a sender.
func RTPSenderGetStats(sender uintptr) (RTCStats, error) {
	return stats(sender, shimRTPSenderGetStats)
}

// RTPReceiverGetStats returns inbound RTP statistics of a receiver.
func RTPReceiverGetStats(receiver uintptr) (RTCStats, error) {
	return stats(receiver, shimRTPReceiverGetStats)
}

// TransceiverGetDirection returns the preferred direction.
func TransceiverGetDirection(t uintptr) TransceiverDirection {
	if !IsLoaded() {
		return TransceiverDirectionInactive
	}
	return TransceiverDirection(shimTransceiverGetDirection(t))
}

// TransceiverSetDirection changes the preferred direction.
func TransceiverSetDirection(t uintptr, d TransceiverDirection) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	return ShimError(shimTransceiverSetDirection(t, int32(d)))
}

// TransceiverStop stops the transceiver permanently.
func TransceiverStop(t uintptr) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	return ShimError(shimTransceiverStop(t))
}

// TransceiverMid returns the negotiated mid, or "".
func TransceiverMid(t uintptr) string {
	if !IsLoaded() {
		return ""
	}
	return GoString(unsafe.Pointer(shimTransceiverMid(t)))
}

// TransceiverGetSender returns the sender handle.
func TransceiverGetSender(t uintptr) uintptr {
	if !IsLoaded() {
		return 0
	}
	return shimTransceiverGetSender(t)
}

// TransceiverGetReceiver returns the receiver handle.
func TransceiverGetReceiver(t uintptr) uintptr {
	if !IsLoaded() {
		return 0
	}
	return shimTransceiverGetReceiver(t)
}

// RTPSenderReplaceTrack binds track to the sender. A zero track detaches.
func RTPSenderReplaceTrack(sender, track uintptr) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	return ShimError(shimRTPSenderReplaceTrack(sender, track))
}

// RTPReceiverGetTrack returns the receiver's remote track handle.
func RTPReceiverGetTrack(receiver uintptr) uintptr {
	if !IsLoaded() {
		return 0
	}
	return shimRTPReceiverGetTrack(receiver)
}

// TrackKind returns "audio" or "video".
func TrackKind(track uintptr) string {
	if !IsLoaded() {
		return ""
	}
	return GoString(unsafe.Pointer(shimTrackKind(track)))
}

// TrackID returns the native track id.
func TrackID(track uintptr) string {
	if !IsLoaded() {
		return ""
	}
	return GoString(unsafe.Pointer(shimTrackID(track)))
}

// TrackSetVideoSink routes decoded frames of a remote video track to cb.
func TrackSetVideoSink(track uintptr, cb VideoFrameCallback) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	videoCallbacks.set(track, cb)
	if err := ShimError(shimTrackSetVideoSink(track, videoSinkTrampoline.get(), track)); err != nil {
		videoCallbacks.remove(track)
		return err
	}
	return nil
}

// TrackSetAudioSink routes decoded samples of a remote audio track to cb.
func TrackSetAudioSink(track uintptr, cb AudioFrameCallback) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	audioCallbacks.set(track, cb)
	if err := ShimError(shimTrackSetAudioSink(track, audioSinkTrampoline.get(), track)); err != nil {
		audioCallbacks.remove(track)
		return err
	}
	return nil
}

// TrackRemoveVideoSink detaches the video sink of a track.
func TrackRemoveVideoSink(track uintptr) {
	if IsLoaded() {
		shimTrackRemoveVideoSink(track)
	}
	videoCallbacks.remove(track)
}

// TrackRemoveAudioSink detaches the audio sink of a track.
func TrackRemoveAudioSink(track uintptr) {
	if IsLoaded() {
		shimTrackRemoveAudioSink(track)
	}
	audioCallbacks.remove(track)
}

// PeerCallbacks are the event callbacks of one peer connection. Nil fields
// are not installed.
type PeerCallbacks struct {
	OnSignalingStateChange     StateCallback
	OnICEConnectionStateChange StateCallback
	OnConnectionStateChange    StateCallback
	OnICEGatheringStateChange  StateCallback
	OnICECandidate             ICECandidateCallback
	OnNegotiationNeeded        NegotiationNeededCallback
	OnTrack                    OnTrackCallback
}

// SetPeerConnectionCallbacks installs cbs on pc. The handle doubles as the
// callback ctx.
func SetPeerConnectionCallbacks(pc uintptr, cbs PeerCallbacks) {
	if !IsLoaded() {
		return
	}
	if cbs.OnSignalingStateChange != nil {
		signalingStateCallbacks.set(pc, cbs.OnSignalingStateChange)
		shimPeerConnectionSetOnSignalingStateChange(pc, signalingStateTrampoline.get(), pc)
	}
	if cbs.OnICEConnectionStateChange != nil {
		iceConnectionStateCallbacks.set(pc, cbs.OnICEConnectionStateChange)
		shimPeerConnectionSetOnICEConnectionStateChange(pc, iceConnectionStateTrampoline.get(), pc)
	}
	if cbs.OnConnectionStateChange != nil {
		connectionStateCallbacks.set(pc, cbs.OnConnectionStateChange)
		shimPeerConnectionSetOnConnectionStateChange(pc, connectionStateTrampoline.get(), pc)
	}
	if cbs.OnICEGatheringStateChange != nil {
		iceGatheringStateCallbacks.set(pc, cbs.OnICEGatheringStateChange)
		shimPeerConnectionSetOnICEGatheringStateChange(pc, iceGatheringStateTrampoline.get(), pc)
	}
	if cbs.OnICECandidate != nil {
		iceCandidateCallbacks.set(pc, cbs.OnICECandidate)
		shimPeerConnectionSetOnICECandidate(pc, iceCandidateTrampoline.get(), pc)
	}
	if cbs.OnNegotiationNeeded != nil {
		negotiationNeededCallbacks.set(pc, cbs.OnNegotiationNeeded)
		shimPeerConnectionSetOnNegotiationNeeded(pc, negotiationNeededTrampoline.get(), pc)
	}
	if cbs.OnTrack != nil {
		onTrackCallbacks.set(pc, cbs.OnTrack)
		shimPeerConnectionSetOnTrack(pc, onTrackTrampoline.get(), pc)
	}
}

// UnregisterPeerConnectionCallbacks drops every callback registered for pc.
func UnregisterPeerConnectionCallbacks(pc uintptr) {
	signalingStateCallbacks.remove(pc)
	iceConnectionStateCallbacks.remove(pc)
	connectionStateCallbacks.remove(pc)
	iceGatheringStateCallbacks.remove(pc)
	iceCandidateCallbacks.remove(pc)
	negotiationNeededCallbacks.remove(pc)
	onTrackCallbacks.remove(pc)
}
