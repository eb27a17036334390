package shimengine

import "github.com/thesyncim/rtcsession/internal/ffi"

// native is the part of the shim the engine drives. Handles are opaque
// values owned by the shim.
type native interface {
	CreatePeerConnection(cfg ffi.Configuration) (uintptr, error)
	SetCallbacks(pc uintptr, cbs ffi.PeerCallbacks)
	ClosePeerConnection(pc uintptr)
	DestroyPeerConnection(pc uintptr)

	CreateOffer(pc uintptr) (string, error)
	CreateAnswer(pc uintptr) (string, error)
	SetLocalDescription(pc uintptr, typ ffi.SDPType, sdp string) error
	SetRemoteDescription(pc uintptr, typ ffi.SDPType, sdp string) error
	AddICECandidate(pc uintptr, c ffi.ICECandidate) error
	RestartICE(pc uintptr) error

	AddTransceiver(pc uintptr, kind ffi.MediaKind, dir ffi.TransceiverDirection) (uintptr, error)
	Transceivers(pc uintptr) ([]uintptr, error)
	TransceiverMid(t uintptr) string
	TransceiverDirection(t uintptr) ffi.TransceiverDirection
	SetTransceiverDirection(t uintptr, d ffi.TransceiverDirection) error
	StopTransceiver(t uintptr) error
	TransceiverSender(t uintptr) uintptr
	TransceiverReceiver(t uintptr) uintptr

	ReplaceTrack(sender, track uintptr) error
	ReceiverTrack(receiver uintptr) uintptr
	TrackKind(track uintptr) string
	TrackID(track uintptr) string
	SetAudioSink(track uintptr, cb ffi.AudioFrameCallback) error
	SetVideoSink(track uintptr, cb ffi.VideoFrameCallback) error
	RemoveAudioSink(track uintptr)
	RemoveVideoSink(track uintptr)

	PeerStats(pc uintptr) (ffi.RTCStats, error)
	SenderStats(sender uintptr) (ffi.RTCStats, error)
	ReceiverStats(receiver uintptr) (ffi.RTCStats, error)

	EnumerateDevices() ([]ffi.DeviceInfo, error)
	EnumerateScreens() ([]ffi.ScreenInfo, error)
}

// library forwards to the loaded shim.
type library struct{}

var _ native = library{}

func (library) CreatePeerConnection(cfg ffi.Configuration) (uintptr, error) {
	return ffi.CreatePeerConnection(cfg)
}

func (library) SetCallbacks(pc uintptr, cbs ffi.PeerCallbacks) {
	ffi.SetPeerConnectionCallbacks(pc, cbs)
}

func (library) ClosePeerConnection(pc uintptr)   { ffi.PeerConnectionClose(pc) }
func (library) DestroyPeerConnection(pc uintptr) { ffi.PeerConnectionDestroy(pc) }

func (library) CreateOffer(pc uintptr) (string, error)  { return ffi.PeerConnectionCreateOffer(pc) }
func (library) CreateAnswer(pc uintptr) (string, error) { return ffi.PeerConnectionCreateAnswer(pc) }

func (library) SetLocalDescription(pc uintptr, typ ffi.SDPType, sdp string) error {
	return ffi.PeerConnectionSetLocalDescription(pc, typ, sdp)
}

func (library) SetRemoteDescription(pc uintptr, typ ffi.SDPType, sdp string) error {
	return ffi.PeerConnectionSetRemoteDescription(pc, typ, sdp)
}

func (library) AddICECandidate(pc uintptr, c ffi.ICECandidate) error {
	return ffi.PeerConnectionAddICECandidate(pc, c)
}

func (library) RestartICE(pc uintptr) error { return ffi.PeerConnectionRestartICE(pc) }

func (library) AddTransceiver(pc uintptr, kind ffi.MediaKind, dir ffi.TransceiverDirection) (uintptr, error) {
	return ffi.PeerConnectionAddTransceiver(pc, kind, dir)
}

func (library) Transceivers(pc uintptr) ([]uintptr, error) {
	return ffi.PeerConnectionGetTransceivers(pc)
}

func (library) TransceiverMid(t uintptr) string { return ffi.TransceiverMid(t) }

func (library) TransceiverDirection(t uintptr) ffi.TransceiverDirection {
	return ffi.TransceiverGetDirection(t)
}

func (library) SetTransceiverDirection(t uintptr, d ffi.TransceiverDirection) error {
	return ffi.TransceiverSetDirection(t, d)
}

func (library) StopTransceiver(t uintptr) error       { return ffi.TransceiverStop(t) }
func (library) TransceiverSender(t uintptr) uintptr   { return ffi.TransceiverGetSender(t) }
func (library) TransceiverReceiver(t uintptr) uintptr { return ffi.TransceiverGetReceiver(t) }

func (library) ReplaceTrack(sender, track uintptr) error {
	return ffi.RTPSenderReplaceTrack(sender, track)
}

func (library) ReceiverTrack(receiver uintptr) uintptr { return ffi.RTPReceiverGetTrack(receiver) }
func (library) TrackKind(track uintptr) string         { return ffi.TrackKind(track) }
func (library) TrackID(track uintptr) string           { return ffi.TrackID(track) }

func (library) SetAudioSink(track uintptr, cb ffi.AudioFrameCallback) error {
	return ffi.TrackSetAudioSink(track, cb)
}

func (library) SetVideoSink(track uintptr, cb ffi.VideoFrameCallback) error {
	return ffi.TrackSetVideoSink(track, cb)
}

func (library) RemoveAudioSink(track uintptr) { ffi.TrackRemoveAudioSink(track) }
func (library) RemoveVideoSink(track uintptr) { ffi.TrackRemoveVideoSink(track) }

func (library) PeerStats(pc uintptr) (ffi.RTCStats, error) { return ffi.PeerConnectionGetStats(pc) }

func (library) SenderStats(sender uintptr) (ffi.RTCStats, error) {
	return ffi.RTPSenderGetStats(sender)
}

func (library) ReceiverStats(receiver uintptr) (ffi.RTCStats, error) {
	return ffi.RTPReceiverGetStats(receiver)
}

func (library) EnumerateDevices() ([]ffi.DeviceInfo, error) { return ffi.EnumerateDevices() }
func (library) EnumerateScreens() ([]ffi.ScreenInfo, error) { return ffi.EnumerateScreens() }
