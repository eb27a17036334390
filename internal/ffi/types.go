package ffi

import (
	"unsafe"
)

// TransceiverDirection matches ShimTransceiverDirection in shim.h.
type TransceiverDirection int32

const (
	TransceiverDirectionSendRecv TransceiverDirection = 0
	TransceiverDirectionSendOnly TransceiverDirection = 1
	TransceiverDirectionRecvOnly TransceiverDirection = 2
	TransceiverDirectionInactive TransceiverDirection = 3
	TransceiverDirectionStopped  TransceiverDirection = 4
)

// MediaKind matches ShimMediaKind in shim.h.
type MediaKind int32

const (
	MediaKindAudio MediaKind = 0
	MediaKindVideo MediaKind = 1
)

// SDPType matches ShimSDPType in shim.h.
type SDPType int32

const (
	SDPTypeOffer    SDPType = 0
	SDPTypePranswer SDPType = 1
	SDPTypeAnswer   SDPType = 2
	SDPTypeRollback SDPType = 3
)

// DeviceKind matches ShimDeviceKind in shim.h.
type DeviceKind int32

const (
	DeviceKindVideoInput  DeviceKind = 0
	DeviceKindAudioInput  DeviceKind = 1
	DeviceKindAudioOutput DeviceKind = 2
)

// peerConnectionConfig matches ShimPeerConnectionConfig in shim.h.
type peerConnectionConfig struct {
	ICEServers           uintptr // *iceServerConfig
	ICEServerCount       int32
	ICECandidatePoolSize int32
	ICETransportPolicy   *byte
	BundlePolicy         *byte
	RTCPMuxPolicy        *byte
	SDPSemantics         *byte
}

// iceServerConfig matches ShimICEServer in shim.h.
type iceServerConfig struct {
	URLs       uintptr // **char
	URLCount   int32
	_          int32
	Username   *byte
	Credential *byte
}

// shimICECandidate matches ShimICECandidate in shim.h.
type shimICECandidate struct {
	Candidate     *byte
	SDPMid        *byte
	SDPMLineIndex int32
}

// shimDeviceInfo matches ShimDeviceInfo in shim.h.
type shimDeviceInfo struct {
	DeviceID [256]byte
	Label    [256]byte
	Kind     int32
}

// shimScreenInfo matches ShimScreenInfo in shim.h.
type shimScreenInfo struct {
	ID       int64
	Title    [256]byte
	IsWindow int32
	_        int32
}

// RTCStats matches ShimRTCStats in shim.h. Sender and receiver queries fill
// the RTP members; the peer connection query fills the transport members.
type RTCStats struct {
	TimestampUs              int64
	BytesSent                int64
	BytesReceived            int64
	PacketsSent              int64
	PacketsReceived          int64
	PacketsLost              int64
	RoundTripTimeMs          float64
	JitterMs                 float64
	AvailableOutgoingBitrate float64
	AvailableIncomingBitrate float64
	CurrentRTTMs             int64
	FramesEncoded            int32
	FramesDecoded            int32
	FramesDropped            int32
	NACKCount                int32
	PLICount                 int32
	FIRCount                 int32
	AudioLevel               float64
	TotalAudioEnergy         float64
	RemotePacketsLost        int64
	RemoteJitterMs           float64
	RemoteRoundTripTimeMs    float64
}

// ByteSlicePtr returns a uintptr to the first element of b, or 0 if empty.
func ByteSlicePtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Int32Ptr returns a uintptr to an int32 variable.
func Int32Ptr(p *int32) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// CString allocates a NUL terminated copy of s. The caller keeps the slice
// alive for as long as C code reads it.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// CStringPtr returns a pointer to a NUL terminated copy of s.
func CStringPtr(s string) *byte {
	return &CString(s)[0]
}

// GoString copies a NUL terminated C string. A nil pointer yields "".
func GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// CStringToGo converts a NUL padded fixed size buffer.
func CStringToGo(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
