package shimengine

import (
	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/internal/ffi"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

var (
	iceTransportPolicies = map[string]bool{"": true, "all": true, "relay": true}
	bundlePolicies       = map[string]bool{"": true, "balanced": true, "max-compat": true, "max-bundle": true}
	rtcpMuxPolicies      = map[string]bool{"": true, "require": true, "negotiate": true}
)

func toShimConfiguration(cfg engine.Configuration) (ffi.Configuration, error) {
	switch {
	case !iceTransportPolicies[cfg.ICETransportPolicy]:
		return ffi.Configuration{}, errors.Errorf("unknown ice transport policy %q", cfg.ICETransportPolicy)
	case !bundlePolicies[cfg.BundlePolicy]:
		return ffi.Configuration{}, errors.Errorf("unknown bundle policy %q", cfg.BundlePolicy)
	case !rtcpMuxPolicies[cfg.RTCPMuxPolicy]:
		return ffi.Configuration{}, errors.Errorf("unknown rtcp mux policy %q", cfg.RTCPMuxPolicy)
	}

	out := ffi.Configuration{
		ICETransportPolicy:   cfg.ICETransportPolicy,
		BundlePolicy:         cfg.BundlePolicy,
		RTCPMuxPolicy:        cfg.RTCPMuxPolicy,
		ICECandidatePoolSize: cfg.ICECandidatePoolSize,
	}
	for _, s := range cfg.ICEServers {
		out.ICEServers = append(out.ICEServers, ffi.ICEServer{
			URLs:       append([]string(nil), s.URLs...),
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out, nil
}

func toShimSDPType(t engine.SDPType) ffi.SDPType {
	switch t {
	case engine.SDPTypePranswer:
		return ffi.SDPTypePranswer
	case engine.SDPTypeAnswer:
		return ffi.SDPTypeAnswer
	case engine.SDPTypeRollback:
		return ffi.SDPTypeRollback
	default:
		return ffi.SDPTypeOffer
	}
}

func toShimKind(k engine.MediaKind) ffi.MediaKind {
	if k == engine.MediaKindVideo {
		return ffi.MediaKindVideo
	}
	return ffi.MediaKindAudio
}

func fromShimKind(s string) (engine.MediaKind, bool) {
	return engine.ParseMediaKind(s)
}

func toShimDirection(d engine.TransceiverDirection) ffi.TransceiverDirection {
	switch d {
	case engine.TransceiverDirectionSendOnly:
		return ffi.TransceiverDirectionSendOnly
	case engine.TransceiverDirectionRecvOnly:
		return ffi.TransceiverDirectionRecvOnly
	case engine.TransceiverDirectionInactive:
		return ffi.TransceiverDirectionInactive
	case engine.TransceiverDirectionStopped:
		return ffi.TransceiverDirectionStopped
	default:
		return ffi.TransceiverDirectionSendRecv
	}
}

func fromShimDirection(d ffi.TransceiverDirection) engine.TransceiverDirection {
	switch d {
	case ffi.TransceiverDirectionSendOnly:
		return engine.TransceiverDirectionSendOnly
	case ffi.TransceiverDirectionRecvOnly:
		return engine.TransceiverDirectionRecvOnly
	case ffi.TransceiverDirectionInactive:
		return engine.TransceiverDirectionInactive
	case ffi.TransceiverDirectionStopped:
		return engine.TransceiverDirectionStopped
	default:
		return engine.TransceiverDirectionSendRecv
	}
}

// The shim reports libwebrtc's native enum values.

func fromShimSignalingState(s int) (engine.SignalingState, bool) {
	switch s {
	case 0:
		return engine.SignalingStateStable, true
	case 1:
		return engine.SignalingStateHaveLocalOffer, true
	case 2:
		return engine.SignalingStateHaveLocalPranswer, true
	case 3:
		return engine.SignalingStateHaveRemoteOffer, true
	case 4:
		return engine.SignalingStateHaveRemotePranswer, true
	case 5:
		return engine.SignalingStateClosed, true
	default:
		return 0, false
	}
}

func fromShimICEConnectionState(s int) (engine.ICEConnectionState, bool) {
	switch s {
	case 0:
		return engine.ICEConnectionStateNew, true
	case 1:
		return engine.ICEConnectionStateChecking, true
	case 2:
		return engine.ICEConnectionStateConnected, true
	case 3:
		return engine.ICEConnectionStateCompleted, true
	case 4:
		return engine.ICEConnectionStateFailed, true
	case 5:
		return engine.ICEConnectionStateDisconnected, true
	case 6:
		return engine.ICEConnectionStateClosed, true
	default:
		return 0, false
	}
}

func fromShimConnectionState(s int) (engine.PeerConnectionState, bool) {
	if s < 0 || s > int(engine.PeerConnectionStateClosed) {
		return 0, false
	}
	return engine.PeerConnectionState(s), true
}

func fromShimGatheringState(s int) (engine.ICEGatheringState, bool) {
	if s < 0 || s > int(engine.ICEGatheringStateComplete) {
		return 0, false
	}
	return engine.ICEGatheringState(s), true
}

func fromShimCandidate(c ffi.ICECandidate) engine.ICECandidate {
	idx := c.SDPMLineIndex
	if idx < 0 {
		idx = 0
	}
	return engine.ICECandidate{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: uint16(idx),
	}
}

func toShimCandidate(c engine.ICECandidate) ffi.ICECandidate {
	return ffi.ICECandidate{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: int(c.SDPMLineIndex),
	}
}

func fromShimDevice(d ffi.DeviceInfo) (engine.DeviceInfo, bool) {
	var kind engine.DeviceKind
	switch d.Kind {
	case ffi.DeviceKindVideoInput:
		kind = engine.DeviceKindVideoInput
	case ffi.DeviceKindAudioInput:
		kind = engine.DeviceKindAudioInput
	case ffi.DeviceKindAudioOutput:
		kind = engine.DeviceKindAudioOutput
	default:
		return engine.DeviceInfo{}, false
	}
	return engine.DeviceInfo{DeviceID: d.DeviceID, Label: d.Label, Kind: kind}, true
}
