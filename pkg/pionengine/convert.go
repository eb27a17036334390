package pionengine

import (
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

func toPionConfiguration(cfg engine.Configuration) (webrtc.Configuration, error) {
	out := webrtc.Configuration{
		ICECandidatePoolSize: uint8(cfg.ICECandidatePoolSize),
	}
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, server)
	}

	switch cfg.ICETransportPolicy {
	case "", "all":
		out.ICETransportPolicy = webrtc.ICETransportPolicyAll
	case "relay":
		out.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	default:
		return out, errors.Errorf("unknown ice transport policy %q", cfg.ICETransportPolicy)
	}

	switch cfg.BundlePolicy {
	case "", "balanced":
		out.BundlePolicy = webrtc.BundlePolicyBalanced
	case "max-compat":
		out.BundlePolicy = webrtc.BundlePolicyMaxCompat
	case "max-bundle":
		out.BundlePolicy = webrtc.BundlePolicyMaxBundle
	default:
		return out, errors.Errorf("unknown bundle policy %q", cfg.BundlePolicy)
	}

	switch cfg.RTCPMuxPolicy {
	case "", "require":
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyRequire
	case "negotiate":
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyNegotiate
	default:
		return out, errors.Errorf("unknown rtcp mux policy %q", cfg.RTCPMuxPolicy)
	}
	return out, nil
}

func toPionSDPType(t engine.SDPType) webrtc.SDPType {
	switch t {
	case engine.SDPTypePranswer:
		return webrtc.SDPTypePranswer
	case engine.SDPTypeAnswer:
		return webrtc.SDPTypeAnswer
	case engine.SDPTypeRollback:
		return webrtc.SDPTypeRollback
	default:
		return webrtc.SDPTypeOffer
	}
}

func fromPionSDPType(t webrtc.SDPType) engine.SDPType {
	switch t {
	case webrtc.SDPTypePranswer:
		return engine.SDPTypePranswer
	case webrtc.SDPTypeAnswer:
		return engine.SDPTypeAnswer
	case webrtc.SDPTypeRollback:
		return engine.SDPTypeRollback
	default:
		return engine.SDPTypeOffer
	}
}

func fromPionDescription(d webrtc.SessionDescription) engine.SessionDescription {
	return engine.SessionDescription{Type: fromPionSDPType(d.Type), SDP: d.SDP}
}

func toPionKind(k engine.MediaKind) webrtc.RTPCodecType {
	if k == engine.MediaKindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func fromPionKind(k webrtc.RTPCodecType) engine.MediaKind {
	if k == webrtc.RTPCodecTypeAudio {
		return engine.MediaKindAudio
	}
	return engine.MediaKindVideo
}

func toPionDirection(d engine.TransceiverDirection) (webrtc.RTPTransceiverDirection, error) {
	switch d {
	case engine.TransceiverDirectionSendRecv:
		return webrtc.RTPTransceiverDirectionSendrecv, nil
	case engine.TransceiverDirectionSendOnly:
		return webrtc.RTPTransceiverDirectionSendonly, nil
	case engine.TransceiverDirectionRecvOnly:
		return webrtc.RTPTransceiverDirectionRecvonly, nil
	case engine.TransceiverDirectionInactive:
		return webrtc.RTPTransceiverDirectionInactive, nil
	default:
		return webrtc.RTPTransceiverDirectionUnknown, errors.Wrapf(engine.ErrNotSupported, "direction %s", d)
	}
}

func fromPionDirection(d webrtc.RTPTransceiverDirection) engine.TransceiverDirection {
	switch d {
	case webrtc.RTPTransceiverDirectionSendonly:
		return engine.TransceiverDirectionSendOnly
	case webrtc.RTPTransceiverDirectionRecvonly:
		return engine.TransceiverDirectionRecvOnly
	case webrtc.RTPTransceiverDirectionInactive:
		return engine.TransceiverDirectionInactive
	default:
		return engine.TransceiverDirectionSendRecv
	}
}

func fromPionSignalingState(s webrtc.SignalingState) engine.SignalingState {
	switch s {
	case webrtc.SignalingStateHaveLocalOffer:
		return engine.SignalingStateHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return engine.SignalingStateHaveRemoteOffer
	case webrtc.SignalingStateHaveLocalPranswer:
		return engine.SignalingStateHaveLocalPranswer
	case webrtc.SignalingStateHaveRemotePranswer:
		return engine.SignalingStateHaveRemotePranswer
	case webrtc.SignalingStateClosed:
		return engine.SignalingStateClosed
	default:
		return engine.SignalingStateStable
	}
}

func fromPionICEConnectionState(s webrtc.ICEConnectionState) engine.ICEConnectionState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return engine.ICEConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return engine.ICEConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return engine.ICEConnectionStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return engine.ICEConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return engine.ICEConnectionStateFailed
	case webrtc.ICEConnectionStateClosed:
		return engine.ICEConnectionStateClosed
	default:
		return engine.ICEConnectionStateNew
	}
}

func fromPionConnectionState(s webrtc.PeerConnectionState) engine.PeerConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return engine.PeerConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return engine.PeerConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return engine.PeerConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return engine.PeerConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return engine.PeerConnectionStateClosed
	default:
		return engine.PeerConnectionStateNew
	}
}

func toPionCandidate(c engine.ICECandidate) webrtc.ICECandidateInit {
	init := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	idx := c.SDPMLineIndex
	init.SDPMLineIndex = &idx
	if c.UsernameFragment != "" {
		ufrag := c.UsernameFragment
		init.UsernameFragment = &ufrag
	}
	return init
}

func fromPionCandidate(init webrtc.ICECandidateInit) engine.ICECandidate {
	c := engine.ICECandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = *init.SDPMLineIndex
	}
	if init.UsernameFragment != nil {
		c.UsernameFragment = *init.UsernameFragment
	}
	return c
}
