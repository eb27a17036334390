package ffi

import (
	"strings"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// Shim function pointers, bound by registerFunctions.
var (
	shimVersion          func() uintptr
	shimLibwebrtcVersion func() uintptr

	shimPeerConnectionCreate               func(config uintptr) uintptr
	shimPeerConnectionDestroy              func(pc uintptr)
	shimPeerConnectionClose                func(pc uintptr)
	shimPeerConnectionCreateOffer          func(pc, sdpOut uintptr, sdpOutSize int32, outLen uintptr) int32
	shimPeerConnectionCreateAnswer         func(pc, sdpOut uintptr, sdpOutSize int32, outLen uintptr) int32
	shimPeerConnectionSetLocalDescription  func(pc uintptr, sdpType int32, sdp uintptr) int32
	shimPeerConnectionSetRemoteDescription func(pc uintptr, sdpType int32, sdp uintptr) int32
	shimPeerConnectionAddICECandidate      func(pc, candidate, sdpMid uintptr, sdpMLineIndex int32) int32
	shimPeerConnectionSignalingState       func(pc uintptr) int32
	shimPeerConnectionICEConnectionState   func(pc uintptr) int32
	shimPeerConnectionICEGatheringState    func(pc uintptr) int32
	shimPeerConnectionConnectionState      func(pc uintptr) int32
	shimPeerConnectionAddTransceiver       func(pc uintptr, kind, direction int32) uintptr
	shimPeerConnectionGetTransceivers      func(pc, out uintptr, max int32, outCount uintptr) int32
	shimPeerConnectionRestartICE           func(pc uintptr) int32
	shimPeerConnectionGetStats             func(pc, out uintptr) int32

	shimPeerConnectionSetOnSignalingStateChange     func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICEConnectionStateChange func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnConnectionStateChange    func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICEGatheringStateChange  func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICECandidate             func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnNegotiationNeeded        func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnTrack                    func(pc, cb, ctx uintptr)

	shimTransceiverGetDirection func(t uintptr) int32
	shimTransceiverSetDirection func(t uintptr, direction int32) int32
	shimTransceiverStop         func(t uintptr) int32
	shimTransceiverMid          func(t uintptr) uintptr
	shimTransceiverGetSender    func(t uintptr) uintptr
	shimTransceiverGetReceiver  func(t uintptr) uintptr

	shimRTPSenderReplaceTrack func(sender, track uintptr) int32
	shimRTPSenderGetStats     func(sender, out uintptr) int32
	shimRTPReceiverGetTrack   func(receiver uintptr) uintptr
	shimRTPReceiverGetStats   func(receiver, out uintptr) int32

	shimTrackKind            func(track uintptr) uintptr
	shimTrackID              func(track uintptr) uintptr
	shimTrackSetVideoSink    func(track, cb, ctx uintptr) int32
	shimTrackSetAudioSink    func(track, cb, ctx uintptr) int32
	shimTrackRemoveVideoSink func(track uintptr)
	shimTrackRemoveAudioSink func(track uintptr)

	shimEnumerateDevices func(out uintptr, max int32, outCount uintptr) int32
	shimEnumerateScreens func(out uintptr, max int32, outCount uintptr) int32
)

type binding struct {
	name string
	fptr any
}

func bindings() []binding {
	return []binding{
		{"shim_version", &shimVersion},
		{"shim_libwebrtc_version", &shimLibwebrtcVersion},

		{"shim_peer_connection_create", &shimPeerConnectionCreate},
		{"shim_peer_connection_destroy", &shimPeerConnectionDestroy},
		{"shim_peer_connection_close", &shimPeerConnectionClose},
		{"shim_peer_connection_create_offer", &shimPeerConnectionCreateOffer},
		{"shim_peer_connection_create_answer", &shimPeerConnectionCreateAnswer},
		{"shim_peer_connection_set_local_description", &shimPeerConnectionSetLocalDescription},
		{"shim_peer_connection_set_remote_description", &shimPeerConnectionSetRemoteDescription},
		{"shim_peer_connection_add_ice_candidate", &shimPeerConnectionAddICECandidate},
		{"shim_peer_connection_signaling_state", &shimPeerConnectionSignalingState},
		{"shim_peer_connection_ice_connection_state", &shimPeerConnectionICEConnectionState},
		{"shim_peer_connection_ice_gathering_state", &shimPeerConnectionICEGatheringState},
		{"shim_peer_connection_connection_state", &shimPeerConnectionConnectionState},
		{"shim_peer_connection_add_transceiver", &shimPeerConnectionAddTransceiver},
		{"shim_peer_connection_get_transceivers", &shimPeerConnectionGetTransceivers},
		{"shim_peer_connection_restart_ice", &shimPeerConnectionRestartICE},
		{"shim_peer_connection_get_stats", &shimPeerConnectionGetStats},

		{"shim_peer_connection_set_on_signaling_state_change", &shimPeerConnectionSetOnSignalingStateChange},
		{"shim_peer_connection_set_on_ice_connection_state_change", &shimPeerConnectionSetOnICEConnectionStateChange},
		{"shim_peer_connection_set_on_connection_state_change", &shimPeerConnectionSetOnConnectionStateChange},
		{"shim_peer_connection_set_on_ice_gathering_state_change", &shimPeerConnectionSetOnICEGatheringStateChange},
		{"shim_peer_connection_set_on_ice_candidate", &shimPeerConnectionSetOnICECandidate},
		{"shim_peer_connection_set_on_negotiation_needed", &shimPeerConnectionSetOnNegotiationNeeded},
		{"shim_peer_connection_set_on_track", &shimPeerConnectionSetOnTrack},

		{"shim_transceiver_get_direction", &shimTransceiverGetDirection},
		{"shim_transceiver_set_direction", &shimTransceiverSetDirection},
		{"shim_transceiver_stop", &shimTransceiverStop},
		{"shim_transceiver_mid", &shimTransceiverMid},
		{"shim_transceiver_get_sender", &shimTransceiverGetSender},
		{"shim_transceiver_get_receiver", &shimTransceiverGetReceiver},

		{"shim_rtp_sender_replace_track", &shimRTPSenderReplaceTrack},
		{"shim_rtp_sender_get_stats", &shimRTPSenderGetStats},
		{"shim_rtp_receiver_get_track", &shimRTPReceiverGetTrack},
		{"shim_rtp_receiver_get_stats", &shimRTPReceiverGetStats},

		{"shim_track_kind", &shimTrackKind},
		{"shim_track_id", &shimTrackID},
		{"shim_track_set_video_sink", &shimTrackSetVideoSink},
		{"shim_track_set_audio_sink", &shimTrackSetAudioSink},
		{"shim_track_remove_video_sink", &shimTrackRemoveVideoSink},
		{"shim_track_remove_audio_sink", &shimTrackRemoveAudioSink},

		{"shim_enumerate_devices", &shimEnumerateDevices},
		{"shim_enumerate_screens", &shimEnumerateScreens},
	}
}

// registerFunctions binds every shim export. All symbols are resolved before
// any is registered so a partial library leaves the bindings untouched.
func registerFunctions(handle uintptr) error {
	table := bindings()

	var missing []string
	for _, b := range table {
		if _, err := dlsymLibrary(handle, b.name); err != nil {
			missing = append(missing, b.name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrMissingSymbol, strings.Join(missing, ", "))
	}

	for _, b := range table {
		purego.RegisterLibFunc(b.fptr, handle, b.name)
	}
	return nil
}
