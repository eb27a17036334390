package shimengine

import (
	"strconv"

	"github.com/thesyncim/rtcsession/internal/ffi"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

// The shim reports flat structs; they are split into W3C typed records.
// Times arrive in milliseconds and leave in seconds.

func peerRecords(st ffi.RTCStats) []engine.Stats {
	pc := engine.NewStats("RTCPeerConnection", engine.StatsTypePeerConnection, st.TimestampUs)

	transport := engine.NewStats("RTCTransport_0", engine.StatsTypeTransport, st.TimestampUs)
	transport.Values["bytesSent"] = float64(st.BytesSent)
	transport.Values["bytesReceived"] = float64(st.BytesReceived)
	transport.Values["packetsSent"] = float64(st.PacketsSent)
	transport.Values["packetsReceived"] = float64(st.PacketsReceived)

	pair := engine.NewStats("RTCIceCandidatePair_0", engine.StatsTypeCandidatePair, st.TimestampUs)
	pair.Values["bytesSent"] = float64(st.BytesSent)
	pair.Values["bytesReceived"] = float64(st.BytesReceived)
	pair.Values["currentRoundTripTime"] = float64(st.CurrentRTTMs) / 1000
	pair.Values["availableOutgoingBitrate"] = st.AvailableOutgoingBitrate
	pair.Values["availableIncomingBitrate"] = st.AvailableIncomingBitrate
	pair.Attributes["transportId"] = transport.ID
	// The shim only reports the selected pair, and only once it carried
	// traffic.
	if st.BytesReceived > 0 || st.CurrentRTTMs > 0 {
		pair.Attributes["state"] = "succeeded"
		pair.Values["nominated"] = 1
	}

	return []engine.Stats{pc, transport, pair}
}

func outboundRecords(index int, kind engine.MediaKind, mid string, st ffi.RTCStats) []engine.Stats {
	suffix := strconv.Itoa(index)
	out := engine.NewStats("RTCOutboundRTP_"+suffix, engine.StatsTypeOutboundRTP, st.TimestampUs)
	out.Attributes["kind"] = kind.String()
	if mid != "" {
		out.Attributes["mid"] = mid
	}
	out.Values["bytesSent"] = float64(st.BytesSent)
	out.Values["packetsSent"] = float64(st.PacketsSent)
	if kind == engine.MediaKindVideo {
		out.Values["framesEncoded"] = float64(st.FramesEncoded)
		out.Values["nackCount"] = float64(st.NACKCount)
		out.Values["pliCount"] = float64(st.PLICount)
		out.Values["firCount"] = float64(st.FIRCount)
	}

	remote := engine.NewStats("RTCRemoteInboundRTP_"+suffix, engine.StatsTypeRemoteInbound, st.TimestampUs)
	remote.Attributes["kind"] = kind.String()
	remote.Attributes["localId"] = out.ID
	remote.Values["packetsLost"] = float64(st.RemotePacketsLost)
	remote.Values["jitter"] = st.RemoteJitterMs / 1000
	remote.Values["roundTripTime"] = st.RemoteRoundTripTimeMs / 1000

	return []engine.Stats{out, remote}
}

func inboundRecord(index int, kind engine.MediaKind, mid string, st ffi.RTCStats) engine.Stats {
	in := engine.NewStats("RTCInboundRTP_"+strconv.Itoa(index), engine.StatsTypeInboundRTP, st.TimestampUs)
	in.Attributes["kind"] = kind.String()
	if mid != "" {
		in.Attributes["mid"] = mid
	}
	in.Values["bytesReceived"] = float64(st.BytesReceived)
	in.Values["packetsReceived"] = float64(st.PacketsReceived)
	in.Values["packetsLost"] = float64(st.PacketsLost)
	in.Values["jitter"] = st.JitterMs / 1000
	if kind == engine.MediaKindVideo {
		in.Values["framesDecoded"] = float64(st.FramesDecoded)
		in.Values["framesDropped"] = float64(st.FramesDropped)
	} else {
		in.Values["audioLevel"] = st.AudioLevel
		in.Values["totalAudioEnergy"] = st.TotalAudioEnergy
	}
	return in
}
