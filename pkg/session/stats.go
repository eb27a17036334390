package session

import (
	"time"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// StatsReport is a typed view of an engine stats report. Records of types
// without a typed form are kept in Other.
type StatsReport struct {
	Timestamp      time.Time
	Inbound        []InboundRTPStats
	Outbound       []OutboundRTPStats
	RemoteInbound  []RemoteInboundRTPStats
	CandidatePairs []CandidatePairStats
	Transports     []TransportStats
	Other          []engine.Stats
}

type InboundRTPStats struct {
	ID               string
	Kind             string
	Mid              string
	SSRC             uint32
	PacketsReceived  uint64
	PacketsLost      int64
	BytesReceived    uint64
	Jitter           float64
	FramesDecoded    uint32
	FramesDropped    uint32
	AudioLevel       float64
	TotalAudioEnergy float64
}

type OutboundRTPStats struct {
	ID             string
	Kind           string
	Mid            string
	SSRC           uint32
	PacketsSent    uint64
	BytesSent      uint64
	FramesEncoded  uint32
	KeyFramesSent  uint32
	NACKCount      uint32
	PLICount       uint32
	FIRCount       uint32
	TargetBitrate  float64
	QualityLimited string
}

type RemoteInboundRTPStats struct {
	ID            string
	Kind          string
	SSRC          uint32
	PacketsLost   int64
	Jitter        float64
	RoundTripTime time.Duration
}

type CandidatePairStats struct {
	ID                       string
	State                    string
	Nominated                bool
	BytesSent                uint64
	BytesReceived            uint64
	CurrentRoundTripTime     time.Duration
	AvailableOutgoingBitrate float64
	AvailableIncomingBitrate float64
}

type TransportStats struct {
	ID            string
	BytesSent     uint64
	BytesReceived uint64
	DTLSState     string
	ICEState      string
}

func newStatsReport(stats []engine.Stats) StatsReport {
	var report StatsReport
	var latest int64
	for _, s := range stats {
		if s.TimestampUs > latest {
			latest = s.TimestampUs
		}
		v := statsValues(s)
		switch s.Type {
		case engine.StatsTypeInboundRTP:
			report.Inbound = append(report.Inbound, InboundRTPStats{
				ID:               s.ID,
				Kind:             s.Attributes["kind"],
				Mid:              s.Attributes["mid"],
				SSRC:             uint32(v.num("ssrc")),
				PacketsReceived:  uint64(v.num("packetsReceived")),
				PacketsLost:      int64(v.num("packetsLost")),
				BytesReceived:    uint64(v.num("bytesReceived")),
				Jitter:           v.num("jitter"),
				FramesDecoded:    uint32(v.num("framesDecoded")),
				FramesDropped:    uint32(v.num("framesDropped")),
				AudioLevel:       v.num("audioLevel"),
				TotalAudioEnergy: v.num("totalAudioEnergy"),
			})
		case engine.StatsTypeOutboundRTP:
			report.Outbound = append(report.Outbound, OutboundRTPStats{
				ID:             s.ID,
				Kind:           s.Attributes["kind"],
				Mid:            s.Attributes["mid"],
				SSRC:           uint32(v.num("ssrc")),
				PacketsSent:    uint64(v.num("packetsSent")),
				BytesSent:      uint64(v.num("bytesSent")),
				FramesEncoded:  uint32(v.num("framesEncoded")),
				KeyFramesSent:  uint32(v.num("keyFramesEncoded")),
				NACKCount:      uint32(v.num("nackCount")),
				PLICount:       uint32(v.num("pliCount")),
				FIRCount:       uint32(v.num("firCount")),
				TargetBitrate:  v.num("targetBitrate"),
				QualityLimited: s.Attributes["qualityLimitationReason"],
			})
		case engine.StatsTypeRemoteInbound:
			report.RemoteInbound = append(report.RemoteInbound, RemoteInboundRTPStats{
				ID:            s.ID,
				Kind:          s.Attributes["kind"],
				SSRC:          uint32(v.num("ssrc")),
				PacketsLost:   int64(v.num("packetsLost")),
				Jitter:        v.num("jitter"),
				RoundTripTime: v.seconds("roundTripTime"),
			})
		case engine.StatsTypeCandidatePair:
			report.CandidatePairs = append(report.CandidatePairs, CandidatePairStats{
				ID:                       s.ID,
				State:                    s.Attributes["state"],
				Nominated:                v.num("nominated") != 0,
				BytesSent:                uint64(v.num("bytesSent")),
				BytesReceived:            uint64(v.num("bytesReceived")),
				CurrentRoundTripTime:     v.seconds("currentRoundTripTime"),
				AvailableOutgoingBitrate: v.num("availableOutgoingBitrate"),
				AvailableIncomingBitrate: v.num("availableIncomingBitrate"),
			})
		case engine.StatsTypeTransport:
			report.Transports = append(report.Transports, TransportStats{
				ID:            s.ID,
				BytesSent:     uint64(v.num("bytesSent")),
				BytesReceived: uint64(v.num("bytesReceived")),
				DTLSState:     s.Attributes["dtlsState"],
				ICEState:      s.Attributes["iceState"],
			})
		default:
			report.Other = append(report.Other, s)
		}
	}
	if latest > 0 {
		report.Timestamp = time.UnixMicro(latest)
	}
	return report
}

type statsValues engine.Stats

func (v statsValues) num(name string) float64 {
	return v.Values[name]
}

func (v statsValues) seconds(name string) time.Duration {
	return time.Duration(v.Values[name] * float64(time.Second))
}
