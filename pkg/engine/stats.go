package engine

// StatsType is the W3C stats type of a Stats record.
type StatsType string

const (
	StatsTypeInboundRTP     StatsType = "inbound-rtp"
	StatsTypeOutboundRTP    StatsType = "outbound-rtp"
	StatsTypeRemoteInbound  StatsType = "remote-inbound-rtp"
	StatsTypeCandidatePair  StatsType = "candidate-pair"
	StatsTypeTransport      StatsType = "transport"
	StatsTypePeerConnection StatsType = "peer-connection"
	StatsTypeMediaSource    StatsType = "media-source"
)

// Stats is one record of a stats report. Numeric members are keyed by their
// W3C name ("bytesSent", "packetsLost", ...), string members likewise
// ("kind", "mid", "state").
type Stats struct {
	ID          string
	Type        StatsType
	TimestampUs int64
	Values      map[string]float64
	Attributes  map[string]string
}

// NewStats returns a record with initialized member maps.
func NewStats(id string, typ StatsType, timestampUs int64) Stats {
	return Stats{
		ID:          id,
		Type:        typ,
		TimestampUs: timestampUs,
		Values:      make(map[string]float64),
		Attributes:  make(map[string]string),
	}
}
