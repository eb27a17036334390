package pionengine

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

func TestStatsFromMembers(t *testing.T) {
	st := statsFromMembers("key", map[string]any{
		"id":        "RTCOutboundRTP_1",
		"type":      "outbound-rtp",
		"timestamp": 1500.5,
		"bytesSent": 1200.0,
		"kind":      "video",
		"nack":      true,
		"codec":     map[string]any{"mimeType": "video/VP8"},
	})

	assert.Equal(t, "RTCOutboundRTP_1", st.ID)
	assert.Equal(t, engine.StatsTypeOutboundRTP, st.Type)
	assert.Equal(t, int64(1500500), st.TimestampUs)
	assert.Equal(t, 1200.0, st.Values["bytesSent"])
	assert.Equal(t, 1.0, st.Values["nack"])
	assert.Equal(t, "video", st.Attributes["kind"])
	assert.NotContains(t, st.Values, "codec")
	assert.NotContains(t, st.Attributes, "type")
}

func TestConvertStatsReport(t *testing.T) {
	report := webrtc.StatsReport{
		"b": webrtc.PeerConnectionStats{
			ID:                 "b",
			Type:               webrtc.StatsTypePeerConnection,
			Timestamp:          2000,
			DataChannelsOpened: 2,
		},
		"a": webrtc.PeerConnectionStats{
			ID:        "a",
			Type:      webrtc.StatsTypePeerConnection,
			Timestamp: 1000,
		},
	}

	out, err := convertStats(report)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, engine.StatsTypePeerConnection, out[1].Type)
	assert.Equal(t, int64(2000000), out[1].TimestampUs)
	assert.Equal(t, 2.0, out[1].Values["dataChannelsOpened"])
}
