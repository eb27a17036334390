package pionengine_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/pkg/engine"
	"github.com/thesyncim/rtcsession/pkg/pionengine"
	"github.com/thesyncim/rtcsession/pkg/session"
)

func TestSessionNegotiatesOverPion(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	log := logrus.NewEntry(logger)

	eng, err := pionengine.New(pionengine.WithLogger(log))
	require.NoError(t, err)
	r := session.New(eng, session.WithLogger(log))
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()
	offerer, err := r.CreatePeerConnection(engine.Configuration{}, nil)
	require.NoError(t, err)
	answerer, err := r.CreatePeerConnection(engine.Configuration{}, nil)
	require.NoError(t, err)

	tracks, err := r.GetMedia(session.MediaStreamConstraints{
		Audio: &session.AudioTrackConstraints{},
		Video: &session.VideoTrackConstraints{},
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	for i, tr := range tracks {
		_, err := r.AddTransceiver(offerer, tr.Kind, engine.TransceiverInit{})
		require.NoError(t, err)
		require.NoError(t, r.SenderReplaceTrack(offerer, i, tr.ID))
	}

	offer, err := r.CreateOffer(ctx, offerer, engine.OfferOptions{})
	require.NoError(t, err)
	require.NoError(t, r.SetLocalDescription(ctx, offerer, offer.Type, offer.SDP))
	require.NoError(t, r.SetRemoteDescription(ctx, answerer, offer.Type, offer.SDP))

	answer, err := r.CreateAnswer(ctx, answerer, engine.AnswerOptions{})
	require.NoError(t, err)
	require.NoError(t, r.SetLocalDescription(ctx, answerer, answer.Type, answer.SDP))
	require.NoError(t, r.SetRemoteDescription(ctx, offerer, answer.Type, answer.SDP))

	for _, id := range []session.PeerConnectionID{offerer, answerer} {
		state, err := r.NegotiationState(id)
		require.NoError(t, err)
		assert.Equal(t, session.NegotiationStateNegotiated, state)
	}

	mid, ok, err := r.GetTransceiverMid(offerer, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", mid)

	remote, err := r.GetTransceivers(answerer)
	require.NoError(t, err)
	assert.Len(t, remote, 2)

	report, err := r.GetStats(ctx, offerer)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Other)
	assert.False(t, report.Timestamp.IsZero())

	require.NoError(t, r.DisposePeerConnection(offerer))
	for _, tr := range tracks {
		require.NoError(t, r.DisposeTrack(tr.Origin, tr.ID, tr.Kind))
	}
	assert.Zero(t, r.SourceCount(session.MediaKindVideo))
}
