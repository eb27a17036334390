package session

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/internal/testutil"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c1")))
	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c2")))

	n, err := env.r.PendingICECandidates(id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, pc.Journal(), "nothing may reach the engine before a remote description")

	require.NoError(t, env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0"))
	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c3")))

	assert.Equal(t, []string{
		"set-remote-description",
		"set-remote-description:done",
		"add-ice-candidate:c1",
		"ice-applied:c1",
		"add-ice-candidate:c2",
		"ice-applied:c2",
		"add-ice-candidate:c3",
		"ice-applied:c3",
	}, pc.Journal())

	n, err = env.r.PendingICECandidates(id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCandidateAddedWhileRemoteDescriptionPending(t *testing.T) {
	env := newTestEnv(t)
	env.eng.SetMode(testutil.CompleteOnRelease)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c1")))

	done := make(chan error, 1)
	go func() { done <- env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0") }()
	testutil.Eventually(t, waitTimeout, func() bool { return pc.Held() == 1 })

	state, err := env.r.NegotiationState(id)
	require.NoError(t, err)
	assert.Equal(t, NegotiationStateRemoteDescriptionPending, state)

	// The remote description has not completed, so this one is buffered too.
	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c2")))

	require.NoError(t, releaseUntil(t, pc, done))

	go func() { done <- env.r.AddICECandidate(ctx, id, candidate("c3")) }()
	require.NoError(t, releaseUntil(t, pc, done))

	journal := pc.Journal()
	assert.Equal(t, []string{"c1", "c2", "c3"}, applied(journal))
	assert.Less(t, indexOf(journal, "set-remote-description:done"), indexOf(journal, "add-ice-candidate:c1"))
}

func TestConcurrentCandidatesKeepIssueOrder(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, name := range names {
		require.NoError(t, env.r.AddICECandidate(ctx, id, candidate(name)))
	}
	require.NoError(t, env.r.SetRemoteDescription(ctx, id, engine.SDPTypeAnswer, "v=0"))
	assert.Equal(t, names, applied(pc.Journal()))
}

func TestCandidateForwardedAfterNegotiation(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	require.NoError(t, env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0"))

	pc.Fail("add-ice-candidate:bad", errors.New("malformed candidate"))
	err := env.r.AddICECandidate(ctx, id, candidate("bad"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNativeFailure))
	assert.Contains(t, err.Error(), "malformed candidate")

	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("good")))
	assert.Equal(t, []string{"good"}, applied(pc.Journal()))
}

func TestFlushReportsFirstFailure(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	for _, name := range []string{"c1", "bad", "c3"} {
		require.NoError(t, env.r.AddICECandidate(ctx, id, candidate(name)))
	}
	pc.Fail("add-ice-candidate:bad", errors.New("unparsable"))

	err := env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNativeFailure))
	assert.Contains(t, err.Error(), "unparsable")

	// The remote description stuck and the other candidates were applied.
	assert.Equal(t, []string{"c1", "c3"}, applied(pc.Journal()))
	state, err := env.r.NegotiationState(id)
	require.NoError(t, err)
	assert.Equal(t, NegotiationStateNegotiated, state)
}

func TestRemoteDescriptionFailureKeepsCandidatesBuffered(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c1")))
	pc.Fail("set-remote-description", errors.New("bad sdp"))

	err := env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "garbage")
	require.Error(t, err)
	var nerr *NativeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "set-remote-description", nerr.Op)
	assert.Equal(t, "bad sdp", nerr.Message)

	n, err := env.r.PendingICECandidates(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	state, err := env.r.NegotiationState(id)
	require.NoError(t, err)
	assert.Equal(t, NegotiationStateNew, state)

	pc.Fail("set-remote-description", nil)
	require.NoError(t, env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0"))
	assert.Equal(t, []string{"c1"}, applied(pc.Journal()))
}

func TestNegotiationStates(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	state := func() NegotiationState {
		s, err := env.r.NegotiationState(id)
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, NegotiationStateNew, state())

	pc.Fail("create-offer", errors.New("no transceivers"))
	_, err := env.r.CreateOffer(ctx, id, engine.OfferOptions{})
	require.Error(t, err)
	assert.Equal(t, NegotiationStateNew, state(), "failed offer restores the previous state")
	pc.Fail("create-offer", nil)

	offer, err := env.r.CreateOffer(ctx, id, engine.OfferOptions{})
	require.NoError(t, err)
	assert.Equal(t, engine.SDPTypeOffer, offer.Type)
	assert.Equal(t, NegotiationStateLocalOfferOrAnswerPending, state())

	require.NoError(t, env.r.SetLocalDescription(ctx, id, offer.Type, offer.SDP))
	assert.Equal(t, NegotiationStateLocalDescriptionSet, state())
	require.NotNil(t, pc.LocalDescription())
	assert.Equal(t, offer.SDP, pc.LocalDescription().SDP)

	require.NoError(t, env.r.SetRemoteDescription(ctx, id, engine.SDPTypeAnswer, "v=0 answer"))
	assert.Equal(t, NegotiationStateNegotiated, state())

	// Renegotiation does not leave the negotiated state.
	_, err = env.r.CreateOffer(ctx, id, engine.OfferOptions{ICERestart: true})
	require.NoError(t, err)
	assert.Equal(t, NegotiationStateNegotiated, state())
}

func TestNegotiationPendingState(t *testing.T) {
	env := newTestEnv(t)
	env.eng.SetMode(testutil.CompleteOnRelease)
	id, pc, _ := env.newPeer(t)

	done := make(chan error, 1)
	go func() {
		_, err := env.r.CreateAnswer(context.Background(), id, engine.AnswerOptions{})
		done <- err
	}()
	testutil.Eventually(t, waitTimeout, func() bool { return pc.Held() == 1 })

	state, err := env.r.NegotiationState(id)
	require.NoError(t, err)
	assert.Equal(t, NegotiationStateLocalOfferOrAnswerPending, state)
	require.NoError(t, releaseUntil(t, pc, done))
}

func TestBridgeTimeoutAndLateCompletion(t *testing.T) {
	env := newTestEnv(t, WithBridgeTimeout(30*time.Millisecond))
	env.eng.SetMode(testutil.CompleteOnRelease)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c1")))

	start := time.Now()
	err := env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), waitTimeout)

	timeouts := env.r.metrics.bridgeTimeouts.WithLabelValues("set-remote-description")
	late := env.r.metrics.lateCompletion.WithLabelValues("set-remote-description")
	assert.Equal(t, 1.0, promtest.ToFloat64(timeouts))
	assert.Zero(t, promtest.ToFloat64(late))

	// The native operation still completes; the result is discarded.
	assert.Equal(t, 1, pc.Release())
	assert.Equal(t, 1.0, promtest.ToFloat64(late))

	var logged bool
	for _, e := range env.logs.AllEntries() {
		if e.Level == logrus.DebugLevel && e.Message == "discarding late engine completion" {
			logged = true
		}
	}
	assert.True(t, logged)

	// Candidates stay buffered after a timed out remote description.
	n, err := env.r.PendingICECandidates(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	state, err := env.r.NegotiationState(id)
	require.NoError(t, err)
	assert.Equal(t, NegotiationStateNew, state)
}

func TestContextCancelStopsWaiting(t *testing.T) {
	env := newTestEnv(t)
	env.eng.SetMode(testutil.CompleteOnRelease)
	id, _, _ := env.newPeer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.r.CreateOffer(ctx, id, engine.OfferOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOperationsOnUnknownPeer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.r.CreateOffer(ctx, 42, engine.OfferOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))
	err = env.r.AddICECandidate(ctx, 42, candidate("c1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = env.r.GetStats(ctx, 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = env.r.PendingICECandidates(42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDisposeDuringPendingRemoteDescription(t *testing.T) {
	env := newTestEnv(t)
	env.eng.SetMode(testutil.CompleteOnRelease)
	id, pc, _ := env.newPeer(t)
	ctx := context.Background()

	require.NoError(t, env.r.AddICECandidate(ctx, id, candidate("c1")))

	done := make(chan error, 1)
	go func() { done <- env.r.SetRemoteDescription(ctx, id, engine.SDPTypeOffer, "v=0") }()
	testutil.Eventually(t, waitTimeout, func() bool { return pc.Held() == 1 })

	require.NoError(t, env.r.DisposePeerConnection(id))
	require.Error(t, releaseUntil(t, pc, done))

	assert.Empty(t, applied(pc.Journal()))
	assert.Equal(t, -1, indexOf(pc.Journal(), "add-ice-candidate:c1"))
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)

	in := engine.NewStats("IT01V", engine.StatsTypeInboundRTP, 1_700_000_000_000_000)
	in.Attributes["kind"] = "video"
	in.Attributes["mid"] = "0"
	in.Values["ssrc"] = 1234
	in.Values["packetsReceived"] = 900
	in.Values["packetsLost"] = 3
	in.Values["framesDecoded"] = 300

	out := engine.NewStats("OT01A", engine.StatsTypeOutboundRTP, 1_700_000_000_100_000)
	out.Attributes["kind"] = "audio"
	out.Attributes["qualityLimitationReason"] = "none"
	out.Values["packetsSent"] = 500
	out.Values["bytesSent"] = 64000

	pair := engine.NewStats("CP01", engine.StatsTypeCandidatePair, 1_700_000_000_000_000)
	pair.Attributes["state"] = "succeeded"
	pair.Values["nominated"] = 1
	pair.Values["currentRoundTripTime"] = 0.025

	remote := engine.NewStats("RI01", engine.StatsTypeRemoteInbound, 1_700_000_000_000_000)
	remote.Values["roundTripTime"] = 0.5

	pcStats := engine.NewStats("P", engine.StatsTypePeerConnection, 1_700_000_000_000_000)

	pc.SetStats(in, out, pair, remote, pcStats)

	report, err := env.r.GetStats(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, report.Inbound, 1)
	assert.Equal(t, uint32(1234), report.Inbound[0].SSRC)
	assert.Equal(t, uint64(900), report.Inbound[0].PacketsReceived)
	assert.Equal(t, int64(3), report.Inbound[0].PacketsLost)
	assert.Equal(t, uint32(300), report.Inbound[0].FramesDecoded)
	assert.Equal(t, "video", report.Inbound[0].Kind)

	require.Len(t, report.Outbound, 1)
	assert.Equal(t, uint64(64000), report.Outbound[0].BytesSent)
	assert.Equal(t, "none", report.Outbound[0].QualityLimited)

	require.Len(t, report.CandidatePairs, 1)
	assert.True(t, report.CandidatePairs[0].Nominated)
	assert.Equal(t, 25*time.Millisecond, report.CandidatePairs[0].CurrentRoundTripTime)

	require.Len(t, report.RemoteInbound, 1)
	assert.Equal(t, 500*time.Millisecond, report.RemoteInbound[0].RoundTripTime)

	require.Len(t, report.Other, 1)
	assert.Equal(t, engine.StatsTypePeerConnection, report.Other[0].Type)
	assert.Equal(t, time.UnixMicro(1_700_000_000_100_000), report.Timestamp)
}

func TestGetStatsFailure(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	pc.Fail("get-stats", errors.New("transport gone"))

	_, err := env.r.GetStats(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNativeFailure))
	assert.Equal(t, 1.0, promtest.ToFloat64(env.r.metrics.nativeFailures.WithLabelValues("get-stats")))
}
