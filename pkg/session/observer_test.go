package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/internal/testutil"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

func isTrackAdded(ev PeerConnectionEvent) bool {
	_, ok := ev.(TrackAdded)
	return ok
}

func TestPeerEventsForwarded(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)

	obs := pc.Observer()
	obs.OnSignalingStateChange(engine.SignalingStateHaveLocalOffer)
	obs.OnICEGatheringStateChange(engine.ICEGatheringStateGathering)
	obs.OnICECandidate(candidate("host 1"))
	obs.OnICECandidateError(engine.ICECandidateError{URL: "stun:stun.invalid:3478", ErrorCode: 701})
	obs.OnICEConnectionStateChange(engine.ICEConnectionStateChecking)
	obs.OnConnectionStateChange(engine.PeerConnectionStateConnecting)
	obs.OnNegotiationNeeded()

	events := rec.Events()
	require.Len(t, events, 8)
	assert.Equal(t, PeerCreated{Peer: id}, events[0])
	assert.Equal(t, SignalingStateChanged{Peer: id, State: engine.SignalingStateHaveLocalOffer}, events[1])
	assert.Equal(t, ICEGatheringStateChanged{Peer: id, State: engine.ICEGatheringStateGathering}, events[2])
	assert.Equal(t, ICECandidateDiscovered{Peer: id, Candidate: candidate("host 1")}, events[3])
	assert.Equal(t, 701, events[4].(ICECandidateFailed).Error.ErrorCode)
	assert.Equal(t, "ice-connection-state-change", events[5].EventType())
	assert.Equal(t, "connection-state-change", events[6].EventType())
	assert.Equal(t, NegotiationNeeded{Peer: id}, events[7])
	for _, ev := range events {
		assert.Equal(t, id, ev.PeerID())
	}

	require.NoError(t, env.r.DisposePeerConnection(id))
	obs.OnNegotiationNeeded()
	assert.Len(t, rec.Events(), 8, "no events after dispose")
}

func TestRemoteTrackAnnounced(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)

	pc.FireTrack(MediaKindVideo, "remote-video")
	ev := rec.WaitFor(t, waitTimeout, isTrackAdded).(TrackAdded)

	assert.Equal(t, id, ev.Peer)
	assert.Equal(t, TrackID("remote-video"), ev.Track.ID)
	assert.Equal(t, RemoteOrigin(id), ev.Track.Origin)
	assert.Equal(t, 0, ev.Transceiver.Index)
	assert.Equal(t, "0", ev.Transceiver.Mid)
	assert.Equal(t, engine.TransceiverDirectionRecvOnly, ev.Transceiver.Direction)

	state, err := env.r.TrackState(RemoteOrigin(id), "remote-video", MediaKindVideo)
	require.NoError(t, err)
	assert.Equal(t, engine.TrackStateLive, state)

	// The same id from the local origin is a different track.
	_, err = env.r.TrackState(LocalOrigin(), "remote-video", MediaKindVideo)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoteAudioTrackRegisteredByKind(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)

	// Fake tracks implement both track interfaces; the transceiver kind
	// decides where the track is registered.
	pc.FireTrack(MediaKindAudio, "remote-audio")
	ev := rec.WaitFor(t, waitTimeout, isTrackAdded).(TrackAdded)
	assert.Equal(t, MediaKindAudio, ev.Track.Kind)

	origin := RemoteOrigin(id)
	state, err := env.r.TrackState(origin, "remote-audio", MediaKindAudio)
	require.NoError(t, err)
	assert.Equal(t, engine.TrackStateLive, state)

	_, err = env.r.TrackState(origin, "remote-audio", MediaKindVideo)
	assert.True(t, errors.Is(err, ErrNotFound))

	clone, err := env.r.CloneTrack(origin, "remote-audio", MediaKindAudio)
	require.NoError(t, err)
	require.NotNil(t, clone)
	assert.Equal(t, MediaKindAudio, clone.Kind)
	assert.Equal(t, origin, clone.Origin)

	require.NoError(t, env.r.DisposeTrack(origin, "remote-audio", MediaKindAudio))
	_, err = env.r.TrackState(origin, "remote-audio", MediaKindAudio)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoteTrackCannotBeSent(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)
	pc.FireTrack(MediaKindAudio, "remote-audio")
	rec.WaitFor(t, waitTimeout, isTrackAdded)

	_, err := env.r.AddTransceiver(id, MediaKindAudio, engine.TransceiverInit{})
	require.NoError(t, err)
	err = env.r.SenderReplaceTrack(id, 1, "remote-audio")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoteTrackClone(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)
	tr := pc.FireTrack(MediaKindVideo, "remote-video")
	rec.WaitFor(t, waitTimeout, isTrackAdded)

	clone, err := env.r.CloneTrack(RemoteOrigin(id), "remote-video", MediaKindVideo)
	require.NoError(t, err)
	require.NotNil(t, clone)
	assert.NotEqual(t, TrackID("remote-video"), clone.ID)
	assert.Equal(t, RemoteOrigin(id), clone.Origin)
	assert.Equal(t, engine.Track(tr.FakeReceiver().RemoteTrack()), env.native(t, *clone))

	// Disposing a remote clone never stops the receiver track.
	require.NoError(t, env.r.DisposeTrack(clone.Origin, clone.ID, clone.Kind))
	assert.False(t, tr.FakeReceiver().RemoteTrack().Stopped())

	require.NoError(t, env.r.DisposePeerConnection(id))
	clone, err = env.r.CloneTrack(RemoteOrigin(id), "remote-video", MediaKindVideo)
	require.NoError(t, err)
	assert.Nil(t, clone, "no receiver left to clone")
}

func TestRemoteTrackEndsWithPeer(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)
	pc.FireTrack(MediaKindAudio, "remote-audio")
	rec.WaitFor(t, waitTimeout, isTrackAdded)

	trackRec := testutil.NewRecorder[TrackEvent]()
	require.NoError(t, env.r.RegisterTrackObserver(RemoteOrigin(id), "remote-audio", MediaKindAudio, trackRec))

	require.NoError(t, env.r.DisposePeerConnection(id))

	state, err := env.r.TrackState(RemoteOrigin(id), "remote-audio", MediaKindAudio)
	require.NoError(t, err)
	assert.Equal(t, engine.TrackStateEnded, state)

	// Closing the native connection ends the receiver track as well; only
	// one ended event may come out of it.
	require.NoError(t, env.r.Close())
	var ended int
	for _, ev := range trackRec.Events() {
		if _, ok := ev.(TrackEnded); ok {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}

func TestTrackAfterDisposeIgnored(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)
	require.NoError(t, env.r.DisposePeerConnection(id))

	pc.FireTrack(MediaKindVideo, "late")

	for _, ev := range rec.Events() {
		assert.False(t, isTrackAdded(ev))
	}
	all, err := env.r.Tracks()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRemoteAudioLevels(t *testing.T) {
	env := newTestEnv(t)
	id, pc, rec := env.newPeer(t)
	tr := pc.FireTrack(MediaKindAudio, "remote-audio")
	rec.WaitFor(t, waitTimeout, isTrackAdded)

	trackRec := testutil.NewRecorder[TrackEvent]()
	origin := RemoteOrigin(id)
	require.NoError(t, env.r.RegisterTrackObserver(origin, "remote-audio", MediaKindAudio, trackRec))
	require.NoError(t, env.r.SetAudioLevelObserverEnabled(origin, "remote-audio", true))

	tr.FakeReceiver().RemoteTrack().EmitLevel(0.25)
	ev := trackRec.WaitFor(t, waitTimeout, func(ev TrackEvent) bool {
		_, ok := ev.(AudioLevelUpdated)
		return ok
	}).(AudioLevelUpdated)
	assert.Equal(t, origin, ev.Origin)
	assert.InDelta(t, 0.25, ev.Level, 1e-9)
}

func TestChannelSinksDropWhenFull(t *testing.T) {
	env := newTestEnv(t)
	peerEvents := make(chan PeerConnectionEvent, 1)
	id, err := env.r.CreatePeerConnection(engine.Configuration{}, PeerEventChan(peerEvents))
	require.NoError(t, err)

	// PeerCreated fills the buffer; this one is dropped.
	env.eng.LastPeer().Observer().OnNegotiationNeeded()
	require.Len(t, peerEvents, 1)
	assert.Equal(t, PeerCreated{Peer: id}, <-peerEvents)

	mic := env.microphone(t)
	trackEvents := make(chan TrackEvent, 4)
	require.NoError(t, env.r.RegisterTrackObserver(mic.Origin, mic.ID, mic.Kind, TrackEventChan(trackEvents)))
	ev := <-trackEvents
	created, ok := ev.(TrackCreated)
	require.True(t, ok)
	assert.Equal(t, mic.ID, created.Track.ID)
}
