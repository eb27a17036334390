package pionengine

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

const opTimeout = 5 * time.Second

func await[T any](t *testing.T, issue func(done func(T, error))) (T, error) {
	t.Helper()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	issue(func(v T, err error) { ch <- result{v, err} })
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(opTimeout):
		t.Fatal("operation never completed")
		var zero T
		return zero, nil
	}
}

func awaitErr(t *testing.T, issue func(done func(error))) error {
	t.Helper()
	_, err := await(t, func(done func(struct{}, error)) {
		issue(func(err error) { done(struct{}{}, err) })
	})
	return err
}

type recordingObserver struct {
	engine.NopObserver

	mu         sync.Mutex
	signaling  []engine.SignalingState
	gathering  []engine.ICEGatheringState
	candidates []engine.ICECandidate
}

func (o *recordingObserver) OnSignalingStateChange(s engine.SignalingState) {
	o.mu.Lock()
	o.signaling = append(o.signaling, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnICEGatheringStateChange(s engine.ICEGatheringState) {
	o.mu.Lock()
	o.gathering = append(o.gathering, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnICECandidate(c engine.ICECandidate) {
	o.mu.Lock()
	o.candidates = append(o.candidates, c)
	o.mu.Unlock()
}

func (o *recordingObserver) signalingStates() []engine.SignalingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]engine.SignalingState(nil), o.signaling...)
}

func newTestPeer(t *testing.T, e *Engine, obs engine.Observer) engine.PeerConnection {
	t.Helper()
	pc, err := e.NewPeerConnection(engine.Configuration{}, obs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

// negotiate runs a full offer/answer exchange from offerer to answerer.
func negotiate(t *testing.T, offerer, answerer engine.PeerConnection) {
	t.Helper()
	offer, err := await(t, func(done func(engine.SessionDescription, error)) {
		offerer.CreateOffer(engine.OfferOptions{}, done)
	})
	require.NoError(t, err)
	require.Equal(t, engine.SDPTypeOffer, offer.Type)
	require.NoError(t, awaitErr(t, func(done func(error)) { offerer.SetLocalDescription(offer, done) }))
	require.NoError(t, awaitErr(t, func(done func(error)) { answerer.SetRemoteDescription(offer, done) }))

	answer, err := await(t, func(done func(engine.SessionDescription, error)) {
		answerer.CreateAnswer(engine.AnswerOptions{}, done)
	})
	require.NoError(t, err)
	require.Equal(t, engine.SDPTypeAnswer, answer.Type)
	require.NoError(t, awaitErr(t, func(done func(error)) { answerer.SetLocalDescription(answer, done) }))
	require.NoError(t, awaitErr(t, func(done func(error)) { offerer.SetRemoteDescription(answer, done) }))
}

func TestOfferAnswer(t *testing.T) {
	e := newTestEngine(t)
	obs := &recordingObserver{}
	offerer := newTestPeer(t, e, obs)
	answerer := newTestPeer(t, e, nil)

	audio, err := offerer.AddTransceiver(engine.MediaKindAudio, engine.TransceiverInit{})
	require.NoError(t, err)
	video, err := offerer.AddTransceiver(engine.MediaKindVideo, engine.TransceiverInit{Direction: engine.TransceiverDirectionSendOnly})
	require.NoError(t, err)
	assert.Empty(t, audio.Mid())

	negotiate(t, offerer, answerer)

	assert.Equal(t, "0", audio.Mid())
	assert.Equal(t, "1", video.Mid())
	assert.Equal(t, engine.MediaKindVideo, video.Kind())
	assert.Equal(t, engine.TransceiverDirectionSendOnly, video.Direction())

	list, err := offerer.Transceivers()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0] == audio, "transceiver values are stable")
	assert.True(t, list[1] == video)

	remote, err := answerer.Transceivers()
	require.NoError(t, err)
	assert.Len(t, remote, 2)

	assert.Contains(t, obs.signalingStates(), engine.SignalingStateHaveLocalOffer)
	assert.Equal(t, engine.SignalingStateStable, obs.signalingStates()[len(obs.signalingStates())-1])
}

func TestSenderBindsLocalTracks(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)
	tr, err := pc.AddTransceiver(engine.MediaKindVideo, engine.TransceiverInit{})
	require.NoError(t, err)

	src, err := e.NewVideoSource("", engine.VideoConstraints{})
	require.NoError(t, err)
	track, err := e.NewVideoTrack("cam", src)
	require.NoError(t, err)

	assert.Nil(t, tr.Sender().Track())
	require.NoError(t, tr.Sender().ReplaceTrack(track))
	assert.Equal(t, engine.Track(track), tr.Sender().Track())
	require.NoError(t, tr.Sender().ReplaceTrack(nil))
	assert.Nil(t, tr.Sender().Track())

	foreign := &remoteVideoTrack{&remoteTrack{}}
	assert.ErrorIs(t, tr.Sender().ReplaceTrack(foreign), engine.ErrForeignTrack)
}

func TestRecvOnlyTransceiverHasNoSender(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)
	tr, err := pc.AddTransceiver(engine.MediaKindAudio, engine.TransceiverInit{Direction: engine.TransceiverDirectionRecvOnly})
	require.NoError(t, err)

	src, err := e.NewAudioSource("", engine.AudioConstraints{})
	require.NoError(t, err)
	track, err := e.NewAudioTrack("mic", src)
	require.NoError(t, err)

	assert.ErrorIs(t, tr.Sender().ReplaceTrack(track), engine.ErrNotSupported)
	assert.NoError(t, tr.Sender().ReplaceTrack(nil))
}

func TestTransceiverDirectionIsFixed(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)
	tr, err := pc.AddTransceiver(engine.MediaKindVideo, engine.TransceiverInit{})
	require.NoError(t, err)

	assert.NoError(t, tr.SetDirection(engine.TransceiverDirectionSendRecv))
	assert.ErrorIs(t, tr.SetDirection(engine.TransceiverDirectionRecvOnly), engine.ErrNotSupported)

	require.NoError(t, tr.SetDirection(engine.TransceiverDirectionStopped))
	assert.True(t, tr.Stopped())
	assert.Equal(t, engine.TransceiverDirectionStopped, tr.Direction())
	assert.NoError(t, tr.Stop())
	assert.Error(t, tr.SetDirection(engine.TransceiverDirectionSendRecv))

	_, err = pc.AddTransceiver(engine.MediaKindAudio, engine.TransceiverInit{Direction: engine.TransceiverDirectionStopped})
	assert.ErrorIs(t, err, engine.ErrNotSupported)
}

func TestInvalidRemoteDescription(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)

	err := awaitErr(t, func(done func(error)) {
		pc.SetRemoteDescription(engine.SessionDescription{Type: engine.SDPTypeOffer, SDP: "not sdp"}, done)
	})
	assert.Error(t, err)

	err = awaitErr(t, func(done func(error)) {
		pc.AddICECandidate(engine.ICECandidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 9 typ host"}, done)
	})
	assert.Error(t, err, "no remote description yet")
}

func TestOperationsRunInOrder(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)
	_, err := pc.AddTransceiver(engine.MediaKindAudio, engine.TransceiverInit{})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		wg.Done()
	}

	wg.Add(3)
	pc.CreateOffer(engine.OfferOptions{}, func(engine.SessionDescription, error) { record("offer") })
	pc.GetStats(func([]engine.Stats, error) { record("stats") })
	pc.CreateOffer(engine.OfferOptions{}, func(engine.SessionDescription, error) { record("offer2") })
	wg.Wait()

	assert.Equal(t, []string{"offer", "stats", "offer2"}, order)
}

func TestGetStats(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)

	stats, err := await(t, pc.GetStats)
	require.NoError(t, err)
	var found bool
	for _, st := range stats {
		if st.Type == engine.StatsTypePeerConnection {
			found = true
		}
	}
	assert.True(t, found)
}

func TestClosedPeerFailsOperations(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)
	require.NoError(t, pc.Close())
	require.NoError(t, pc.Close())

	_, err := await(t, func(done func(engine.SessionDescription, error)) {
		pc.CreateOffer(engine.OfferOptions{}, done)
	})
	assert.ErrorIs(t, err, engine.ErrClosed)

	_, err = pc.AddTransceiver(engine.MediaKindVideo, engine.TransceiverInit{})
	assert.ErrorIs(t, err, engine.ErrClosed)
	_, err = pc.Transceivers()
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.ErrorIs(t, pc.RestartICE(), engine.ErrClosed)
}

func TestEngineCloseClosesPeers(t *testing.T) {
	e := newTestEngine(t)
	pc := newTestPeer(t, e, nil)
	require.NoError(t, e.Close())

	_, err := pc.Transceivers()
	assert.ErrorIs(t, err, engine.ErrClosed)
	_, err = e.NewPeerConnection(engine.Configuration{}, nil)
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestRestartICEAppliesToNextOffer(t *testing.T) {
	e := newTestEngine(t)
	offerer := newTestPeer(t, e, nil)
	answerer := newTestPeer(t, e, nil)
	_, err := offerer.AddTransceiver(engine.MediaKindAudio, engine.TransceiverInit{})
	require.NoError(t, err)
	negotiate(t, offerer, answerer)

	ufrag := func() string {
		offer, err := await(t, func(done func(engine.SessionDescription, error)) {
			offerer.CreateOffer(engine.OfferOptions{}, done)
		})
		require.NoError(t, err)
		return iceUfrag(t, offer.SDP)
	}

	before := ufrag()
	assert.Equal(t, before, ufrag(), "credentials are kept without a restart")

	require.NoError(t, offerer.RestartICE())
	assert.NotEqual(t, before, ufrag())
}

func iceUfrag(t *testing.T, raw string) string {
	t.Helper()
	var desc sdp.SessionDescription
	require.NoError(t, desc.UnmarshalString(raw))
	if v, ok := desc.Attribute("ice-ufrag"); ok {
		return v
	}
	for _, m := range desc.MediaDescriptions {
		if v, ok := m.Attribute("ice-ufrag"); ok {
			return v
		}
	}
	t.Fatal("description without ice-ufrag")
	return ""
}
