package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/internal/testutil"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

func TestNewHintsMutedOutput(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, []bool{true}, env.eng.MutedHints())
}

func TestPeerConnectionIDsAreUnique(t *testing.T) {
	env := newTestEnv(t)

	var (
		mu  sync.Mutex
		ids = make(map[PeerConnectionID]bool)
		wg  sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := env.r.CreatePeerConnection(engine.Configuration{}, nil)
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 16)

	list, err := env.r.PeerConnections()
	require.NoError(t, err)
	assert.Len(t, list, 16)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1], list[i])
	}

	require.NoError(t, env.r.DisposePeerConnection(list[0]))
	id, _, _ := env.newPeer(t)
	assert.Greater(t, id, list[len(list)-1], "ids are never reused")
}

func TestCreatePeerConnectionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.eng.Fail("peer-connection", errors.New("no network"))

	_, err := env.r.CreatePeerConnection(engine.Configuration{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNativeFailure))

	list, err := env.r.PeerConnections()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRestartICE(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)

	require.NoError(t, env.r.RestartICE(id))
	assert.Equal(t, 1, pc.ICERestarts())

	err := env.r.RestartICE(id + 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLockPoisoning(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	pc.PanicOn("add-transceiver")

	assert.Panics(t, func() {
		_, _ = env.r.AddTransceiver(id, MediaKindVideo, engine.TransceiverInit{})
	})

	_, err := env.r.Tracks()
	assert.True(t, errors.Is(err, ErrLockPoisoned))
	_, err = env.r.CreatePeerConnection(engine.Configuration{}, nil)
	assert.True(t, errors.Is(err, ErrLockPoisoned))
	_, err = env.r.GetMedia(MediaStreamConstraints{Audio: &AudioTrackConstraints{}})
	assert.True(t, errors.Is(err, ErrLockPoisoned))
	assert.True(t, errors.Is(env.r.DisposePeerConnection(id), ErrLockPoisoned))
}

func TestCloseDisposesEverything(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	tracks, err := env.r.GetMedia(MediaStreamConstraints{
		Audio: &AudioTrackConstraints{},
		Video: &VideoTrackConstraints{},
	})
	require.NoError(t, err)
	_, err = env.r.AddTransceiver(id, MediaKindAudio, engine.TransceiverInit{})
	require.NoError(t, err)
	require.NoError(t, env.r.SenderReplaceTrack(id, 0, tracks[0].ID))
	require.NoError(t, env.r.CreateVideoSink(1, tracks[1].Origin, tracks[1].ID, NewVideoSink(func(*engine.VideoFrame) {})))
	video := env.native(t, tracks[1])

	require.NoError(t, env.r.Close())

	assert.True(t, pc.Closed())
	assert.Zero(t, video.Sinks())
	for _, s := range env.eng.Sources() {
		assert.Equal(t, 1, s.Released(), s.DeviceID())
	}
	assert.True(t, env.eng.OutputMuted())

	_, err = env.r.Tracks()
	assert.True(t, errors.Is(err, ErrRegistryClosed))
	_, err = env.r.CreatePeerConnection(engine.Configuration{}, nil)
	assert.True(t, errors.Is(err, ErrRegistryClosed))
	assert.True(t, errors.Is(env.r.Close(), ErrRegistryClosed))
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, WithMetrics(reg))

	env.newPeer(t)
	cam := env.camera(t, "")
	env.camera(t, "")

	assert.Equal(t, 1.0, promtest.ToFloat64(env.r.metrics.peers))
	assert.Equal(t, 2.0, promtest.ToFloat64(env.r.metrics.tracks.WithLabelValues("video", "local")))
	assert.Equal(t, 1.0, promtest.ToFloat64(env.r.metrics.sources.WithLabelValues("video")))

	require.NoError(t, env.r.DisposeTrack(cam.Origin, cam.ID, cam.Kind))
	assert.Equal(t, 1.0, promtest.ToFloat64(env.r.metrics.tracks.WithLabelValues("video", "local")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["rtcsession_peer_connections"])
	assert.True(t, names["rtcsession_tracks"])
}

func TestVideoSinks(t *testing.T) {
	env := newTestEnv(t)
	cam := env.camera(t, "")
	native := env.native(t, cam)

	frames := testutil.NewRecorder[*engine.VideoFrame]()
	sink := NewVideoSink(func(f *engine.VideoFrame) { frames.Send(f) })

	require.NoError(t, env.r.CreateVideoSink(7, cam.Origin, cam.ID, sink))
	assert.Equal(t, 1, native.Sinks())

	native.PushFrame(testutil.CreateTestVideoFrame(64, 48))
	require.Equal(t, 1, frames.Len())
	assert.Equal(t, 64, frames.Events()[0].Width)

	err := env.r.CreateVideoSink(7, cam.Origin, cam.ID, sink)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
	err = env.r.CreateVideoSink(8, cam.Origin, cam.ID, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	mic := env.microphone(t)
	err = env.r.CreateVideoSink(9, mic.Origin, mic.ID, sink)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, env.r.DisposeVideoSink(7))
	require.NoError(t, env.r.DisposeVideoSink(7))
	assert.Zero(t, native.Sinks())

	// Sinks go away with their track.
	require.NoError(t, env.r.CreateVideoSink(10, cam.Origin, cam.ID, sink))
	require.NoError(t, env.r.DisposeTrack(cam.Origin, cam.ID, cam.Kind))
	assert.Zero(t, native.Sinks())
	require.NoError(t, env.r.CreateVideoSink(10, LocalOrigin(), env.camera(t, "").ID, sink), "id is free again")
}

func TestTracksOrdered(t *testing.T) {
	env := newTestEnv(t)
	env.camera(t, "")
	env.microphone(t)
	env.camera(t, "")

	all, err := env.r.Tracks()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, MediaKindAudio, all[0].Kind)
	assert.Less(t, all[1].ID, all[2].ID)
}
