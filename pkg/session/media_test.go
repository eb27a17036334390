package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/internal/testutil"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

func TestGetMediaAudioAndVideo(t *testing.T) {
	env := newTestEnv(t)

	tracks, err := env.r.GetMedia(MediaStreamConstraints{
		Audio: &AudioTrackConstraints{AudioConstraints: engine.AudioConstraints{EchoCancellation: true}},
		Video: &VideoTrackConstraints{VideoConstraints: engine.VideoConstraints{Width: 640, Height: 480, FrameRate: 30}},
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, MediaKindAudio, tracks[0].Kind)
	assert.Equal(t, "mic0", tracks[0].DeviceID)
	assert.Equal(t, "Microphone 0", tracks[0].Label)
	assert.Equal(t, MediaKindVideo, tracks[1].Kind)
	assert.Equal(t, "cam0", tracks[1].DeviceID)
	for _, tr := range tracks {
		assert.True(t, tr.Origin.IsLocal())
		assert.True(t, tr.Enabled)
		assert.NotEmpty(t, tr.ID)
	}
	assert.NotEqual(t, tracks[0].ID, tracks[1].ID)

	assert.Equal(t, 1, env.r.SourceRefCount(MediaKindVideo, "cam0"))
	assert.Equal(t, 1, env.r.SourceRefCount(MediaKindAudio, "mic0"))

	all, err := env.r.Tracks()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCaptureSourceSharedPerDevice(t *testing.T) {
	env := newTestEnv(t)

	first := env.camera(t, "cam0")
	second := env.camera(t, "cam0")
	assert.NotEqual(t, first.ID, second.ID)

	assert.Equal(t, 1, env.eng.SourcesCreated("cam0"))
	assert.Equal(t, 2, env.r.SourceRefCount(MediaKindVideo, "cam0"))
	assert.Equal(t, 1, env.r.SourceCount(MediaKindVideo))

	src := env.native(t, first).Source()
	require.NoError(t, env.r.DisposeTrack(first.Origin, first.ID, first.Kind))
	assert.Equal(t, 1, env.r.SourceRefCount(MediaKindVideo, "cam0"))
	assert.Zero(t, src.Released())

	require.NoError(t, env.r.DisposeTrack(second.Origin, second.ID, second.Kind))
	assert.Zero(t, env.r.SourceRefCount(MediaKindVideo, "cam0"))
	assert.Zero(t, env.r.SourceCount(MediaKindVideo))
	assert.Equal(t, 1, src.Released())

	// A new capture on the device creates a new source.
	env.camera(t, "cam0")
	assert.Equal(t, 2, env.eng.SourcesCreated("cam0"))
}

func TestDifferentDevicesGetDifferentSources(t *testing.T) {
	env := newTestEnv(t)
	env.camera(t, "cam0")
	env.camera(t, "cam1")

	assert.Equal(t, 2, env.r.SourceCount(MediaKindVideo))
	assert.Equal(t, 1, env.r.SourceRefCount(MediaKindVideo, "cam1"))
}

func TestGetMediaRollsBackOnVideoFailure(t *testing.T) {
	env := newTestEnv(t)
	env.eng.Fail("video-source", errors.New("camera busy"))

	tracks, err := env.r.GetMedia(MediaStreamConstraints{
		Audio: &AudioTrackConstraints{},
		Video: &VideoTrackConstraints{},
	})
	require.Error(t, err)
	assert.Nil(t, tracks)

	var gmErr *GetMediaError
	require.True(t, errors.As(err, &gmErr))
	assert.Equal(t, MediaKindVideo, gmErr.Kind)
	assert.True(t, errors.Is(err, ErrNativeFailure))
	assert.Contains(t, err.Error(), "camera busy")

	all, err := env.r.Tracks()
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, env.r.SourceCount(MediaKindAudio))

	sources := env.eng.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, 1, sources[0].Released(), "microphone released by rollback")
}

func TestGetMediaTrackFailureReleasesSource(t *testing.T) {
	env := newTestEnv(t)
	env.eng.Fail("audio-track", errors.New("no memory"))

	_, err := env.r.GetMedia(MediaStreamConstraints{Audio: &AudioTrackConstraints{}})
	require.Error(t, err)
	assert.Zero(t, env.r.SourceCount(MediaKindAudio))

	sources := env.eng.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, 1, sources[0].Released())
}

func TestGetMediaDeviceSelection(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.r.GetMedia(MediaStreamConstraints{Video: &VideoTrackConstraints{DeviceID: "cam9"}})
	assert.True(t, errors.Is(err, ErrNoDevice))

	env.eng.SetDevices(engine.DeviceInfo{DeviceID: "mic0", Label: "Mic", Kind: engine.DeviceKindAudioInput})
	_, err = env.r.GetMedia(MediaStreamConstraints{Video: &VideoTrackConstraints{}})
	assert.True(t, errors.Is(err, ErrNoDevice))

	env.eng.Fail("enumerate-devices", errors.New("permission denied"))
	_, err = env.r.GetMedia(MediaStreamConstraints{Audio: &AudioTrackConstraints{}})
	assert.True(t, errors.Is(err, ErrNativeFailure))
}

func TestGetMediaDisplay(t *testing.T) {
	env := newTestEnv(t)

	tracks, err := env.r.GetMedia(MediaStreamConstraints{Video: &VideoTrackConstraints{DisplayID: "1"}})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "display:1", tracks[0].DeviceID)
	assert.Equal(t, "Screen 1", tracks[0].Label)
	assert.Equal(t, 1, env.eng.SourcesCreated("display:1"))
	assert.Equal(t, 1, env.r.SourceRefCount(MediaKindVideo, "display:1"))

	_, err = env.r.GetMedia(MediaStreamConstraints{Video: &VideoTrackConstraints{DisplayID: "x"}})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = env.r.GetMedia(MediaStreamConstraints{Video: &VideoTrackConstraints{DisplayID: "7"}})
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestDisposeTrackIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	cam := env.camera(t, "")
	native := env.native(t, cam)

	require.NoError(t, env.r.DisposeTrack(cam.Origin, cam.ID, cam.Kind))
	require.NoError(t, env.r.DisposeTrack(cam.Origin, cam.ID, cam.Kind))
	assert.True(t, native.Stopped())

	_, err := env.r.TrackState(cam.Origin, cam.ID, cam.Kind)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 1, native.Source().Released())
}

func TestDisposeTrackDetachesSenders(t *testing.T) {
	env := newTestEnv(t)
	id, pc, _ := env.newPeer(t)
	cam := env.camera(t, "")

	_, err := env.r.AddTransceiver(id, MediaKindVideo, engine.TransceiverInit{})
	require.NoError(t, err)
	_, err = env.r.AddTransceiver(id, MediaKindVideo, engine.TransceiverInit{})
	require.NoError(t, err)
	require.NoError(t, env.r.SenderReplaceTrack(id, 0, cam.ID))
	require.NoError(t, env.r.SenderReplaceTrack(id, 1, cam.ID))

	trs := pc.FakeTransceivers()
	native := env.native(t, cam)
	assert.Equal(t, engine.Track(native), trs[0].FakeSender().Track())
	assert.Equal(t, engine.Track(native), trs[1].FakeSender().Track())

	require.NoError(t, env.r.DisposeTrack(cam.Origin, cam.ID, cam.Kind))
	assert.Nil(t, trs[0].FakeSender().Track())
	assert.Nil(t, trs[1].FakeSender().Track())

	err = env.r.SenderReplaceTrack(id, 0, cam.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCloneLocalTrack(t *testing.T) {
	env := newTestEnv(t)
	cam := env.camera(t, "cam0")
	require.NoError(t, env.r.SetTrackEnabled(cam.Origin, cam.ID, cam.Kind, false))

	clone, err := env.r.CloneTrack(cam.Origin, cam.ID, cam.Kind)
	require.NoError(t, err)
	require.NotNil(t, clone)

	assert.NotEqual(t, cam.ID, clone.ID)
	assert.Equal(t, cam.DeviceID, clone.DeviceID)
	assert.True(t, clone.Origin.IsLocal())
	assert.False(t, clone.Enabled)
	assert.Equal(t, 2, env.r.SourceRefCount(MediaKindVideo, "cam0"))
	assert.Equal(t, 1, env.eng.SourcesCreated("cam0"), "clone reuses the source")

	// Disposing the original keeps the clone's source alive.
	require.NoError(t, env.r.DisposeTrack(cam.Origin, cam.ID, cam.Kind))
	assert.Equal(t, 1, env.r.SourceRefCount(MediaKindVideo, "cam0"))
	state, err := env.r.TrackState(clone.Origin, clone.ID, clone.Kind)
	require.NoError(t, err)
	assert.Equal(t, engine.TrackStateLive, state)
}

func TestCloneAudioTrack(t *testing.T) {
	env := newTestEnv(t)
	mic := env.microphone(t)

	clone, err := env.r.CloneTrack(mic.Origin, mic.ID, mic.Kind)
	require.NoError(t, err)
	require.NotNil(t, clone)
	assert.Equal(t, MediaKindAudio, clone.Kind)
	assert.Equal(t, 2, env.r.SourceRefCount(MediaKindAudio, "mic0"))

	_, err = env.r.CloneTrack(mic.Origin, "missing", mic.Kind)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetTrackEnabled(t *testing.T) {
	env := newTestEnv(t)
	mic := env.microphone(t)

	require.NoError(t, env.r.SetTrackEnabled(mic.Origin, mic.ID, mic.Kind, false))
	assert.False(t, env.native(t, mic).Enabled())

	all, err := env.r.Tracks()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Enabled)

	err = env.r.SetTrackEnabled(mic.Origin, mic.ID, MediaKindVideo, true)
	assert.True(t, errors.Is(err, ErrNotFound), "kind is part of the track key")
}

func TestTrackObserverEvents(t *testing.T) {
	env := newTestEnv(t)
	cam := env.camera(t, "")
	rec := testutil.NewRecorder[TrackEvent]()

	require.NoError(t, env.r.RegisterTrackObserver(cam.Origin, cam.ID, cam.Kind, rec))
	events := rec.Events()
	require.Len(t, events, 1)
	created, ok := events[0].(TrackCreated)
	require.True(t, ok)
	assert.Equal(t, cam.ID, created.Track.ID)

	env.native(t, cam).End()
	ev := rec.WaitFor(t, waitTimeout, func(ev TrackEvent) bool {
		_, ok := ev.(TrackEnded)
		return ok
	})
	ended := ev.(TrackEnded)
	assert.Equal(t, cam.ID, ended.ID)
	assert.Equal(t, MediaKindVideo, ended.Kind)
	assert.Equal(t, "ended", ended.EventType())

	state, err := env.r.TrackState(cam.Origin, cam.ID, cam.Kind)
	require.NoError(t, err)
	assert.Equal(t, engine.TrackStateEnded, state)
}

func TestAudioLevelObserver(t *testing.T) {
	env := newTestEnv(t)
	mic := env.microphone(t)
	native := env.native(t, mic)
	rec := testutil.NewRecorder[TrackEvent]()
	require.NoError(t, env.r.RegisterTrackObserver(mic.Origin, mic.ID, mic.Kind, rec))

	native.EmitLevel(0.9)
	assert.Equal(t, 1, rec.Len(), "levels are off until enabled")

	require.NoError(t, env.r.SetAudioLevelObserverEnabled(mic.Origin, mic.ID, true))
	assert.True(t, native.HasLevelHandler())
	native.EmitLevel(0.5)

	events := rec.Events()
	require.Len(t, events, 2)
	lvl, ok := events[1].(AudioLevelUpdated)
	require.True(t, ok)
	assert.Equal(t, mic.ID, lvl.ID)
	assert.InDelta(t, 0.5, lvl.Level, 1e-9)

	require.NoError(t, env.r.SetAudioLevelObserverEnabled(mic.Origin, mic.ID, false))
	assert.False(t, native.HasLevelHandler())

	cam := env.camera(t, "")
	err := env.r.SetAudioLevelObserverEnabled(cam.Origin, cam.ID, true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDisposeAudioTrackStopsLevels(t *testing.T) {
	env := newTestEnv(t)
	mic := env.microphone(t)
	native := env.native(t, mic)
	require.NoError(t, env.r.SetAudioLevelObserverEnabled(mic.Origin, mic.ID, true))

	require.NoError(t, env.r.DisposeTrack(mic.Origin, mic.ID, mic.Kind))
	assert.False(t, native.HasLevelHandler())
	assert.True(t, native.Stopped())
}

func TestEnumerate(t *testing.T) {
	env := newTestEnv(t)

	devices, err := env.r.EnumerateDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 4)

	displays, err := env.r.EnumerateDisplays()
	require.NoError(t, err)
	require.Len(t, displays, 1)
	assert.Equal(t, int64(1), displays[0].ID)

	env.eng.Fail("enumerate-devices", errors.New("no backend"))
	_, err = env.r.EnumerateDevices()
	assert.True(t, errors.Is(err, ErrNativeFailure))
}
