package session

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/rtcsession/internal/testutil"
	"github.com/thesyncim/rtcsession/pkg/engine"
)

const waitTimeout = 2 * time.Second

type testEnv struct {
	r    *Registry
	eng  *testutil.FakeEngine
	logs *logtest.Hook
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	eng := testutil.NewFakeEngine()
	base := []Option{
		WithBridgeTimeout(time.Second),
		WithLogger(logger.WithField("test", t.Name())),
	}
	r := New(eng, append(base, opts...)...)
	t.Cleanup(func() { _ = r.Close() })
	return &testEnv{r: r, eng: eng, logs: hook}
}

// newPeer creates a peer connection recording its events.
func (e *testEnv) newPeer(t *testing.T) (PeerConnectionID, *testutil.FakePeerConnection, *testutil.Recorder[PeerConnectionEvent]) {
	t.Helper()
	rec := testutil.NewRecorder[PeerConnectionEvent]()
	id, err := e.r.CreatePeerConnection(engine.Configuration{}, rec)
	require.NoError(t, err)
	return id, e.eng.LastPeer(), rec
}

func (e *testEnv) camera(t *testing.T, deviceID string) MediaStreamTrack {
	t.Helper()
	tracks, err := e.r.GetMedia(MediaStreamConstraints{Video: &VideoTrackConstraints{DeviceID: deviceID}})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	return tracks[0]
}

func (e *testEnv) microphone(t *testing.T) MediaStreamTrack {
	t.Helper()
	tracks, err := e.r.GetMedia(MediaStreamConstraints{Audio: &AudioTrackConstraints{}})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	return tracks[0]
}

// native returns the fake engine track behind a registered track.
func (e *testEnv) native(t *testing.T, snap MediaStreamTrack) *testutil.FakeTrack {
	t.Helper()
	var nt engine.Track
	require.NoError(t, e.r.guard(func() error {
		rt, err := e.r.lookupTrack(snap.Origin, snap.ID, snap.Kind)
		if err != nil {
			return err
		}
		nt = rt.nativeTrack()
		return nil
	}))
	ft, ok := nt.(*testutil.FakeTrack)
	require.True(t, ok)
	return ft
}

func candidate(name string) engine.ICECandidate {
	return engine.ICECandidate{Candidate: name, SDPMid: "0"}
}

// applied returns the candidates the fake engine applied, in order.
func applied(journal []string) []string {
	var out []string
	for _, entry := range journal {
		if strings.HasPrefix(entry, "ice-applied:") {
			out = append(out, strings.TrimPrefix(entry, "ice-applied:"))
		}
	}
	return out
}

func indexOf(journal []string, entry string) int {
	for i, e := range journal {
		if e == entry {
			return i
		}
	}
	return -1
}

// releaseUntil keeps releasing held completions until done yields.
func releaseUntil(t *testing.T, pc *testutil.FakePeerConnection, done <-chan error) error {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("operation did not finish")
			return nil
		default:
		}
		pc.Release()
		time.Sleep(time.Millisecond)
	}
}
