package shimengine

import (
	"fmt"
	"sync"

	"github.com/thesyncim/rtcsession/internal/ffi"
)

type fakePeer struct {
	cbs          ffi.PeerCallbacks
	closed       bool
	destroyed    bool
	transceivers []uintptr
}

type fakeTransceiver struct {
	kind     ffi.MediaKind
	dir      ffi.TransceiverDirection
	mid      string
	sender   uintptr
	receiver uintptr
	stopped  bool
}

type fakeTrack struct {
	kind  string
	id    string
	audio ffi.AudioFrameCallback
	video ffi.VideoFrameCallback
}

// fakeNative is an in-memory shim. Handles are small integers.
type fakeNative struct {
	mu           sync.Mutex
	next         uintptr
	peers        map[uintptr]*fakePeer
	transceivers map[uintptr]*fakeTransceiver
	tracks       map[uintptr]*fakeTrack
	receiverOf   map[uintptr]uintptr
	calls        []string

	offerErr    error
	senderStats ffi.RTCStats
	recvStats   ffi.RTCStats
	peerStats   ffi.RTCStats
	devices     []ffi.DeviceInfo
	screens     []ffi.ScreenInfo
}

var _ native = (*fakeNative)(nil)

func newFakeNative() *fakeNative {
	return &fakeNative{
		next:         100,
		peers:        make(map[uintptr]*fakePeer),
		transceivers: make(map[uintptr]*fakeTransceiver),
		tracks:       make(map[uintptr]*fakeTrack),
		receiverOf:   make(map[uintptr]uintptr),
	}
}

func (f *fakeNative) handle() uintptr {
	f.next++
	return f.next
}

func (f *fakeNative) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeNative) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeNative) peer(pc uintptr) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[pc]
}

// addRemote creates a transceiver carrying a remote track of kind, as a
// remote offer would, and fires OnTrack.
func (f *fakeNative) addRemote(pc uintptr, kind, id string) (track, recv uintptr) {
	f.mu.Lock()
	p := f.peers[pc]
	th := f.handle()
	mk := ffi.MediaKindAudio
	if kind == "video" {
		mk = ffi.MediaKindVideo
	}
	f.transceivers[th] = &fakeTransceiver{
		kind:     mk,
		dir:      ffi.TransceiverDirectionRecvOnly,
		mid:      fmt.Sprint(len(p.transceivers)),
		sender:   f.handle(),
		receiver: f.handle(),
	}
	p.transceivers = append(p.transceivers, th)
	recv = f.transceivers[th].receiver
	track = f.handle()
	f.tracks[track] = &fakeTrack{kind: kind, id: id}
	f.receiverOf[recv] = track
	onTrack := p.cbs.OnTrack
	f.mu.Unlock()

	onTrack(track, recv, "stream-"+id)
	return track, recv
}

func (f *fakeNative) track(h uintptr) *fakeTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracks[h]
}

func (f *fakeNative) CreatePeerConnection(ffi.Configuration) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.handle()
	f.peers[h] = &fakePeer{}
	f.record("create %d", h)
	return h, nil
}

func (f *fakeNative) SetCallbacks(pc uintptr, cbs ffi.PeerCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[pc].cbs = cbs
}

func (f *fakeNative) ClosePeerConnection(pc uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[pc].closed = true
	f.record("close")
}

func (f *fakeNative) DestroyPeerConnection(pc uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[pc].destroyed = true
	f.record("destroy")
}

func (f *fakeNative) CreateOffer(uintptr) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("offer")
	if f.offerErr != nil {
		return "", f.offerErr
	}
	return "v=0 offer", nil
}

func (f *fakeNative) CreateAnswer(uintptr) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("answer")
	return "v=0 answer", nil
}

func (f *fakeNative) SetLocalDescription(_ uintptr, typ ffi.SDPType, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("local %d", typ)
	return nil
}

func (f *fakeNative) SetRemoteDescription(_ uintptr, typ ffi.SDPType, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remote %d", typ)
	return nil
}

func (f *fakeNative) AddICECandidate(_ uintptr, c ffi.ICECandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("candidate %s", c.SDPMid)
	return nil
}

func (f *fakeNative) RestartICE(uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("restart")
	return nil
}

func (f *fakeNative) AddTransceiver(pc uintptr, kind ffi.MediaKind, dir ffi.TransceiverDirection) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.handle()
	f.transceivers[h] = &fakeTransceiver{kind: kind, dir: dir, sender: f.handle(), receiver: f.handle()}
	f.peers[pc].transceivers = append(f.peers[pc].transceivers, h)
	return h, nil
}

func (f *fakeNative) Transceivers(pc uintptr) ([]uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uintptr(nil), f.peers[pc].transceivers...), nil
}

func (f *fakeNative) TransceiverMid(t uintptr) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transceivers[t].mid
}

func (f *fakeNative) TransceiverDirection(t uintptr) ffi.TransceiverDirection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transceivers[t].dir
}

func (f *fakeNative) SetTransceiverDirection(t uintptr, d ffi.TransceiverDirection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transceivers[t].dir = d
	return nil
}

func (f *fakeNative) StopTransceiver(t uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transceivers[t].stopped = true
	f.transceivers[t].dir = ffi.TransceiverDirectionStopped
	return nil
}

func (f *fakeNative) TransceiverSender(t uintptr) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transceivers[t].sender
}

func (f *fakeNative) TransceiverReceiver(t uintptr) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transceivers[t].receiver
}

func (f *fakeNative) ReplaceTrack(sender, track uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("replace %d %d", sender, track)
	return nil
}

func (f *fakeNative) ReceiverTrack(receiver uintptr) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiverOf[receiver]
}

func (f *fakeNative) TrackKind(track uintptr) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tracks[track]; ok {
		return t.kind
	}
	return ""
}

func (f *fakeNative) TrackID(track uintptr) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tracks[track]; ok {
		return t.id
	}
	return ""
}

func (f *fakeNative) SetAudioSink(track uintptr, cb ffi.AudioFrameCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[track].audio = cb
	return nil
}

func (f *fakeNative) SetVideoSink(track uintptr, cb ffi.VideoFrameCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[track].video = cb
	return nil
}

func (f *fakeNative) RemoveAudioSink(track uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[track].audio = nil
}

func (f *fakeNative) RemoveVideoSink(track uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[track].video = nil
}

func (f *fakeNative) PeerStats(uintptr) (ffi.RTCStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peerStats, nil
}

func (f *fakeNative) SenderStats(uintptr) (ffi.RTCStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.senderStats, nil
}

func (f *fakeNative) ReceiverStats(uintptr) (ffi.RTCStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recvStats, nil
}

func (f *fakeNative) EnumerateDevices() ([]ffi.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, nil
}

func (f *fakeNative) EnumerateScreens() ([]ffi.ScreenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screens, nil
}
