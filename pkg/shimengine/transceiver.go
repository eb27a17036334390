package shimengine

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

type transceiver struct {
	lib      native
	handle   uintptr
	sender   *sender
	receiver *receiver

	mu        sync.Mutex
	kind      engine.MediaKind
	kindKnown bool
	stopped   bool
}

var _ engine.Transceiver = (*transceiver)(nil)

func newTransceiver(lib native, handle uintptr) *transceiver {
	tr := &transceiver{lib: lib, handle: handle, receiver: &receiver{}}
	tr.sender = &sender{lib: lib, handle: lib.TransceiverSender(handle)}
	return tr
}

func (t *transceiver) setKind(k engine.MediaKind) {
	t.mu.Lock()
	t.kind, t.kindKnown = k, true
	t.mu.Unlock()
}

func (t *transceiver) Mid() string { return t.lib.TransceiverMid(t.handle) }

// Kind is known for locally added transceivers. Transceivers created by a
// remote offer take it from their receiver track.
func (t *transceiver) Kind() engine.MediaKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.kindKnown {
		return t.kind
	}
	recv := t.lib.TransceiverReceiver(t.handle)
	if recv == 0 {
		return engine.MediaKindAudio
	}
	if k, ok := fromShimKind(t.lib.TrackKind(t.lib.ReceiverTrack(recv))); ok {
		t.kind, t.kindKnown = k, true
	}
	return t.kind
}

func (t *transceiver) Direction() engine.TransceiverDirection {
	if t.Stopped() {
		return engine.TransceiverDirectionStopped
	}
	return fromShimDirection(t.lib.TransceiverDirection(t.handle))
}

func (t *transceiver) SetDirection(d engine.TransceiverDirection) error {
	if d == engine.TransceiverDirectionStopped {
		return t.Stop()
	}
	if t.Stopped() {
		return errors.Wrap(engine.ErrClosed, "transceiver stopped")
	}
	return errors.Wrapf(t.lib.SetTransceiverDirection(t.handle, toShimDirection(d)), "set direction %s", d)
}

func (t *transceiver) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	return errors.Wrap(t.lib.StopTransceiver(t.handle), "stop transceiver")
}

func (t *transceiver) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *transceiver) Sender() engine.Sender { return t.sender }

func (t *transceiver) Receiver() engine.Receiver { return t.receiver }

// sender never holds a track: the shim engine creates no local tracks, so
// only detaching is meaningful.
type sender struct {
	lib    native
	handle uintptr
}

func (s *sender) Track() engine.Track { return nil }

func (s *sender) ReplaceTrack(t engine.Track) error {
	if t != nil {
		return engine.ErrForeignTrack
	}
	if s.handle == 0 {
		return nil
	}
	return errors.Wrap(s.lib.ReplaceTrack(s.handle, 0), "detach sender")
}

type receiver struct {
	mu    sync.Mutex
	track *remoteTrack
}

func (r *receiver) Track() engine.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.track == nil {
		return nil
	}
	return r.track.typed()
}

func (r *receiver) setTrack(t *remoteTrack) {
	r.mu.Lock()
	r.track = t
	r.mu.Unlock()
}

func (r *receiver) remote() *remoteTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.track
}
