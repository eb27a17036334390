package pionengine

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

type transceiver struct {
	raw      *webrtc.RTPTransceiver
	sender   *sender
	receiver *receiver

	mu      sync.Mutex
	stopped bool
}

var _ engine.Transceiver = (*transceiver)(nil)

func newTransceiver(raw *webrtc.RTPTransceiver) *transceiver {
	tr := &transceiver{raw: raw, receiver: &receiver{}}
	tr.sender = &sender{tr: tr}
	return tr
}

func (t *transceiver) Mid() string { return t.raw.Mid() }

func (t *transceiver) Kind() engine.MediaKind { return fromPionKind(t.raw.Kind()) }

func (t *transceiver) Direction() engine.TransceiverDirection {
	if t.Stopped() {
		return engine.TransceiverDirectionStopped
	}
	return fromPionDirection(t.raw.Direction())
}

// SetDirection only accepts the current direction or stopped; pion fixes
// the direction of a transceiver when it is created.
func (t *transceiver) SetDirection(d engine.TransceiverDirection) error {
	if d == engine.TransceiverDirectionStopped {
		return t.Stop()
	}
	if t.Stopped() {
		return errors.Wrap(engine.ErrClosed, "transceiver stopped")
	}
	if d == t.Direction() {
		return nil
	}
	return errors.Wrapf(engine.ErrNotSupported, "change direction %s to %s", t.Direction(), d)
}

func (t *transceiver) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	t.sender.forget()
	return t.raw.Stop()
}

func (t *transceiver) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *transceiver) Sender() engine.Sender { return t.sender }

func (t *transceiver) Receiver() engine.Receiver { return t.receiver }

type sender struct {
	tr *transceiver

	mu    sync.Mutex
	track *localTrack
}

func (s *sender) Track() engine.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return nil
	}
	return s.track.self
}

func (s *sender) ReplaceTrack(t engine.Track) error {
	var lt *localTrack
	if t != nil {
		owner, ok := t.(localTrackOwner)
		if !ok {
			return engine.ErrForeignTrack
		}
		lt = owner.local()
	}

	raw := s.tr.raw.Sender()
	if raw == nil {
		if lt == nil {
			return nil
		}
		return errors.Wrap(engine.ErrNotSupported, "receive-only transceiver has no sender")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lt == nil {
		if err := raw.ReplaceTrack(nil); err != nil {
			return err
		}
		s.track = nil
		return nil
	}
	if err := raw.ReplaceTrack(lt.sample); err != nil {
		return err
	}
	s.track = lt
	return nil
}

func (s *sender) forget() {
	s.mu.Lock()
	s.track = nil
	s.mu.Unlock()
}

type receiver struct {
	mu    sync.Mutex
	track engine.Track
}

func (r *receiver) Track() engine.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.track
}

func (r *receiver) setTrack(t *remoteTrack) {
	r.mu.Lock()
	r.track = t.typed()
	r.mu.Unlock()
}
