package testutil

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// FakePeerConnection is the engine.PeerConnection of FakeEngine. Every
// asynchronous call is appended to a journal in issue order; completions
// run inline or, in CompleteOnRelease mode, when the test releases them.
type FakePeerConnection struct {
	Config engine.Configuration

	obs  engine.Observer
	mode CompletionMode

	mu           sync.Mutex
	failures     map[string]error
	panics       map[string]bool
	held         []func()
	transceivers []*FakeTransceiver
	journal      []string
	nextMid      int
	nextRecv     int
	closed       bool
	restarts     int
	offers       int
	local        *engine.SessionDescription
	remote       *engine.SessionDescription
	stats        []engine.Stats
}

var _ engine.PeerConnection = (*FakePeerConnection)(nil)

// Fail makes op fail with err; a nil err clears it. Asynchronous ops
// complete with the error. "add-ice-candidate:<candidate>" fails a single
// candidate.
func (pc *FakePeerConnection) Fail(op string, err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err == nil {
		delete(pc.failures, op)
		return
	}
	pc.failures[op] = err
}

// PanicOn makes the synchronous op panic when called.
func (pc *FakePeerConnection) PanicOn(op string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.panics == nil {
		pc.panics = make(map[string]bool)
	}
	pc.panics[op] = true
}

// SetStats sets the records returned by GetStats.
func (pc *FakePeerConnection) SetStats(stats ...engine.Stats) {
	pc.mu.Lock()
	pc.stats = stats
	pc.mu.Unlock()
}

// Observer returns the observer the connection was created with.
func (pc *FakePeerConnection) Observer() engine.Observer { return pc.obs }

// Journal returns the recorded operations in order.
func (pc *FakePeerConnection) Journal() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]string(nil), pc.journal...)
}

// Held returns the number of completions waiting for Release.
func (pc *FakePeerConnection) Held() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.held)
}

// Release runs every held completion in issue order and returns how many
// ran. Completions issued while releasing are held for the next call.
func (pc *FakePeerConnection) Release() int {
	pc.mu.Lock()
	held := pc.held
	pc.held = nil
	pc.mu.Unlock()

	for _, fn := range held {
		fn()
	}
	return len(held)
}

// ReleaseOne runs the oldest held completion. It reports false when none
// is held.
func (pc *FakePeerConnection) ReleaseOne() bool {
	pc.mu.Lock()
	if len(pc.held) == 0 {
		pc.mu.Unlock()
		return false
	}
	fn := pc.held[0]
	pc.held = pc.held[1:]
	pc.mu.Unlock()

	fn()
	return true
}

// Closed reports whether Close was called.
func (pc *FakePeerConnection) Closed() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

// ICERestarts returns how many times RestartICE was called.
func (pc *FakePeerConnection) ICERestarts() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.restarts
}

// RemoteDescription returns the applied remote description, or nil.
func (pc *FakePeerConnection) RemoteDescription() *engine.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.remote
}

// LocalDescription returns the applied local description, or nil.
func (pc *FakePeerConnection) LocalDescription() *engine.SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.local
}

// FakeTransceivers returns the transceivers with their concrete type.
func (pc *FakePeerConnection) FakeTransceivers() []*FakeTransceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*FakeTransceiver(nil), pc.transceivers...)
}

// FireTrack adds a negotiated recvonly transceiver carrying a remote track
// with id trackID and reports it to the observer.
func (pc *FakePeerConnection) FireTrack(kind engine.MediaKind, trackID string) *FakeTransceiver {
	pc.mu.Lock()
	tr := &FakeTransceiver{
		kind:     kind,
		sender:   &FakeSender{},
		receiver: &FakeReceiver{track: NewFakeTrack(trackID, kind, nil)},
		dir:      engine.TransceiverDirectionRecvOnly,
		mid:      strconv.Itoa(pc.nextMid),
	}
	pc.nextMid++
	pc.transceivers = append(pc.transceivers, tr)
	pc.mu.Unlock()

	pc.obs.OnTrack(tr)
	return tr
}

// issue records op and runs or holds its completion.
func (pc *FakePeerConnection) issue(op string, complete func()) {
	pc.mu.Lock()
	pc.journal = append(pc.journal, op)
	if pc.mode == CompleteOnRelease {
		pc.held = append(pc.held, complete)
		pc.mu.Unlock()
		return
	}
	pc.mu.Unlock()
	complete()
}

// outcome returns the error op completes with. Must hold pc.mu.
func (pc *FakePeerConnection) outcome(op string) error {
	if pc.closed {
		return engine.ErrClosed
	}
	return pc.failures[op]
}

func (pc *FakePeerConnection) checkPanic(op string) {
	pc.mu.Lock()
	p := pc.panics[op]
	pc.mu.Unlock()
	if p {
		panic(fmt.Sprintf("fake engine: %s", op))
	}
}

// assignMids gives every transceiver without a mid the next one. Must hold
// pc.mu.
func (pc *FakePeerConnection) assignMids() {
	for _, tr := range pc.transceivers {
		if tr.Mid() != "" {
			continue
		}
		tr.setMid(strconv.Itoa(pc.nextMid))
		pc.nextMid++
	}
}

func (pc *FakePeerConnection) CreateOffer(opts engine.OfferOptions, done func(engine.SessionDescription, error)) {
	pc.issue("create-offer", func() {
		pc.mu.Lock()
		err := pc.outcome("create-offer")
		pc.offers++
		n := pc.offers
		pc.mu.Unlock()
		if err != nil {
			done(engine.SessionDescription{}, err)
			return
		}
		done(engine.SessionDescription{
			Type: engine.SDPTypeOffer,
			SDP:  fmt.Sprintf("v=0\r\no=fake %d 1 IN IP4 0.0.0.0\r\ns=offer restart=%t\r\n", n, opts.ICERestart),
		}, nil)
	})
}

func (pc *FakePeerConnection) CreateAnswer(_ engine.AnswerOptions, done func(engine.SessionDescription, error)) {
	pc.issue("create-answer", func() {
		pc.mu.Lock()
		err := pc.outcome("create-answer")
		pc.mu.Unlock()
		if err != nil {
			done(engine.SessionDescription{}, err)
			return
		}
		done(engine.SessionDescription{
			Type: engine.SDPTypeAnswer,
			SDP:  "v=0\r\no=fake 0 1 IN IP4 0.0.0.0\r\ns=answer\r\n",
		}, nil)
	})
}

func (pc *FakePeerConnection) SetLocalDescription(desc engine.SessionDescription, done func(error)) {
	pc.issue("set-local-description", func() {
		pc.mu.Lock()
		err := pc.outcome("set-local-description")
		if err == nil {
			pc.local = &desc
			pc.assignMids()
		}
		pc.mu.Unlock()
		done(err)
	})
}

func (pc *FakePeerConnection) SetRemoteDescription(desc engine.SessionDescription, done func(error)) {
	pc.issue("set-remote-description", func() {
		pc.mu.Lock()
		err := pc.outcome("set-remote-description")
		if err == nil {
			pc.remote = &desc
			pc.assignMids()
			pc.journal = append(pc.journal, "set-remote-description:done")
		}
		pc.mu.Unlock()
		done(err)
	})
}

func (pc *FakePeerConnection) AddICECandidate(c engine.ICECandidate, done func(error)) {
	pc.issue("add-ice-candidate:"+c.Candidate, func() {
		pc.mu.Lock()
		err := pc.outcome("add-ice-candidate")
		if err == nil {
			err = pc.failures["add-ice-candidate:"+c.Candidate]
		}
		if err == nil && pc.remote == nil {
			err = fmt.Errorf("candidate %q added without remote description", c.Candidate)
		}
		if err == nil {
			pc.journal = append(pc.journal, "ice-applied:"+c.Candidate)
		}
		pc.mu.Unlock()
		done(err)
	})
}

func (pc *FakePeerConnection) GetStats(done func([]engine.Stats, error)) {
	pc.issue("get-stats", func() {
		pc.mu.Lock()
		err := pc.outcome("get-stats")
		stats := append([]engine.Stats(nil), pc.stats...)
		pc.mu.Unlock()
		if err != nil {
			done(nil, err)
			return
		}
		done(stats, nil)
	})
}

func (pc *FakePeerConnection) AddTransceiver(kind engine.MediaKind, init engine.TransceiverInit) (engine.Transceiver, error) {
	pc.checkPanic("add-transceiver")

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.outcome("add-transceiver"); err != nil {
		return nil, err
	}
	pc.nextRecv++
	tr := &FakeTransceiver{
		kind:     kind,
		sender:   &FakeSender{},
		receiver: &FakeReceiver{track: NewFakeTrack(fmt.Sprintf("receiver-%d", pc.nextRecv), kind, nil)},
		dir:      init.Direction,
	}
	pc.transceivers = append(pc.transceivers, tr)
	pc.journal = append(pc.journal, "add-transceiver:"+kind.String())
	return tr, nil
}

func (pc *FakePeerConnection) Transceivers() ([]engine.Transceiver, error) {
	pc.checkPanic("transceivers")

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.failures["transceivers"]; err != nil {
		return nil, err
	}
	out := make([]engine.Transceiver, len(pc.transceivers))
	for i, tr := range pc.transceivers {
		out[i] = tr
	}
	return out, nil
}

func (pc *FakePeerConnection) RestartICE() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.outcome("restart-ice"); err != nil {
		return err
	}
	pc.restarts++
	return nil
}

// Close ends every receiver track.
func (pc *FakePeerConnection) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	pc.journal = append(pc.journal, "close")
	err := pc.failures["close"]
	var remote []*FakeTrack
	for _, tr := range pc.transceivers {
		if t := tr.receiver.track; t != nil {
			remote = append(remote, t)
		}
	}
	pc.mu.Unlock()

	for _, t := range remote {
		t.End()
	}
	return err
}
