package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// requestKind tags the engine operation a bridge is waiting for.
type requestKind int

const (
	requestCreateOffer requestKind = iota
	requestCreateAnswer
	requestSetLocalDescription
	requestSetRemoteDescription
	requestAddICECandidate
	requestGetStats
)

func (k requestKind) String() string {
	switch k {
	case requestCreateOffer:
		return "create-offer"
	case requestCreateAnswer:
		return "create-answer"
	case requestSetLocalDescription:
		return "set-local-description"
	case requestSetRemoteDescription:
		return "set-remote-description"
	case requestAddICECandidate:
		return "add-ice-candidate"
	case requestGetStats:
		return "get-stats"
	default:
		return "unknown"
	}
}

type bridgeResult[T any] struct {
	val T
	err error
}

// bridge turns one engine completion callback into a value a caller can
// wait for. The first completion wins; later ones are ignored. Completing
// never blocks, whether or not anyone is still waiting.
type bridge[T any] struct {
	kind      requestKind
	peer      PeerConnectionID
	ch        chan bridgeResult[T]
	once      sync.Once
	abandoned atomic.Bool
	started   time.Time

	m   *metrics
	log *logrus.Entry
}

func newBridge[T any](kind requestKind, peer PeerConnectionID, m *metrics, log *logrus.Entry) *bridge[T] {
	return &bridge[T]{
		kind:    kind,
		peer:    peer,
		ch:      make(chan bridgeResult[T], 1),
		started: time.Now(),
		m:       m,
		log:     log,
	}
}

// complete resolves the bridge. It is safe to call from any goroutine.
func (b *bridge[T]) complete(val T, err error) {
	b.once.Do(func() {
		b.ch <- bridgeResult[T]{val: val, err: err}
		if b.abandoned.Load() {
			b.m.lateCompletion.WithLabelValues(b.kind.String()).Inc()
			b.log.WithFields(logrus.Fields{
				"peer":    b.peer,
				"request": b.kind.String(),
				"after":   time.Since(b.started),
				"failed":  err != nil,
			}).Debug("discarding late engine completion")
		}
	})
}

// completeErr adapts the bridge to completions that carry no value.
func (b *bridge[T]) completeErr(err error) {
	var zero T
	b.complete(zero, err)
}

// wait blocks until the bridge completes, timeout elapses or ctx is done.
// Engine errors are returned as *NativeError.
func (b *bridge[T]) wait(ctx context.Context, timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case res := <-b.ch:
		b.m.bridgeWait.WithLabelValues(b.kind.String()).Observe(time.Since(b.started).Seconds())
		if res.err != nil {
			b.m.nativeFailures.WithLabelValues(b.kind.String()).Inc()
			return zero, newNativeError(b.kind.String(), res.err)
		}
		return res.val, nil
	case <-timer.C:
		b.abandoned.Store(true)
		b.m.bridgeTimeouts.WithLabelValues(b.kind.String()).Inc()
		return zero, errors.Wrapf(ErrTimeout, "%s on peer %d after %s", b.kind, b.peer, timeout)
	case <-ctx.Done():
		b.abandoned.Store(true)
		return zero, errors.Wrapf(ctx.Err(), "%s on peer %d", b.kind, b.peer)
	}
}
