package session

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a peer, track, transceiver index or
	// sink does not exist. The returned error names what was missing.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned when the engine did not complete an
	// operation within the bridge timeout. The native operation is not
	// cancelled.
	ErrTimeout = errors.New("timed out waiting for engine")

	// ErrNativeFailure matches every *NativeError.
	ErrNativeFailure = errors.New("native engine failure")

	// ErrLockPoisoned is returned by every operation after a panic
	// escaped a registry critical section. The registry cannot be used
	// any more.
	ErrLockPoisoned = errors.New("registry lock poisoned")

	ErrPeerConnectionClosed = errors.New("peer connection closed")
	ErrRegistryClosed       = errors.New("registry closed")
	ErrNoDevice             = errors.New("no capture device available")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// NativeError carries an engine-reported failure message verbatim.
type NativeError struct {
	Op      string
	Message string
	cause   error
}

func newNativeError(op string, err error) *NativeError {
	return &NativeError{Op: op, Message: err.Error(), cause: err}
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Is makes errors.Is(err, ErrNativeFailure) hold for native errors.
func (e *NativeError) Is(target error) bool {
	return target == ErrNativeFailure
}

func (e *NativeError) Unwrap() error {
	return e.cause
}

// GetMediaError reports which constraint of a GetMedia call failed. Tracks
// created for the other constraints have already been disposed.
type GetMediaError struct {
	Kind MediaKind
	Err  error
}

func (e *GetMediaError) Error() string {
	return fmt.Sprintf("get media %s: %v", e.Kind, e.Err)
}

func (e *GetMediaError) Unwrap() error {
	return e.Err
}

func notFound(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}
