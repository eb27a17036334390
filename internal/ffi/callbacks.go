package ffi

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Entry]

func init() {
	logger.Store(logrus.WithField("component", "ffi"))
}

// SetLogger replaces the logger used for recovered callback panics.
func SetLogger(l *logrus.Entry) {
	if l != nil {
		logger.Store(l)
	}
}

// safeCallback runs fn and recovers a panic so it never unwinds through
// C stack frames.
func safeCallback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Load().WithFields(logrus.Fields{
				"callback": name,
				"panic":    r,
			}).Error("panic recovered in shim callback")
		}
	}()
	fn()
}

// callbackTable maps the ctx value handed to the shim back to a Go callback.
// purego callbacks cannot capture state, so one trampoline per callback kind
// dispatches through a table.
type callbackTable[F any] struct {
	mu sync.RWMutex
	m  map[uintptr]F
}

func newCallbackTable[F any]() *callbackTable[F] {
	return &callbackTable[F]{m: make(map[uintptr]F)}
}

func (t *callbackTable[F]) set(ctx uintptr, fn F) {
	t.mu.Lock()
	t.m[ctx] = fn
	t.mu.Unlock()
}

func (t *callbackTable[F]) get(ctx uintptr) (F, bool) {
	t.mu.RLock()
	fn, ok := t.m[ctx]
	t.mu.RUnlock()
	return fn, ok
}

func (t *callbackTable[F]) remove(ctx uintptr) {
	t.mu.Lock()
	delete(t.m, ctx)
	t.mu.Unlock()
}

func (t *callbackTable[F]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// trampoline lazily creates one purego callback. purego keeps a fixed number
// of callback slots per process, so they are never released.
type trampoline struct {
	once  sync.Once
	ptr   uintptr
	build func() uintptr
}

func (t *trampoline) get() uintptr {
	t.once.Do(func() { t.ptr = t.build() })
	return t.ptr
}

// StateCallback receives a shim state enum value.
type StateCallback func(state int)

// ICECandidate is a gathered local candidate.
type ICECandidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
}

// ICECandidateCallback receives gathered candidates.
type ICECandidateCallback func(c ICECandidate)

// NegotiationNeededCallback is called when renegotiation is required.
type NegotiationNeededCallback func()

// OnTrackCallback is called when a remote track arrives. streams is the
// comma separated list of stream ids.
type OnTrackCallback func(track, receiver uintptr, streams string)

// VideoFrameCallback receives decoded I420 frames from a remote track.
type VideoFrameCallback func(width, height int, yPlane, uPlane, vPlane []byte, yStride, uStride, vStride int, timestampUs int64)

// AudioFrameCallback receives interleaved S16 samples from a remote track.
type AudioFrameCallback func(samples []int16, sampleRate, channels int, timestampUs int64)

var (
	signalingStateCallbacks     = newCallbackTable[StateCallback]()
	iceConnectionStateCallbacks = newCallbackTable[StateCallback]()
	connectionStateCallbacks    = newCallbackTable[StateCallback]()
	iceGatheringStateCallbacks  = newCallbackTable[StateCallback]()
	iceCandidateCallbacks       = newCallbackTable[ICECandidateCallback]()
	negotiationNeededCallbacks  = newCallbackTable[NegotiationNeededCallback]()
	onTrackCallbacks            = newCallbackTable[OnTrackCallback]()
	videoCallbacks              = newCallbackTable[VideoFrameCallback]()
	audioCallbacks              = newCallbackTable[AudioFrameCallback]()
)

func stateTrampoline(name string, table *callbackTable[StateCallback]) *trampoline {
	return &trampoline{build: func() uintptr {
		// C passes the state as a 32-bit int.
		return purego.NewCallback(func(ctx uintptr, state int32) {
			if cb, ok := table.get(ctx); ok && cb != nil {
				safeCallback(name, func() { cb(int(state)) })
			}
		})
	}}
}

var (
	signalingStateTrampoline     = stateTrampoline("signaling_state", signalingStateCallbacks)
	iceConnectionStateTrampoline = stateTrampoline("ice_connection_state", iceConnectionStateCallbacks)
	connectionStateTrampoline    = stateTrampoline("connection_state", connectionStateCallbacks)
	iceGatheringStateTrampoline  = stateTrampoline("ice_gathering_state", iceGatheringStateCallbacks)

	iceCandidateTrampoline = &trampoline{build: func() uintptr {
		return purego.NewCallback(func(ctx uintptr, candidatePtr uintptr) {
			cb, ok := iceCandidateCallbacks.get(ctx)
			if !ok || cb == nil || candidatePtr == 0 {
				return
			}
			c := readICECandidate(candidatePtr)
			safeCallback("ice_candidate", func() { cb(c) })
		})
	}}

	negotiationNeededTrampoline = &trampoline{build: func() uintptr {
		return purego.NewCallback(func(ctx uintptr) {
			if cb, ok := negotiationNeededCallbacks.get(ctx); ok && cb != nil {
				safeCallback("negotiation_needed", cb)
			}
		})
	}}

	onTrackTrampoline = &trampoline{build: func() uintptr {
		return purego.NewCallback(func(ctx, track, receiver, streams uintptr) {
			cb, ok := onTrackCallbacks.get(ctx)
			if !ok || cb == nil {
				return
			}
			s := GoString(unsafe.Pointer(streams))
			safeCallback("on_track", func() { cb(track, receiver, s) })
		})
	}}

	videoSinkTrampoline = &trampoline{build: func() uintptr {
		return purego.NewCallback(func(ctx uintptr, width, height int32, yPlane, uPlane, vPlane uintptr, yStride, uStride, vStride int32, timestampUs int64) {
			cb, ok := videoCallbacks.get(ctx)
			if !ok || cb == nil {
				return
			}
			y, u, v, ok := copyI420(width, height, yPlane, uPlane, vPlane, yStride, uStride, vStride)
			if !ok {
				return
			}
			safeCallback("video_sink", func() {
				cb(int(width), int(height), y, u, v, int(yStride), int(uStride), int(vStride), timestampUs)
			})
		})
	}}

	audioSinkTrampoline = &trampoline{build: func() uintptr {
		return purego.NewCallback(func(ctx, samples uintptr, numSamples, sampleRate, channels int32, timestampUs int64) {
			cb, ok := audioCallbacks.get(ctx)
			if !ok || cb == nil {
				return
			}
			pcm, ok := copyPCM(samples, numSamples, channels)
			if !ok {
				return
			}
			safeCallback("audio_sink", func() { cb(pcm, int(sampleRate), int(channels), timestampUs) })
		})
	}}
)

//go:nocheckptr
func readICECandidate(ptr uintptr) ICECandidate {
	raw := (*shimICECandidate)(unsafe.Pointer(ptr))
	return ICECandidate{
		Candidate:     GoString(unsafe.Pointer(raw.Candidate)),
		SDPMid:        GoString(unsafe.Pointer(raw.SDPMid)),
		SDPMLineIndex: int(raw.SDPMLineIndex),
	}
}

const (
	maxFrameDimension = 8192
	maxPlaneStride    = 16384
	maxAudioSamples   = 48000
	maxAudioChannels  = 8
)

// copyI420 copies the planes out of shim memory. Frames with implausible
// geometry are rejected.
//
//go:nocheckptr
func copyI420(width, height int32, yPlane, uPlane, vPlane uintptr, yStride, uStride, vStride int32) (y, u, v []byte, ok bool) {
	if width <= 0 || height <= 0 || width > maxFrameDimension || height > maxFrameDimension {
		return nil, nil, nil, false
	}
	for _, s := range []int32{yStride, uStride, vStride} {
		if s <= 0 || s > maxPlaneStride {
			return nil, nil, nil, false
		}
	}

	uvHeight := (int(height) + 1) / 2
	y = copyPlane(yPlane, int(yStride)*int(height))
	u = copyPlane(uPlane, int(uStride)*uvHeight)
	v = copyPlane(vPlane, int(vStride)*uvHeight)
	return y, u, v, true
}

//go:nocheckptr
func copyPlane(ptr uintptr, size int) []byte {
	out := make([]byte, size)
	if ptr != 0 {
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size))
	}
	return out
}

//go:nocheckptr
func copyPCM(samples uintptr, numSamples, channels int32) ([]int16, bool) {
	if numSamples <= 0 || numSamples > maxAudioSamples || channels <= 0 || channels > maxAudioChannels {
		return nil, false
	}
	total := int(numSamples) * int(channels)
	out := make([]int16, total)
	if samples != 0 {
		copy(out, unsafe.Slice((*int16)(unsafe.Pointer(samples)), total))
	}
	return out, true
}
