// Package ffi binds the libwebrtc shim through purego. Nothing here needs
// cgo: the library is opened at runtime and its exports are registered as
// Go function variables.
package ffi

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// ShimPathEnv overrides the library search.
const ShimPathEnv = "LIBWEBRTC_SHIM_PATH"

// ExpectedShimVersion is the shim API version these bindings target.
const ExpectedShimVersion = "0.2.0"

var (
	ErrLibraryNotLoaded = errors.New("libwebrtc_shim library not loaded")
	ErrLibraryNotFound  = errors.New("libwebrtc_shim library not found")
	ErrMissingSymbol    = errors.New("libwebrtc_shim symbol missing")
	ErrVersionMismatch  = errors.New("shim version mismatch")
)

// Errors reported by shim calls. ShimError maps result codes onto them.
var (
	ErrInvalidParam        = errors.New("invalid parameter")
	ErrInitFailed          = errors.New("initialization failed")
	ErrOutOfMemory         = errors.New("out of memory")
	ErrNotSupported        = errors.New("not supported")
	ErrBufferTooSmall      = errors.New("buffer too small")
	ErrNotFound            = errors.New("not found")
	ErrRenegotiationNeeded = errors.New("renegotiation needed")
	ErrOperationFailed     = errors.New("operation failed")
)

// Shim result codes (C int).
const (
	ShimOK                     int32 = 0
	ShimErrInvalidParam        int32 = -1
	ShimErrInitFailed          int32 = -2
	ShimErrOutOfMemory         int32 = -5
	ShimErrNotSupported        int32 = -6
	ShimErrBufferTooSmall      int32 = -8
	ShimErrNotFound            int32 = -9
	ShimErrRenegotiationNeeded int32 = -10
	ShimErrOperationFailed     int32 = -11
)

var shimErrors = map[int32]error{
	ShimErrInvalidParam:        ErrInvalidParam,
	ShimErrInitFailed:          ErrInitFailed,
	ShimErrOutOfMemory:         ErrOutOfMemory,
	ShimErrNotSupported:        ErrNotSupported,
	ShimErrBufferTooSmall:      ErrBufferTooSmall,
	ShimErrNotFound:            ErrNotFound,
	ShimErrRenegotiationNeeded: ErrRenegotiationNeeded,
	ShimErrOperationFailed:     ErrOperationFailed,
}

// ShimError converts a shim result code to an error; ShimOK is nil.
func ShimError(code int32) error {
	if code == ShimOK {
		return nil
	}
	if err, ok := shimErrors[code]; ok {
		return err
	}
	return errors.Errorf("unknown shim error: %d", code)
}

// loader owns the process-wide library handle. The shim keeps global state,
// so it is opened at most once.
type loader struct {
	mu     sync.Mutex
	handle uintptr
	loaded atomic.Bool
}

var lib loader

func (l *loader) open(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded.Load() {
		return nil
	}

	if path == "" {
		found, ok := locateLibrary()
		if !ok {
			return errors.Wrapf(ErrLibraryNotFound, "set %s or place %s under lib/%s",
				ShimPathEnv, libraryName(runtime.GOOS), platformDir())
		}
		path = found
	}

	handle, err := dlopenLibrary(path)
	if err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	if err := registerFunctions(handle); err != nil {
		_ = dlcloseLibrary(handle)
		return err
	}
	l.handle = handle
	l.loaded.Store(true)
	return nil
}

func (l *loader) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded.Swap(false) {
		return nil
	}
	h := l.handle
	l.handle = 0
	return dlcloseLibrary(h)
}

// LoadLibrary opens the shim and binds its exports. With an empty path it
// tries LIBWEBRTC_SHIM_PATH, then lib/<os>_<arch>/ beside the executable,
// then the same directory under the working directory and its two parents.
// Loading twice is a no-op.
func LoadLibrary(path string) error { return lib.open(path) }

// IsLoaded reports whether the shim is loaded.
func IsLoaded() bool { return lib.loaded.Load() }

// Close unloads the shim.
func Close() error { return lib.close() }

// ShimVersion returns the shim API version, or "" when not loaded.
func ShimVersion() string {
	if !IsLoaded() {
		return ""
	}
	return GoString(unsafe.Pointer(shimVersion()))
}

// LibWebRTCVersion returns the libwebrtc milestone the shim was built from.
func LibWebRTCVersion() string {
	if !IsLoaded() {
		return ""
	}
	return GoString(unsafe.Pointer(shimLibwebrtcVersion()))
}

// CheckVersion fails when the loaded shim speaks another API version.
func CheckVersion() error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	if v := ShimVersion(); v != ExpectedShimVersion {
		return errors.Wrapf(ErrVersionMismatch, "have %q, want %q", v, ExpectedShimVersion)
	}
	return nil
}

func locateLibrary() (string, bool) {
	if p := os.Getenv(ShimPathEnv); p != "" && exists(p) {
		return p, true
	}
	for _, p := range candidatePaths() {
		if !exists(p) {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs, true
		}
		return p, true
	}
	return "", false
}

func candidatePaths() []string {
	rel := filepath.Join("lib", platformDir(), libraryName(runtime.GOOS))

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd, filepath.Join(wd, ".."), filepath.Join(wd, "..", ".."))
	}

	paths := make([]string, 0, len(dirs))
	for _, d := range dirs {
		paths = append(paths, filepath.Join(d, rel))
	}
	return paths
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func platformDir() string { return runtime.GOOS + "_" + runtime.GOARCH }

func libraryName(goos string) string {
	switch goos {
	case "darwin":
		return "libwebrtc_shim.dylib"
	case "windows":
		return "libwebrtc_shim.dll"
	default:
		return "libwebrtc_shim.so"
	}
}
