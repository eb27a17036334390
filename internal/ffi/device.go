package ffi

import "unsafe"

// DeviceInfo describes a capture or playout device known to the shim.
type DeviceInfo struct {
	DeviceID string
	Label    string
	Kind     DeviceKind
}

// ScreenInfo describes a screen or window available for capture.
type ScreenInfo struct {
	ID       int64
	Title    string
	IsWindow bool
}

const (
	maxDevices = 64
	maxScreens = 64
)

// EnumerateDevices lists cameras, microphones and speakers.
func EnumerateDevices() ([]DeviceInfo, error) {
	if !IsLoaded() {
		return nil, ErrLibraryNotLoaded
	}

	raw := make([]shimDeviceInfo, maxDevices)
	var count int32
	result := shimEnumerateDevices(uintptr(unsafe.Pointer(&raw[0])), maxDevices, Int32Ptr(&count))
	if err := ShimError(result); err != nil {
		return nil, err
	}

	n := clampCount(count, maxDevices)
	out := make([]DeviceInfo, 0, n)
	for _, d := range raw[:n] {
		out = append(out, DeviceInfo{
			DeviceID: CStringToGo(d.DeviceID[:]),
			Label:    CStringToGo(d.Label[:]),
			Kind:     DeviceKind(d.Kind),
		})
	}
	return out, nil
}

// EnumerateScreens lists capturable screens and windows.
func EnumerateScreens() ([]ScreenInfo, error) {
	if !IsLoaded() {
		return nil, ErrLibraryNotLoaded
	}

	raw := make([]shimScreenInfo, maxScreens)
	var count int32
	result := shimEnumerateScreens(uintptr(unsafe.Pointer(&raw[0])), maxScreens, Int32Ptr(&count))
	if err := ShimError(result); err != nil {
		return nil, err
	}

	n := clampCount(count, maxScreens)
	out := make([]ScreenInfo, 0, n)
	for _, s := range raw[:n] {
		out = append(out, ScreenInfo{
			ID:       s.ID,
			Title:    CStringToGo(s.Title[:]),
			IsWindow: s.IsWindow != 0,
		})
	}
	return out, nil
}

func clampCount(n int32, limit int) int {
	switch {
	case n < 0:
		return 0
	case int(n) > limit:
		return limit
	default:
		return int(n)
	}
}
