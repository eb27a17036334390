package engine

import "time"

// VideoFrame is a decoded I420 frame delivered to video sinks.
type VideoFrame struct {
	Width  int
	Height int

	// Y, U and V planes.
	Data [3][]byte

	// Bytes per row for each plane.
	Stride [3]int

	// Timestamp is the capture or render time of the frame.
	Timestamp time.Duration

	// Rotation in degrees (0, 90, 180, 270).
	Rotation int
}

// NewI420Frame allocates a frame with tightly packed planes.
func NewI420Frame(width, height int) *VideoFrame {
	uvWidth := (width + 1) / 2
	uvHeight := (height + 1) / 2
	uvSize := uvWidth * uvHeight

	return &VideoFrame{
		Width:  width,
		Height: height,
		Data: [3][]byte{
			make([]byte, width*height),
			make([]byte, uvSize),
			make([]byte, uvSize),
		},
		Stride: [3]int{width, uvWidth, uvWidth},
	}
}

// Clone returns a deep copy of the frame. Sinks that keep a frame past
// OnFrame must clone it.
func (f *VideoFrame) Clone() *VideoFrame {
	c := *f
	for i, plane := range f.Data {
		c.Data[i] = append([]byte(nil), plane...)
	}
	return &c
}
