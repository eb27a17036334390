package session

import (
	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// videoSink is a renderer attached to a registered video track.
type videoSink struct {
	id     VideoSinkID
	track  trackKey
	native engine.VideoTrack
	sink   engine.VideoSink
}

func (s *videoSink) detach() {
	s.native.RemoveSink(s.sink)
}

// VideoFrameHandler receives frames of a video sink.
type VideoFrameHandler func(f *engine.VideoFrame)

type handlerSink struct {
	fn VideoFrameHandler
}

func (s *handlerSink) OnFrame(f *engine.VideoFrame) { s.fn(f) }

// NewVideoSink wraps fn as an engine.VideoSink.
func NewVideoSink(fn VideoFrameHandler) engine.VideoSink {
	return &handlerSink{fn: fn}
}

// CreateVideoSink attaches sink to a video track under id.
func (r *Registry) CreateVideoSink(id VideoSinkID, origin TrackOrigin, trackID TrackID, sink engine.VideoSink) error {
	if sink == nil {
		return errors.Wrap(ErrInvalidArgument, "nil video sink")
	}
	return r.guard(func() error {
		if _, ok := r.videoSinks[id]; ok {
			return errors.Wrapf(ErrAlreadyExists, "video sink %d", id)
		}
		t, err := r.lookupTrack(origin, trackID, MediaKindVideo)
		if err != nil {
			return err
		}
		vt := t.(*videoTrack)
		s := &videoSink{id: id, track: vt.key(), native: vt.native, sink: sink}
		vt.native.AddSink(sink)
		r.videoSinks[id] = s
		return nil
	})
}

// DisposeVideoSink detaches a video sink. Unknown ids are ignored.
func (r *Registry) DisposeVideoSink(id VideoSinkID) error {
	return r.guard(func() error {
		s, ok := r.videoSinks[id]
		if !ok {
			return nil
		}
		s.detach()
		delete(r.videoSinks, id)
		return nil
	})
}
