package session

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// AudioTrackConstraints selects and configures an audio capture device.
// An empty DeviceID picks the first available microphone.
type AudioTrackConstraints struct {
	DeviceID string
	engine.AudioConstraints
}

// VideoTrackConstraints selects and configures a camera, or a display when
// DisplayID is set. An empty DeviceID picks the first available camera.
type VideoTrackConstraints struct {
	DeviceID  string
	DisplayID string
	engine.VideoConstraints
}

// MediaStreamConstraints requests local tracks. A nil member is not
// requested.
type MediaStreamConstraints struct {
	Audio *AudioTrackConstraints
	Video *VideoTrackConstraints
}

// displaySourceKey keys display capture sources apart from cameras.
func displaySourceKey(id int64) string {
	return "display:" + strconv.FormatInt(id, 10)
}

// EnumerateDevices lists capture and playout devices.
func (r *Registry) EnumerateDevices() ([]engine.DeviceInfo, error) {
	devices, err := r.engine.EnumerateDevices()
	if err != nil {
		return nil, newNativeError("enumerate-devices", err)
	}
	return devices, nil
}

// EnumerateDisplays lists screens and windows available for capture.
func (r *Registry) EnumerateDisplays() ([]engine.DisplayInfo, error) {
	displays, err := r.engine.EnumerateDisplays()
	if err != nil {
		return nil, newNativeError("enumerate-displays", err)
	}
	return displays, nil
}

// GetMedia creates local tracks for the requested constraints, audio first.
// Capture sources are shared per device; every call creates new tracks. If
// any constraint fails, tracks already created by this call are disposed
// and a *GetMediaError is returned.
func (r *Registry) GetMedia(c MediaStreamConstraints) ([]MediaStreamTrack, error) {
	var created []MediaStreamTrack

	if c.Audio != nil {
		t, err := r.createLocalAudioTrack(*c.Audio)
		if err != nil {
			return nil, &GetMediaError{Kind: MediaKindAudio, Err: err}
		}
		created = append(created, t)
	}

	if c.Video != nil {
		t, err := r.createLocalVideoTrack(*c.Video)
		if err != nil {
			r.rollback(created)
			return nil, &GetMediaError{Kind: MediaKindVideo, Err: err}
		}
		created = append(created, t)
	}

	return created, nil
}

func (r *Registry) rollback(tracks []MediaStreamTrack) {
	for _, t := range tracks {
		if err := r.DisposeTrack(t.Origin, t.ID, t.Kind); err != nil {
			r.log.WithField("track", t.ID).WithError(err).Warn("rolling back get media")
		}
	}
}

// resolveDevice returns the device with id, or the first device of kind
// when id is empty.
func (r *Registry) resolveDevice(kind engine.DeviceKind, id string) (engine.DeviceInfo, error) {
	devices, err := r.engine.EnumerateDevices()
	if err != nil {
		return engine.DeviceInfo{}, newNativeError("enumerate-devices", err)
	}
	for _, d := range devices {
		if d.Kind != kind {
			continue
		}
		if id == "" || d.DeviceID == id {
			return d, nil
		}
	}
	if id == "" {
		return engine.DeviceInfo{}, errors.Wrapf(ErrNoDevice, "no %s", kind)
	}
	return engine.DeviceInfo{}, errors.Wrapf(ErrNoDevice, "%s %q", kind, id)
}

func (r *Registry) resolveDisplay(id string) (engine.DisplayInfo, error) {
	displayID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return engine.DisplayInfo{}, errors.Wrapf(ErrInvalidArgument, "display id %q", id)
	}
	displays, err := r.engine.EnumerateDisplays()
	if err != nil {
		return engine.DisplayInfo{}, newNativeError("enumerate-displays", err)
	}
	for _, d := range displays {
		if d.ID == displayID {
			return d, nil
		}
	}
	return engine.DisplayInfo{}, errors.Wrapf(ErrNoDevice, "display %d", displayID)
}

func (r *Registry) createLocalAudioTrack(c AudioTrackConstraints) (MediaStreamTrack, error) {
	dev, err := r.resolveDevice(engine.DeviceKindAudioInput, c.DeviceID)
	if err != nil {
		return MediaStreamTrack{}, err
	}

	id := TrackID(uuid.New().String())
	var out MediaStreamTrack
	err = r.guard(func() error {
		src, err := r.audioSources.acquire(dev.DeviceID, func() (engine.AudioSource, error) {
			return r.engine.NewAudioSource(dev.DeviceID, c.AudioConstraints)
		})
		if err != nil {
			return newNativeError("create-audio-source", err)
		}
		native, err := r.engine.NewAudioTrack(string(id), src.native)
		if err != nil {
			r.audioSources.release(src)
			return newNativeError("create-audio-track", err)
		}

		t := &audioTrack{
			trackBase: trackBase{
				id:       id,
				kind:     MediaKindAudio,
				origin:   LocalOrigin(),
				deviceID: dev.DeviceID,
				label:    dev.Label,
				senders:  make(senderSet),
			},
			native: native,
			source: mediaSource[engine.AudioSource]{local: src},
			levels: newAudioLevelBroadcaster(id, LocalOrigin()),
		}
		r.addAudioTrack(t)
		out = t.snapshot()
		return nil
	})
	return out, err
}

func (r *Registry) createLocalVideoTrack(c VideoTrackConstraints) (MediaStreamTrack, error) {
	var (
		key, label string
		create     func() (engine.VideoSource, error)
	)
	if c.DisplayID != "" {
		d, err := r.resolveDisplay(c.DisplayID)
		if err != nil {
			return MediaStreamTrack{}, err
		}
		key, label = displaySourceKey(d.ID), d.Title
		create = func() (engine.VideoSource, error) {
			return r.engine.NewDisplaySource(d.ID, c.VideoConstraints)
		}
	} else {
		dev, err := r.resolveDevice(engine.DeviceKindVideoInput, c.DeviceID)
		if err != nil {
			return MediaStreamTrack{}, err
		}
		key, label = dev.DeviceID, dev.Label
		create = func() (engine.VideoSource, error) {
			return r.engine.NewVideoSource(dev.DeviceID, c.VideoConstraints)
		}
	}

	id := TrackID(uuid.New().String())
	var out MediaStreamTrack
	err := r.guard(func() error {
		src, err := r.videoSources.acquire(key, create)
		if err != nil {
			return newNativeError("create-video-source", err)
		}
		native, err := r.engine.NewVideoTrack(string(id), src.native)
		if err != nil {
			r.videoSources.release(src)
			return newNativeError("create-video-track", err)
		}

		t := &videoTrack{
			trackBase: trackBase{
				id:       id,
				kind:     MediaKindVideo,
				origin:   LocalOrigin(),
				deviceID: key,
				label:    label,
				senders:  make(senderSet),
			},
			native: native,
			source: mediaSource[engine.VideoSource]{local: src},
		}
		r.addVideoTrack(t)
		out = t.snapshot()
		return nil
	})
	return out, err
}

// Must hold r.mu.
func (r *Registry) addVideoTrack(t *videoTrack) {
	r.videoTracks[t.key()] = t
	r.watchEnded(t)
	r.metrics.trackAdded(t.kind, t.origin)
}

// Must hold r.mu.
func (r *Registry) addAudioTrack(t *audioTrack) {
	r.audioTracks[t.key()] = t
	r.watchEnded(t)
	r.metrics.trackAdded(t.kind, t.origin)
}

// DisposeTrack detaches the track from every sender carrying it, removes it
// and releases its source. Disposing an unknown track is a no-op.
func (r *Registry) DisposeTrack(origin TrackOrigin, id TrackID, kind MediaKind) error {
	var result *multierror.Error
	err := r.guard(func() error {
		t, err := r.lookupTrack(origin, id, kind)
		if err != nil {
			return nil
		}
		b := t.base()
		b.ended = true

		for _, ref := range b.senders.refs() {
			p, ok := r.peers[ref.peer]
			if !ok {
				b.senders.remove(ref.peer, ref.index)
				continue
			}
			if err := r.replaceTrack(p, ref.index, ""); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "detach from peer %d sender %d", ref.peer, ref.index))
				b.senders.remove(ref.peer, ref.index)
			}
		}

		switch t := t.(type) {
		case *videoTrack:
			for sid, s := range r.videoSinks {
				if s.track == b.key() {
					s.detach()
					delete(r.videoSinks, sid)
				}
			}
			delete(r.videoTracks, b.key())
			if t.source.isLocal() {
				t.native.Stop()
				r.videoSources.release(t.source.local)
			}
		case *audioTrack:
			t.levels.setEnabled(false)
			t.native.SetAudioLevelHandler(nil)
			delete(r.audioTracks, b.key())
			if t.source.isLocal() {
				t.native.Stop()
				r.audioSources.release(t.source.local)
			}
			r.updateOutputMuted()
		}
		r.metrics.trackRemoved(kind, origin)
		return nil
	})
	if result != nil {
		r.log.WithFields(logrus.Fields{
			"track":  id,
			"kind":   kind,
			"origin": origin,
		}).WithError(result).Warn("track disposed with errors")
	}
	return err
}

// CloneTrack registers a new track showing the same media. A local clone
// gets its own native track on the shared source. A remote clone is a new
// view of the receiver track currently on the transceiver with the
// original's mid; it is nil when that peer or transceiver is gone.
func (r *Registry) CloneTrack(origin TrackOrigin, id TrackID, kind MediaKind) (*MediaStreamTrack, error) {
	var out *MediaStreamTrack
	err := r.guard(func() error {
		t, err := r.lookupTrack(origin, id, kind)
		if err != nil {
			return err
		}
		cloneID := TrackID(uuid.New().String())
		base := trackBase{
			id:       cloneID,
			kind:     kind,
			origin:   origin,
			deviceID: t.base().deviceID,
			label:    t.base().label,
			senders:  make(senderSet),
		}

		switch t := t.(type) {
		case *videoTrack:
			var native engine.VideoTrack
			if t.source.isLocal() {
				native, err = r.engine.NewVideoTrack(string(cloneID), t.source.local.native)
				if err != nil {
					return newNativeError("create-video-track", err)
				}
				native.SetEnabled(t.native.Enabled())
				r.videoSources.retain(t.source.local)
			} else {
				rt := r.remoteReceiverTrack(t.source.peer, t.source.mid)
				vt, ok := rt.(engine.VideoTrack)
				if !ok {
					return nil
				}
				native = vt
			}
			c := &videoTrack{trackBase: base, native: native, source: t.source}
			r.addVideoTrack(c)
			snap := c.snapshot()
			out = &snap
		case *audioTrack:
			var native engine.AudioTrack
			if t.source.isLocal() {
				native, err = r.engine.NewAudioTrack(string(cloneID), t.source.local.native)
				if err != nil {
					return newNativeError("create-audio-track", err)
				}
				native.SetEnabled(t.native.Enabled())
				r.audioSources.retain(t.source.local)
			} else {
				rt := r.remoteReceiverTrack(t.source.peer, t.source.mid)
				at, ok := rt.(engine.AudioTrack)
				if !ok {
					return nil
				}
				native = at
			}
			c := &audioTrack{
				trackBase: base,
				native:    native,
				source:    t.source,
				levels:    newAudioLevelBroadcaster(cloneID, origin),
			}
			r.addAudioTrack(c)
			snap := c.snapshot()
			out = &snap
		}
		return nil
	})
	return out, err
}

// remoteReceiverTrack re-resolves the receiver track a remote source points
// at. It returns nil when the peer or the transceiver is gone. Must hold
// r.mu.
func (r *Registry) remoteReceiverTrack(peer PeerConnectionID, mid string) engine.Track {
	p, ok := r.peers[peer]
	if !ok || mid == "" {
		return nil
	}
	list, err := p.native.Transceivers()
	if err != nil {
		return nil
	}
	for _, tr := range list {
		if tr.Mid() == mid && !tr.Stopped() {
			return tr.Receiver().Track()
		}
	}
	return nil
}

// SetTrackEnabled enables or disables a track.
func (r *Registry) SetTrackEnabled(origin TrackOrigin, id TrackID, kind MediaKind, enabled bool) error {
	return r.guard(func() error {
		t, err := r.lookupTrack(origin, id, kind)
		if err != nil {
			return err
		}
		t.nativeTrack().SetEnabled(enabled)
		return nil
	})
}

// TrackState returns the ready state of a track. A remote track whose peer
// was disposed is ended.
func (r *Registry) TrackState(origin TrackOrigin, id TrackID, kind MediaKind) (engine.TrackState, error) {
	var state engine.TrackState
	err := r.guard(func() error {
		t, err := r.lookupTrack(origin, id, kind)
		if err != nil {
			return err
		}
		if t.base().ended {
			state = engine.TrackStateEnded
			return nil
		}
		state = t.nativeTrack().State()
		return nil
	})
	return state, err
}

// RegisterTrackObserver sets the sink receiving the track's events and
// sends it a TrackCreated event.
func (r *Registry) RegisterTrackObserver(origin TrackOrigin, id TrackID, kind MediaKind, sink TrackEventSink) error {
	var snap MediaStreamTrack
	err := r.guard(func() error {
		t, err := r.lookupTrack(origin, id, kind)
		if err != nil {
			return err
		}
		t.base().sink = sink
		if at, ok := t.(*audioTrack); ok {
			at.levels.setSink(sink)
		}
		snap = t.snapshot()
		return nil
	})
	if err != nil {
		return err
	}
	if sink != nil {
		sink.Send(TrackCreated{Track: snap})
	}
	return nil
}

// SetAudioLevelObserverEnabled starts or stops AudioLevelUpdated events for
// an audio track.
func (r *Registry) SetAudioLevelObserverEnabled(origin TrackOrigin, id TrackID, enabled bool) error {
	return r.guard(func() error {
		t, err := r.lookupTrack(origin, id, MediaKindAudio)
		if err != nil {
			return err
		}
		at := t.(*audioTrack)
		at.levels.setEnabled(enabled)
		if enabled {
			at.native.SetAudioLevelHandler(at.levels.publish)
		} else {
			at.native.SetAudioLevelHandler(nil)
		}
		return nil
	})
}
