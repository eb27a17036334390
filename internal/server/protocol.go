package server

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
	"github.com/thesyncim/rtcsession/pkg/session"
)

// request is one call sent by a client.
type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response answers the request with the same id.
type response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// event is pushed without a request.
type event struct {
	Event string `json:"event"`
	Peer  uint64 `json:"peer,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	codeBadRequest      = "bad_request"
	codeUnknownMethod   = "unknown_method"
	codeNotFound        = "not_found"
	codeTimeout         = "timeout"
	codeNativeFailure   = "native_failure"
	codeClosed          = "closed"
	codeNoDevice        = "no_device"
	codeAlreadyExists   = "already_exists"
	codeInvalidArgument = "invalid_argument"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal"
)

var errBadParams = errors.New("bad params")

var errorCodes = []struct {
	target error
	code   string
}{
	{errBadParams, codeBadRequest},
	{session.ErrNotFound, codeNotFound},
	{session.ErrTimeout, codeTimeout},
	{session.ErrPeerConnectionClosed, codeClosed},
	{session.ErrRegistryClosed, codeClosed},
	{session.ErrNoDevice, codeNoDevice},
	{session.ErrAlreadyExists, codeAlreadyExists},
	{session.ErrInvalidArgument, codeInvalidArgument},
	{session.ErrLockPoisoned, codeUnavailable},
	{session.ErrNativeFailure, codeNativeFailure},
}

func toRPCError(err error) *rpcError {
	for _, c := range errorCodes {
		if errors.Is(err, c.target) {
			return &rpcError{Code: c.code, Message: err.Error()}
		}
	}
	return &rpcError{Code: codeInternal, Message: err.Error()}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(errBadParams, err.Error())
	}
	return nil
}

type peerParams struct {
	Peer session.PeerConnectionID `json:"peer"`
}

type createPeerParams struct {
	ICEServers         []iceServer `json:"iceServers,omitempty"`
	ICETransportPolicy string      `json:"iceTransportPolicy,omitempty"`
	BundlePolicy       string      `json:"bundlePolicy,omitempty"`
	RTCPMuxPolicy      string      `json:"rtcpMuxPolicy,omitempty"`
	CandidatePoolSize  int         `json:"iceCandidatePoolSize,omitempty"`
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// configuration overlays p on the server defaults. Explicit ICE servers
// replace the default ones.
func (p createPeerParams) configuration(defaults engine.Configuration) engine.Configuration {
	cfg := defaults
	if len(p.ICEServers) > 0 {
		cfg.ICEServers = nil
		for _, s := range p.ICEServers {
			cfg.ICEServers = append(cfg.ICEServers, engine.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	}
	if p.ICETransportPolicy != "" {
		cfg.ICETransportPolicy = p.ICETransportPolicy
	}
	if p.BundlePolicy != "" {
		cfg.BundlePolicy = p.BundlePolicy
	}
	if p.RTCPMuxPolicy != "" {
		cfg.RTCPMuxPolicy = p.RTCPMuxPolicy
	}
	if p.CandidatePoolSize > 0 {
		cfg.ICECandidatePoolSize = p.CandidatePoolSize
	}
	return cfg
}

type offerParams struct {
	Peer       session.PeerConnectionID `json:"peer"`
	ICERestart bool                     `json:"iceRestart,omitempty"`
	VAD        bool                     `json:"voiceActivityDetection,omitempty"`
}

type descriptionParams struct {
	Peer session.PeerConnectionID `json:"peer"`
	Type string                   `json:"type"`
	SDP  string                   `json:"sdp"`
}

type description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func toDescription(d engine.SessionDescription) description {
	return description{Type: d.Type.String(), SDP: d.SDP}
}

type candidateParams struct {
	Peer          session.PeerConnectionID `json:"peer"`
	Candidate     string                   `json:"candidate"`
	SDPMid        string                   `json:"sdpMid"`
	SDPMLineIndex uint16                   `json:"sdpMLineIndex"`
}

type candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

type transceiverParams struct {
	Peer      session.PeerConnectionID `json:"peer"`
	Index     int                      `json:"index"`
	Kind      string                   `json:"kind,omitempty"`
	Direction string                   `json:"direction,omitempty"`
	StreamIDs []string                 `json:"streamIds,omitempty"`
	Track     session.TrackID          `json:"track,omitempty"`
}

type transceiver struct {
	Index     int    `json:"index"`
	Mid       string `json:"mid,omitempty"`
	Kind      string `json:"kind"`
	Direction string `json:"direction"`
	Stopped   bool   `json:"stopped"`
}

func toTransceiver(t session.TransceiverInfo) transceiver {
	return transceiver{
		Index:     t.Index,
		Mid:       t.Mid,
		Kind:      t.Kind.String(),
		Direction: t.Direction.String(),
		Stopped:   t.Stopped,
	}
}

type mediaParams struct {
	Audio *struct {
		DeviceID         string `json:"deviceId,omitempty"`
		EchoCancellation bool   `json:"echoCancellation,omitempty"`
		AutoGainControl  bool   `json:"autoGainControl,omitempty"`
		NoiseSuppression bool   `json:"noiseSuppression,omitempty"`
	} `json:"audio,omitempty"`
	Video *struct {
		DeviceID  string  `json:"deviceId,omitempty"`
		DisplayID string  `json:"displayId,omitempty"`
		Width     int     `json:"width,omitempty"`
		Height    int     `json:"height,omitempty"`
		FrameRate float64 `json:"frameRate,omitempty"`
	} `json:"video,omitempty"`
}

func (p mediaParams) constraints() session.MediaStreamConstraints {
	var c session.MediaStreamConstraints
	if a := p.Audio; a != nil {
		c.Audio = &session.AudioTrackConstraints{
			DeviceID: a.DeviceID,
			AudioConstraints: engine.AudioConstraints{
				EchoCancellation: a.EchoCancellation,
				AutoGainControl:  a.AutoGainControl,
				NoiseSuppression: a.NoiseSuppression,
			},
		}
	}
	if v := p.Video; v != nil {
		c.Video = &session.VideoTrackConstraints{
			DeviceID:  v.DeviceID,
			DisplayID: v.DisplayID,
			VideoConstraints: engine.VideoConstraints{
				Width:     v.Width,
				Height:    v.Height,
				FrameRate: v.FrameRate,
			},
		}
	}
	return c
}

// trackParams names a track. A non-zero Peer selects the remote origin.
type trackParams struct {
	Track   session.TrackID          `json:"track"`
	Kind    string                   `json:"kind"`
	Peer    session.PeerConnectionID `json:"peer,omitempty"`
	Enabled bool                     `json:"enabled,omitempty"`
}

func (p trackParams) origin() session.TrackOrigin {
	if p.Peer != 0 {
		return session.RemoteOrigin(p.Peer)
	}
	return session.LocalOrigin()
}

func (p trackParams) kind() (session.MediaKind, error) {
	k, ok := engine.ParseMediaKind(p.Kind)
	if !ok {
		return 0, errors.Wrapf(errBadParams, "kind %q", p.Kind)
	}
	return k, nil
}

type track struct {
	ID       session.TrackID `json:"id"`
	Kind     string          `json:"kind"`
	Peer     uint64          `json:"peer,omitempty"`
	DeviceID string          `json:"deviceId,omitempty"`
	Label    string          `json:"label,omitempty"`
	Enabled  bool            `json:"enabled"`
}

func toTrack(t session.MediaStreamTrack) track {
	out := track{
		ID:       t.ID,
		Kind:     t.Kind.String(),
		DeviceID: t.DeviceID,
		Label:    t.Label,
		Enabled:  t.Enabled,
	}
	if peer, ok := t.Origin.Peer(); ok {
		out.Peer = uint64(peer)
	}
	return out
}

func toTracks(ts []session.MediaStreamTrack) []track {
	out := make([]track, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTrack(t))
	}
	return out
}

type device struct {
	DeviceID string `json:"deviceId"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
}

type display struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	IsWindow bool   `json:"isWindow"`
}

type devicesResult struct {
	Devices  []device  `json:"devices"`
	Displays []display `json:"displays"`
}

func toDevicesResult(devices []engine.DeviceInfo, displays []engine.DisplayInfo) devicesResult {
	out := devicesResult{Devices: []device{}, Displays: []display{}}
	for _, d := range devices {
		out.Devices = append(out.Devices, device{DeviceID: d.DeviceID, Label: d.Label, Kind: d.Kind.String()})
	}
	for _, d := range displays {
		out.Displays = append(out.Displays, display{ID: d.ID, Title: d.Title, IsWindow: d.IsWindow})
	}
	return out
}
