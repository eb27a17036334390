package server

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
	"github.com/thesyncim/rtcsession/pkg/session"
)

type handlerFunc func(ctx context.Context, c *client, params json.RawMessage) (any, error)

var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"createPeerConnection":    createPeerConnection,
		"disposePeerConnection":   disposePeerConnection,
		"createOffer":             createOffer,
		"createAnswer":            createAnswer,
		"setLocalDescription":     setLocalDescription,
		"setRemoteDescription":    setRemoteDescription,
		"addIceCandidate":         addICECandidate,
		"restartIce":              restartICE,
		"getStats":                getStats,
		"negotiationState":        negotiationState,
		"addTransceiver":          addTransceiver,
		"getTransceivers":         getTransceivers,
		"setTransceiverDirection": setTransceiverDirection,
		"stopTransceiver":         stopTransceiver,
		"senderReplaceTrack":      senderReplaceTrack,
		"enumerateDevices":        enumerateDevices,
		"getMedia":                getMedia,
		"cloneTrack":              cloneTrack,
		"disposeTrack":            disposeTrack,
		"setTrackEnabled":         setTrackEnabled,
		"trackState":              trackState,
		"observeTrack":            observeTrack,
		"setAudioLevelObserver":   setAudioLevelObserver,
	}
}

func createPeerConnection(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p createPeerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := c.srv.reg.CreatePeerConnection(p.configuration(c.srv.peerConfig), c.peerSink())
	if err != nil {
		return nil, err
	}
	c.ownPeer(id)
	return peerParams{Peer: id}, nil
}

func disposePeerConnection(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p peerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	c.disownPeer(p.Peer)
	if err := c.srv.reg.DisposePeerConnection(p.Peer); err != nil {
		return nil, err
	}
	return nil, c.releaseRemoteTracks(p.Peer)
}

func createOffer(ctx context.Context, c *client, raw json.RawMessage) (any, error) {
	var p offerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	desc, err := c.srv.reg.CreateOffer(ctx, p.Peer, engine.OfferOptions{
		ICERestart:             p.ICERestart,
		VoiceActivityDetection: p.VAD,
	})
	if err != nil {
		return nil, err
	}
	return toDescription(desc), nil
}

func createAnswer(ctx context.Context, c *client, raw json.RawMessage) (any, error) {
	var p offerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	desc, err := c.srv.reg.CreateAnswer(ctx, p.Peer, engine.AnswerOptions{VoiceActivityDetection: p.VAD})
	if err != nil {
		return nil, err
	}
	return toDescription(desc), nil
}

func parseDescription(raw json.RawMessage) (descriptionParams, engine.SDPType, error) {
	var p descriptionParams
	if err := decodeParams(raw, &p); err != nil {
		return p, 0, err
	}
	typ, ok := engine.ParseSDPType(p.Type)
	if !ok {
		return p, 0, errors.Wrapf(errBadParams, "sdp type %q", p.Type)
	}
	return p, typ, nil
}

func setLocalDescription(ctx context.Context, c *client, raw json.RawMessage) (any, error) {
	p, typ, err := parseDescription(raw)
	if err != nil {
		return nil, err
	}
	return nil, c.srv.reg.SetLocalDescription(ctx, p.Peer, typ, p.SDP)
}

func setRemoteDescription(ctx context.Context, c *client, raw json.RawMessage) (any, error) {
	p, typ, err := parseDescription(raw)
	if err != nil {
		return nil, err
	}
	return nil, c.srv.reg.SetRemoteDescription(ctx, p.Peer, typ, p.SDP)
}

func addICECandidate(ctx context.Context, c *client, raw json.RawMessage) (any, error) {
	var p candidateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, c.srv.reg.AddICECandidate(ctx, p.Peer, engine.ICECandidate{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	})
}

func restartICE(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p peerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, c.srv.reg.RestartICE(p.Peer)
}

func getStats(ctx context.Context, c *client, raw json.RawMessage) (any, error) {
	var p peerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	report, err := c.srv.reg.GetStats(ctx, p.Peer)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func negotiationState(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p peerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	st, err := c.srv.reg.NegotiationState(p.Peer)
	if err != nil {
		return nil, err
	}
	pending, err := c.srv.reg.PendingICECandidates(p.Peer)
	if err != nil {
		return nil, err
	}
	return struct {
		State             string `json:"state"`
		PendingCandidates int    `json:"pendingCandidates"`
	}{st.String(), pending}, nil
}

func parseKind(s string) (session.MediaKind, error) {
	k, ok := engine.ParseMediaKind(s)
	if !ok {
		return 0, errors.Wrapf(errBadParams, "kind %q", s)
	}
	return k, nil
}

func parseDirection(s string) (engine.TransceiverDirection, error) {
	if s == "" {
		return engine.TransceiverDirectionSendRecv, nil
	}
	d, ok := engine.ParseTransceiverDirection(s)
	if !ok {
		return 0, errors.Wrapf(errBadParams, "direction %q", s)
	}
	return d, nil
}

func addTransceiver(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p transceiverParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind, err := parseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	dir, err := parseDirection(p.Direction)
	if err != nil {
		return nil, err
	}
	info, err := c.srv.reg.AddTransceiver(p.Peer, kind, engine.TransceiverInit{Direction: dir, StreamIDs: p.StreamIDs})
	if err != nil {
		return nil, err
	}
	return toTransceiver(info), nil
}

func getTransceivers(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p peerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	infos, err := c.srv.reg.GetTransceivers(p.Peer)
	if err != nil {
		return nil, err
	}
	out := make([]transceiver, 0, len(infos))
	for _, info := range infos {
		out = append(out, toTransceiver(info))
	}
	return out, nil
}

func setTransceiverDirection(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p transceiverParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	dir, err := parseDirection(p.Direction)
	if err != nil {
		return nil, err
	}
	return nil, c.srv.reg.SetTransceiverDirection(p.Peer, p.Index, dir)
}

func stopTransceiver(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p transceiverParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, c.srv.reg.StopTransceiver(p.Peer, p.Index)
}

func senderReplaceTrack(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p transceiverParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, c.srv.reg.SenderReplaceTrack(p.Peer, p.Index, p.Track)
}

func enumerateDevices(_ context.Context, c *client, _ json.RawMessage) (any, error) {
	return c.srv.devices()
}

func getMedia(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p mediaParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	tracks, err := c.srv.reg.GetMedia(p.constraints())
	if err != nil {
		return nil, err
	}
	c.ownTracks(tracks...)
	return toTracks(tracks), nil
}

func cloneTrack(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p trackParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	clone, err := c.srv.reg.CloneTrack(p.origin(), p.Track, kind)
	if err != nil {
		return nil, err
	}
	if clone == nil {
		return nil, errors.Wrapf(session.ErrNotFound, "source of %s track %s", kind, p.Track)
	}
	c.ownTracks(*clone)
	return toTrack(*clone), nil
}

func disposeTrack(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p trackParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	c.disownTrack(ownedTrack{id: p.Track, kind: kind, origin: p.origin()})
	return nil, c.srv.reg.DisposeTrack(p.origin(), p.Track, kind)
}

func setTrackEnabled(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p trackParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	return nil, c.srv.reg.SetTrackEnabled(p.origin(), p.Track, kind, p.Enabled)
}

func trackState(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p trackParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	st, err := c.srv.reg.TrackState(p.origin(), p.Track, kind)
	if err != nil {
		return nil, err
	}
	return stateData{State: st.String()}, nil
}

func observeTrack(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p trackParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	return nil, c.srv.reg.RegisterTrackObserver(p.origin(), p.Track, kind, c.trackSink())
}

func setAudioLevelObserver(_ context.Context, c *client, raw json.RawMessage) (any, error) {
	var p trackParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return nil, c.srv.reg.SetAudioLevelObserverEnabled(p.origin(), p.Track, p.Enabled)
}
