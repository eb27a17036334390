package server

import (
	"github.com/thesyncim/rtcsession/pkg/session"
)

type stateData struct {
	State string `json:"state"`
}

type candidateErrorData struct {
	Address   string `json:"address,omitempty"`
	Port      int    `json:"port,omitempty"`
	URL       string `json:"url,omitempty"`
	ErrorCode int    `json:"errorCode"`
	ErrorText string `json:"errorText,omitempty"`
}

type trackAddedData struct {
	Track       track       `json:"track"`
	Transceiver transceiver `json:"transceiver"`
}

type trackEventData struct {
	Track session.TrackID `json:"track"`
	Kind  string          `json:"kind"`
	Peer  uint64          `json:"peer,omitempty"`
	Level *float64        `json:"level,omitempty"`
	Info  *track          `json:"info,omitempty"`
}

// peerEvent renders a peer connection event for the wire.
func peerEvent(ev session.PeerConnectionEvent) event {
	out := event{Event: ev.EventType(), Peer: uint64(ev.PeerID())}
	switch e := ev.(type) {
	case session.ICECandidateDiscovered:
		out.Data = candidate{
			Candidate:     e.Candidate.Candidate,
			SDPMid:        e.Candidate.SDPMid,
			SDPMLineIndex: e.Candidate.SDPMLineIndex,
		}
	case session.ICECandidateFailed:
		out.Data = candidateErrorData{
			Address:   e.Error.Address,
			Port:      e.Error.Port,
			URL:       e.Error.URL,
			ErrorCode: e.Error.ErrorCode,
			ErrorText: e.Error.ErrorText,
		}
	case session.ICEGatheringStateChanged:
		out.Data = stateData{State: e.State.String()}
	case session.ICEConnectionStateChanged:
		out.Data = stateData{State: e.State.String()}
	case session.SignalingStateChanged:
		out.Data = stateData{State: e.State.String()}
	case session.ConnectionStateChanged:
		out.Data = stateData{State: e.State.String()}
	case session.TrackAdded:
		out.Data = trackAddedData{Track: toTrack(e.Track), Transceiver: toTransceiver(e.Transceiver)}
	}
	return out
}

// trackEvent renders a track event for the wire.
func trackEvent(ev session.TrackEvent) event {
	id, kind, origin := ev.TrackRef()
	data := trackEventData{Track: id, Kind: kind.String()}
	if peer, ok := origin.Peer(); ok {
		data.Peer = uint64(peer)
	}
	switch e := ev.(type) {
	case session.AudioLevelUpdated:
		level := e.Level
		data.Level = &level
	case session.TrackCreated:
		info := toTrack(e.Track)
		data.Info = &info
	}
	return event{Event: ev.EventType(), Data: data}
}
