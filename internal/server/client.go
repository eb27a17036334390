package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

type ownedTrack struct {
	id     session.TrackID
	kind   session.MediaKind
	origin session.TrackOrigin
}

// client is one websocket connection. Requests are handled in arrival
// order. Peers and tracks created through a client are disposed when it
// disconnects.
type client struct {
	id   string
	srv  *Server
	conn *websocket.Conn
	log  *logrus.Entry

	send chan any
	done chan struct{}

	mu     sync.Mutex
	peers  map[session.PeerConnectionID]struct{}
	tracks map[ownedTrack]struct{}
}

func newClient(srv *Server, conn *websocket.Conn) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		srv:    srv,
		conn:   conn,
		log:    srv.log.WithField("client", id),
		send:   make(chan any, sendBuffer),
		done:   make(chan struct{}),
		peers:  make(map[session.PeerConnectionID]struct{}),
		tracks: make(map[ownedTrack]struct{}),
	}
}

func (c *client) run(ctx context.Context) {
	c.log.WithField("remote", c.conn.RemoteAddr().String()).Info("client connected")
	c.srv.metrics.clients.Inc()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(ctx)
	close(c.done)
	<-writerDone

	if err := c.release(); err != nil {
		c.log.WithError(err).Warn("release client resources")
	}
	c.srv.metrics.clients.Dec()
	c.log.Info("client disconnected")
}

func (c *client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req request
		if err := c.conn.ReadJSON(&req); err != nil {
			if isDecodeError(err) {
				c.reply(response{Error: &rpcError{Code: codeBadRequest, Message: err.Error()}})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("read message")
			}
			return
		}
		c.reply(c.handle(ctx, req))
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).Debug("write message")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *client) reply(resp response) {
	select {
	case c.send <- resp:
	case <-c.done:
	}
}

// push queues an event. Events are dropped when the client does not keep
// up; engine callbacks must never wait on a websocket.
func (c *client) push(ev event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		c.srv.metrics.droppedEvents.Inc()
		c.log.WithField("event", ev.Event).Warn("client send buffer full, event dropped")
	}
}

func (c *client) handle(ctx context.Context, req request) response {
	resp := response{ID: req.ID}
	h, ok := handlers[req.Method]
	if !ok {
		resp.Error = &rpcError{Code: codeUnknownMethod, Message: "unknown method " + req.Method}
		return resp
	}

	start := time.Now()
	result, err := c.call(ctx, h, req)
	c.srv.metrics.observe(req.Method, err, time.Since(start))
	if err != nil {
		c.log.WithError(err).WithField("method", req.Method).Debug("request failed")
		resp.Error = toRPCError(err)
		return resp
	}
	if result == nil {
		result = struct{}{}
	}
	resp.Result = result
	return resp
}

// call runs h, turning a panic into an internal error so the connection
// and its resources outlive a failing request.
func (c *client) call(ctx context.Context, h handlerFunc, req request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{
				"method": req.Method,
				"panic":  r,
			}).Error("request handler panicked")
			result, err = nil, errors.Errorf("%s: internal error", req.Method)
		}
	}()
	return h(ctx, c, req.Params)
}

// peerSink forwards peer events. Remote tracks announced to the client are
// owned by it from then on.
func (c *client) peerSink() session.PeerEventSink {
	return session.PeerEventSinkFunc(func(ev session.PeerConnectionEvent) {
		if added, ok := ev.(session.TrackAdded); ok {
			c.ownTracks(added.Track)
		}
		c.push(peerEvent(ev))
	})
}

func (c *client) trackSink() session.TrackEventSink {
	return session.TrackEventSinkFunc(func(ev session.TrackEvent) {
		c.push(trackEvent(ev))
	})
}

func (c *client) ownPeer(id session.PeerConnectionID) {
	c.mu.Lock()
	c.peers[id] = struct{}{}
	c.mu.Unlock()
}

func (c *client) disownPeer(id session.PeerConnectionID) {
	c.mu.Lock()
	delete(c.peers, id)
	c.mu.Unlock()
}

func (c *client) ownTracks(ts ...session.MediaStreamTrack) {
	c.mu.Lock()
	for _, t := range ts {
		c.tracks[ownedTrack{id: t.ID, kind: t.Kind, origin: t.Origin}] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *client) disownTrack(t ownedTrack) {
	c.mu.Lock()
	delete(c.tracks, t)
	c.mu.Unlock()
}

// release disposes the peers, then the tracks the client owns. Peers go
// first so no remote track can be announced after the track snapshot.
func (c *client) release() error {
	c.mu.Lock()
	peers := c.peers
	c.peers = make(map[session.PeerConnectionID]struct{})
	c.mu.Unlock()

	var result *multierror.Error
	for id := range peers {
		if err := c.srv.reg.DisposePeerConnection(id); err != nil {
			result = multierror.Append(result, err)
		}
	}

	c.mu.Lock()
	tracks := c.tracks
	c.tracks = make(map[ownedTrack]struct{})
	c.mu.Unlock()

	for t := range tracks {
		if err := c.srv.reg.DisposeTrack(t.origin, t.id, t.kind); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// releaseRemoteTracks disposes the owned tracks received from peer.
func (c *client) releaseRemoteTracks(peer session.PeerConnectionID) error {
	origin := session.RemoteOrigin(peer)
	c.mu.Lock()
	var tracks []ownedTrack
	for t := range c.tracks {
		if t.origin == origin {
			tracks = append(tracks, t)
			delete(c.tracks, t)
		}
	}
	c.mu.Unlock()

	var result *multierror.Error
	for _, t := range tracks {
		if err := c.srv.reg.DisposeTrack(t.origin, t.id, t.kind); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
