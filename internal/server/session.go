package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// SnapshotReader is the read side of the telemetry store.
type SnapshotReader interface {
	Snapshot() map[string]float64
}

// frameConn is the part of *websocket.Conn a session uses.
type frameConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, messageType websocket.MessageType, payload []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type sessionState int

const (
	stateAwaitingFrame sessionState = iota
	stateDecoding
	stateResponding
	stateClosed
)

func (state sessionState) String() string {
	switch state {
	case stateAwaitingFrame:
		return "awaiting-frame"
	case stateDecoding:
		return "decoding"
	case stateResponding:
		return "responding"
	default:
		return "closed"
	}
}

// session serves one client as a strict request/response loop: every frame
// read gets exactly one response before the next frame is read.
type session struct {
	id           string
	conn         frameConn
	store        SnapshotReader
	ids          *IDSource
	writeTimeout time.Duration
	logger       *zap.Logger
	state        sessionState
	served       int
}

func (session *session) serve(ctx context.Context) error {
	defer session.transition(stateClosed)

	for {
		session.transition(stateAwaitingFrame)
		_, frame, err := session.conn.Read(ctx)
		if err != nil {
			return session.readError(err)
		}

		session.transition(stateDecoding)
		response := session.respond(frame)

		session.transition(stateResponding)
		if err := session.write(ctx, response); err != nil {
			return err
		}
		session.served++
	}
}

func (session *session) respond(frame []byte) Response {
	request, err := DecodeRequest(frame)
	if err != nil {
		session.logger.Warn("malformed request", zap.Error(err), zap.Int("bytes", len(frame)))
		return errorResponse(err)
	}

	id := request.ID
	if id == nil {
		id = session.ids.Next()
		session.logger.Debug("request without identifier", zap.ByteString("assigned_id", id))
	}
	return Response{ID: id, Data: session.store.Snapshot()}
}

func (session *session) write(ctx context.Context, response Response) error {
	encoded, err := json.Marshal(response)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, session.writeTimeout)
	defer cancel()
	if err := session.conn.Write(writeCtx, websocket.MessageText, encoded); err != nil {
		return err
	}

	session.logger.Debug("response sent", zap.ByteString("response", encoded))
	return nil
}

// readError separates an orderly client disconnect from a transport failure.
func (session *session) readError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (session *session) transition(next sessionState) {
	if session.state == stateClosed {
		return
	}
	session.state = next
}
