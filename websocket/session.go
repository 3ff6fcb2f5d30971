package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/types"
)

const maxUserIDLen = 120

// session is one websocket connection.
type session struct {
	h      *Handler
	conn   *websocket.Conn
	send   chan []byte
	creds  orderservice.Credentials
	id     string
	turns  int
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

// readPump answers frames until the peer goes away. It owns the send
// channel and closes it on exit.
func (s *session) readPump() {
	defer func() {
		s.cancel()
		s.h.unregister(s)
		close(s.send)
		s.h.wg.Done()
		s.log.Debug("session closed")
	}()

	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warnf("read error: %v", err)
			}
			return
		}
		if err := s.enqueue(s.answer(data)); err != nil {
			s.log.Warnf("dropping session: %v", err)
			return
		}
	}
}

// writePump serializes writes and keeps the connection alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		s.h.wg.Done()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warnf("write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) enqueue(reply types.SocketReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// answer turns one frame into its reply.
func (s *session) answer(data []byte) types.SocketReply {
	s.turns++
	reqID := fmt.Sprintf("%s-%d", s.id, s.turns)
	fail := func(msg string) types.SocketReply {
		return types.SocketReply{Error: msg, RequestID: reqID}
	}

	var req types.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fail("invalid JSON frame")
	}
	msg := strings.TrimSpace(req.Message)
	switch {
	case msg == "":
		return fail("message is required")
	case utf8.RuneCountInString(req.Message) > s.h.maxMsgLen:
		return fail("message too long")
	case utf8.RuneCountInString(req.UserID) > maxUserIDLen:
		return fail("userId too long")
	}

	reply, err := s.h.agent.Handle(s.ctx, support.Turn{
		Message:     msg,
		UserID:      strings.TrimSpace(req.UserID),
		Credentials: s.creds,
		RequestID:   reqID,
	})
	if err != nil {
		if errors.Is(err, support.ErrUnavailable) {
			return fail("Assistant temporarily unavailable")
		}
		s.log.WithField("request_id", reqID).Error("turn failed", err)
		return fail("Chat service upstream error")
	}
	return types.SocketReply{Reply: reply.Text, RequestID: reqID}
}

// goingAway sends a close frame and cancels in-flight turns. The peer's
// close reply ends readPump.
func (s *session) goingAway() {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
	s.cancel()
}
