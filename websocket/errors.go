package websocket

import (
	"errors"
	"fmt"
)

// Common websocket errors
var (
	// ErrBufferFull is returned when a session's send buffer is full
	ErrBufferFull = errors.New("websocket: send buffer is full")

	// ErrShuttingDown is returned for upgrades after Shutdown
	ErrShuttingDown = errors.New("websocket: server shutting down")

	// ErrMaxReconnectAttemptsReached is returned when max reconnection attempts are exceeded
	ErrMaxReconnectAttemptsReached = errors.New("websocket: max reconnection attempts reached")
)

// ServerError is an error frame answered by the chat server.
type ServerError struct {
	Message   string
	RequestID string
}

func (e *ServerError) Error() string {
	if e.RequestID == "" {
		return "websocket: server error: " + e.Message
	}
	return fmt.Sprintf("websocket: server error: %s (request %s)", e.Message, e.RequestID)
}
