// Package types holds the wire shapes of the chat API.
package types

// ChatRequest is the body of POST /chat and of every websocket text frame.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

// ChatResponse carries the agent's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Error     string       `json:"error"`
	RequestID string       `json:"requestId,omitempty"`
	Details   []FieldError `json:"details,omitempty"`
}

// FieldError describes one schema violation of a request body.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK            bool   `json:"ok"`
	Time          string `json:"time"`
	MemoryEnabled bool   `json:"memory_enabled"`
	DB            string `json:"db"`
	DBOK          bool   `json:"db_ok"`
	Model         string `json:"model"`
	Version       string `json:"version"`
	OrderService  string `json:"order_service"`
}

// Banner is the body of GET /.
type Banner struct {
	OK      bool     `json:"ok"`
	Service string   `json:"service"`
	Routes  []string `json:"routes"`
}

// SocketReply answers one websocket frame. Either Reply or Error is set.
type SocketReply struct {
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}
