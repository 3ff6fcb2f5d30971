package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomato-app/tomato-support/agents/support"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/types"
)

const (
	maxBodyBytes = 64 << 10
	pingTimeout  = 2 * time.Second
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if details := s.chat.Validate(raw); len(details) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, types.ErrorResponse{
			Error:     "invalid request",
			RequestID: RequestID(r.Context()),
			Details:   details,
		})
		return
	}
	var req types.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid request")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	reqID := RequestID(r.Context())
	reply, err := s.agent.Handle(r.Context(), support.Turn{
		Message:     msg,
		UserID:      strings.TrimSpace(req.UserID),
		Credentials: orderservice.CredentialsFromRequest(r),
		RequestID:   reqID,
	})
	if err != nil {
		if errors.Is(err, support.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "Assistant temporarily unavailable")
			return
		}
		s.log.WithField("request_id", reqID).Error("chat failed", err)
		writeError(w, r, http.StatusBadGateway, "Chat service upstream error")
		return
	}
	writeJSON(w, http.StatusOK, types.ChatResponse{Reply: reply.Text})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := false
	if s.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		dbOK = s.opts.DB.Ping(ctx) == nil
		cancel()
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{
		OK:            true,
		Time:          time.Now().UTC().Format(time.RFC3339Nano),
		MemoryEnabled: s.agent.MemoryEnabled(),
		DB:            s.opts.DBName,
		DBOK:          dbOK,
		Model:         s.agent.ModelName(),
		Version:       Version,
		OrderService:  s.opts.OrderServiceURL,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.Banner{
		OK:      true,
		Service: ServiceName,
		Routes:  []string{"/health", "/chat", "/__routes"},
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	seen := map[string]bool{}
	var paths []string
	_ = chi.Walk(s.router, func(_ string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if !seen[route] {
			seen[route] = true
			paths = append(paths, route)
		}
		return nil
	})
	sort.Strings(paths)
	writeJSON(w, http.StatusOK, paths)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, RequestID: RequestID(r.Context())})
}
