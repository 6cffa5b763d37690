package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benvon/finance-advisor/internal/middleware"
	"github.com/benvon/finance-advisor/internal/services/chat"
	"github.com/benvon/finance-advisor/internal/sse"
	"github.com/benvon/finance-advisor/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	// DefaultHeartbeatInterval keeps idle streams alive through proxies
	DefaultHeartbeatInterval = 15 * time.Second
)

// ChatHandler handles advisor chat requests
type ChatHandler struct {
	chat      *chat.Service
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chatService, logger: logger, heartbeat: DefaultHeartbeatInterval}
}

// RegisterRoutes registers the request/response chat routes
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/chat/sessions", h.ListSessions).Methods("GET")
	r.HandleFunc("/chat/sessions/{id}/messages", h.ListMessages).Methods("GET")
	r.HandleFunc("/chat/sessions/{id}", h.DeleteSession).Methods("DELETE")
	r.HandleFunc("/chat/messages", h.SendMessage).Methods("POST")
	r.HandleFunc("/chat/usage", h.GetUsage).Methods("GET")
}

// RegisterStreamRoutes registers the streaming route. It must be mounted outside the
// request timeout middleware.
func (h *ChatHandler) RegisterStreamRoutes(r *mux.Router) {
	r.HandleFunc("/chat/stream", h.Stream).Methods("POST")
}

// CreateSessionRequest represents a create session request
type CreateSessionRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// ChatTurnRequest is the body of send and stream requests
type ChatTurnRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
	Content   string `json:"content" validate:"notblank,max=4000"`
}

// SendMessageResponse identifies the stored user message
type SendMessageResponse struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
}

// CreateSession starts a new conversation
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
	}

	session, err := h.chat.CreateSession(r.Context(), user.ID, validation.SanitizeText(req.Title))
	if err != nil {
		respondServiceError(w, h.logger, "chat_session_create_failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// ListSessions returns the user's conversations, most recent first
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	sessions, err := h.chat.ListSessions(r.Context(), user.ID, queryLimit(r, defaultListLimit, maxListLimit))
	if err != nil {
		respondServiceError(w, h.logger, "chat_session_list_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// ListMessages returns a session's recent messages, oldest first
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	sessionID, ok := parseUUID(mux.Vars(r)["id"])
	if !ok {
		respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid session ID")
		return
	}

	messages, err := h.chat.Messages(r.Context(), user.ID, sessionID, queryLimit(r, defaultListLimit, maxListLimit))
	if err != nil {
		respondServiceError(w, h.logger, "chat_messages_list_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// DeleteSession removes a conversation and its messages
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	sessionID, ok := parseUUID(mux.Vars(r)["id"])
	if !ok {
		respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid session ID")
		return
	}

	if err := h.chat.DeleteSession(r.Context(), user.ID, sessionID); err != nil {
		respondServiceError(w, h.logger, "chat_session_delete_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage reports today's message quota
func (h *ChatHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	status, err := h.chat.Usage(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, "usage_status_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// SendMessage stores a user message and counts it against the daily quota
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	req, sessionID, ok := h.decodeTurn(w, r)
	if !ok {
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), user.ID, sessionID, req.Content)
	if err != nil {
		respondServiceError(w, h.logger, "chat_message_send_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, SendMessageResponse{
		SessionID: sessionID.String(),
		MessageID: msg.ID.String(),
	})
}

// Stream answers the latest user message as a server-sent event stream. Every check
// that can fail before the model is called answers with an ordinary JSON error.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	req, sessionID, ok := h.decodeTurn(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	turn, err := h.chat.BeginTurn(ctx, user.ID, sessionID, req.Content)
	if err != nil {
		respondServiceError(w, h.logger, "chat_stream_rejected", err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		respondServiceError(w, h.logger, "chat_stream_unsupported", err)
		return
	}

	var wg sync.WaitGroup
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer wg.Wait()
	defer stopHeartbeat()
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Heartbeat(heartbeatCtx, h.heartbeat)
	}()

	err = h.chat.Stream(ctx, turn, writer)
	if err != nil && !writer.Opened() && !errors.Is(err, context.Canceled) {
		respondServiceError(w, h.logger, "chat_stream_setup_failed", err)
	}
}

func (h *ChatHandler) decodeTurn(w http.ResponseWriter, r *http.Request) (*ChatTurnRequest, uuid.UUID, bool) {
	var req ChatTurnRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, uuid.Nil, false
	}
	sessionID, ok := parseUUID(req.SessionID)
	if !ok {
		respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid session ID")
		return nil, uuid.Nil, false
	}
	req.Content = validation.SanitizeText(req.Content)
	return &req, sessionID, true
}
