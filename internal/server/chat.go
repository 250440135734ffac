package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/composer"
)

const maxChatBody = 64 << 10

// ChatRequest is the body of POST /v1/chat and each websocket message.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

const conversationHeader = "X-Conversation-Id"

// handleChat runs one turn and streams its frames as server-sent events.
// A client disconnect cancels the turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	w.Header().Set(conversationHeader, req.ConversationID)
	sink, err := composer.NewSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if err := s.composer.Stream(ctx, s.runner.Turn(ctx, req.ConversationID, req.Message), sink, cancel); err != nil {
		s.logger.Debug("chat stream ended early",
			zap.String("conversation", req.ConversationID),
			zap.Error(err))
	}
}

// handleChatWS defaults to one conversation per connection. Each text message
// is a ChatRequest (or bare text) and may name its own conversation; turns run
// one at a time and a closed connection cancels the turn in flight.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	log := s.logger.With(zap.String("conversation", conversationID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	messages := make(chan ChatRequest)
	go func() {
		defer cancel()
		defer close(messages)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}
			msg := decodeWSMessage(data)
			if msg.Message == "" {
				continue
			}
			if msg.ConversationID == "" {
				msg.ConversationID = conversationID
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	sink := composer.NewWebSocketSink(conn, s.opts.WriteTimeout)
	for msg := range messages {
		turnCtx, turnCancel := context.WithCancel(ctx)
		err := s.composer.Stream(turnCtx, s.runner.Turn(turnCtx, msg.ConversationID, msg.Message), sink, turnCancel)
		turnCancel()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("websocket turn aborted", zap.Error(err))
			}
			return
		}
	}
}

func decodeWSMessage(data []byte) ChatRequest {
	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ChatRequest{Message: strings.TrimSpace(string(data))}
	}
	req.Message = strings.TrimSpace(req.Message)
	return req
}
