package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smartfactory/agent-service/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage is the envelope for everything on the agent socket.
type WSMessage struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	userID, _ := uuid.Parse(claims.Subject)
	session := &ChatSession{
		conn:    conn,
		userID:  userID,
		handler: h,
		conv:    agent.NewContext(),
	}

	session.run()
}

// ChatSession is one WebSocket connection with its own conversation
// context. One run is processed at a time; overlapping submissions get an
// immediate busy error while the first keeps going.
type ChatSession struct {
	conn    *websocket.Conn
	userID  uuid.UUID
	handler *Handler
	conv    *agent.Context
	writeMu sync.Mutex

	// stateMu guards the fields the read loop and the per-message
	// goroutine both touch.
	stateMu        sync.Mutex
	conversationID *uuid.UUID
	cancelFunc     context.CancelFunc
}

func (s *ChatSession) setCancel(fn context.CancelFunc) {
	s.stateMu.Lock()
	s.cancelFunc = fn
	s.stateMu.Unlock()
}

func (s *ChatSession) cancelRun() {
	s.stateMu.Lock()
	fn := s.cancelFunc
	s.stateMu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *ChatSession) conversation() *uuid.UUID {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.conversationID
}

func (s *ChatSession) setConversation(id *uuid.UUID) {
	s.stateMu.Lock()
	s.conversationID = id
	s.stateMu.Unlock()
}

func (s *ChatSession) run() {
	for {
		_, msgBytes, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read failed", "error", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			s.sendError("Invalid message format")
			continue
		}

		switch msg.Type {
		case "message":
			// Run async: the busy guard in the context rejects overlap, and
			// the read loop stays responsive to cancel.
			go s.handleMessage(msg.Content)
		case "cancel":
			s.cancelRun()
		case "new_conversation":
			s.setConversation(nil)
			s.conv.Clear()
			s.send(WSMessage{Type: "conversation_cleared"})
		}
	}
}

func (s *ChatSession) handleMessage(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if s.handler == nil || s.handler.pipeline == nil {
		s.sendError("agent not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	s.setCancel(cancel)
	defer cancel()

	if s.conversation() == nil && s.handler.conversationRepo != nil {
		conv, err := s.handler.conversationRepo.Create(ctx, s.userID, generateTitle(content))
		if err != nil {
			slog.Error("failed to create conversation", "error", err)
		} else {
			s.setConversation(&conv.ID)
			s.send(WSMessage{Type: "conversation_created", Content: conv.ID.String()})
		}
	}

	s.persist(ctx, "user", content, "", nil, "")

	reply, err := s.handler.pipeline.Process(ctx, s.conv, content, func(state agent.State) {
		switch state {
		case agent.StateThinking:
			s.send(WSMessage{Type: "typing"})
		case agent.StateExecuting:
			s.send(WSMessage{Type: "executing"})
		}
	})
	if err != nil {
		if ctx.Err() == context.Canceled {
			s.send(WSMessage{Type: "cancelled"})
			return
		}
		slog.Warn("pipeline run failed", "error", err)
		s.sendError(agent.UserMessage(err))
		return
	}

	toolName, params, rawResult := s.conv.ToolOutcome()
	var toolParams json.RawMessage
	if toolName != "" && len(params) > 0 {
		toolParams, _ = json.Marshal(params)
	}
	s.persist(ctx, "assistant", reply, toolName, toolParams, rawResult)

	if convID := s.conversation(); s.handler.conversationRepo != nil && convID != nil {
		_ = s.handler.conversationRepo.Touch(ctx, *convID)
	}

	s.send(WSMessage{Type: "result", Content: reply})
}

func (s *ChatSession) persist(ctx context.Context, role, content, toolName string, toolParams json.RawMessage, executionResult string) {
	convID := s.conversation()
	if s.handler.messageRepo == nil || convID == nil {
		return
	}
	if _, err := s.handler.messageRepo.Create(ctx, *convID, role, content, toolName, toolParams, executionResult); err != nil {
		slog.Error("failed to save message", "role", role, "error", err)
	}
}

func (s *ChatSession) send(msg WSMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteJSON(msg)
}

func (s *ChatSession) sendError(message string) {
	s.send(WSMessage{Type: "error", Content: message})
}

func generateTitle(content string) string {
	title := strings.TrimSpace(content)
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	if title == "" {
		return "New conversation"
	}
	return title
}
