package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smartfactory/agent-service/internal/agent"
	"github.com/smartfactory/agent-service/internal/catalog"
	"github.com/smartfactory/agent-service/internal/config"
	"github.com/smartfactory/agent-service/internal/devices"
	"github.com/smartfactory/agent-service/internal/dispatch"
	"github.com/smartfactory/agent-service/internal/llm"
	"github.com/smartfactory/agent-service/internal/repository"
	"github.com/smartfactory/agent-service/internal/telemetry"
)

type Handler struct {
	config           *config.Config
	llmClient        llm.Client
	pipeline         *agent.Pipeline
	catalog          *catalog.Cache
	registry         *devices.Registry
	telemetry        *telemetry.Store
	dispatcher       *dispatch.Dispatcher
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
}

type HandlerOptions struct {
	Config           *config.Config
	LLMClient        llm.Client
	Pipeline         *agent.Pipeline
	Catalog          *catalog.Cache
	Registry         *devices.Registry
	Telemetry        *telemetry.Store
	Dispatcher       *dispatch.Dispatcher
	ConversationRepo *repository.ConversationRepository
	MessageRepo      *repository.MessageRepository
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		config:           opts.Config,
		llmClient:        opts.LLMClient,
		pipeline:         opts.Pipeline,
		catalog:          opts.Catalog,
		registry:         opts.Registry,
		telemetry:        opts.Telemetry,
		dispatcher:       opts.Dispatcher,
		conversationRepo: opts.ConversationRepo,
		messageRepo:      opts.MessageRepo,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	available := false
	if h.llmClient != nil {
		ok, _ := h.llmClient.Available(ctx)
		available = ok
	}

	model := ""
	if h.config != nil {
		model = h.config.LLMModel
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"service":         "agent-service",
		"model":           model,
		"model_available": available,
	})
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.conversationRepo == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user")
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	conversations, err := h.conversationRepo.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.conversationRepo == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid user")
		return
	}

	var req CreateConversationRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = "New conversation"
	}

	conv, err := h.conversationRepo.Create(r.Context(), userID, req.Title)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation": conv})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.conversationRepo == nil || h.messageRepo == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	conv, err := h.conversationRepo.GetByID(r.Context(), convID)
	if err != nil || conv == nil {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	userID, _ := uuid.Parse(claims.Subject)
	if conv.UserID != userID && claims.Role != "admin" {
		writeJSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	messages, err := h.messageRepo.ListByConversation(r.Context(), convID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.conversationRepo == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	conv, err := h.conversationRepo.GetByID(r.Context(), convID)
	if err != nil || conv == nil {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	userID, _ := uuid.Parse(claims.Subject)
	if conv.UserID != userID && claims.Role != "admin" {
		writeJSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.conversationRepo.UpdateTitle(r.Context(), convID, req.Title); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to update conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.conversationRepo == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	conv, err := h.conversationRepo.GetByID(r.Context(), convID)
	if err != nil || conv == nil {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	userID, _ := uuid.Parse(claims.Subject)
	if conv.UserID != userID && claims.Role != "admin" {
		writeJSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.conversationRepo.Delete(r.Context(), convID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListDevices merges the static registry with the latest telemetry and the
// last commanded state for each device.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.registry == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "device registry not configured")
		return
	}

	type deviceView struct {
		ID          string             `json:"id"`
		Kind        string             `json:"kind"`
		DisplayName string             `json:"display_name"`
		Supported   bool               `json:"supported"`
		State       string             `json:"state,omitempty"`
		Telemetry   *telemetry.Reading `json:"telemetry,omitempty"`
	}

	var out []deviceView
	for _, d := range h.registry.All() {
		view := deviceView{
			ID:          d.ID,
			Kind:        string(d.Kind),
			DisplayName: d.DisplayName,
			Supported:   d.Supported,
		}
		if h.dispatcher != nil {
			if state, ok := h.dispatcher.State(d.ID); ok {
				view.State = state
			}
		}
		if h.telemetry != nil {
			if reading, ok := h.telemetry.Get(d.ID); ok {
				view.Telemetry = &reading
			}
		}
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": out})
}

// ListTools exposes the cached tool listing without forcing a refresh.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "tool catalog not configured")
		return
	}

	tools, ok := h.catalog.Cached()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tools": []catalog.Tool{}, "cached": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools":       tools,
		"cached":      true,
		"age_seconds": int(h.catalog.Age().Seconds()),
	})
}

func (h *Handler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	available := false
	if h.llmClient != nil {
		ok, _ := h.llmClient.Available(ctx)
		available = ok
	}

	catalogSize := 0
	catalogAge := time.Duration(0)
	if h.catalog != nil {
		if tools, ok := h.catalog.Cached(); ok {
			catalogSize = len(tools)
			catalogAge = h.catalog.Age()
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":             "agent-service",
		"llm_base_url":        h.config.LLMBaseURL,
		"llm_model":           h.config.LLMModel,
		"llm_available":       available,
		"mcp_base_url":        h.config.MCPBaseURL,
		"catalog_tools":       catalogSize,
		"catalog_age_seconds": int(catalogAge.Seconds()),
		"mqtt_broker":         h.config.MQTTBrokerURL,
	})
}
