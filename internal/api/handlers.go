package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/conversation"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/recordstore"
	"github.com/starford/lettamem/internal/report"
)

// RecordService is the record store as the API sees it.
type RecordService interface {
	recordstore.Store
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// ConversationLog stores agent conversations.
type ConversationLog interface {
	Save(ctx context.Context, agentID, platform string, data, metadata map[string]any) (string, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	List(ctx context.Context, q conversation.Query) ([]models.Conversation, error)
}

// Handler holds API route handlers.
type Handler struct {
	records       RecordService
	conversations ConversationLog
	version       string
}

// NewHandler creates a new Handler. conversations may be nil, in which case
// the conversation routes answer 503.
func NewHandler(records RecordService, conversations ConversationLog, version string) *Handler {
	return &Handler{records: records, conversations: conversations, version: version}
}

// CreateMemory handles POST /api/memories.
func (h *Handler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.records.Create(r.Context(), req.NewRecord())
	if err != nil {
		internalError(w, "create memory failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateMemoryResponse{
		Message:  "Memory stored successfully",
		MemoryID: id,
	})
}

// ListMemories handles GET /api/memories.
//
// Query parameters: tag, topic (case-insensitive substring), type and any
// number of meta=key=value pairs.
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meta, err := recordstore.ParseMetadataPairs(q["meta"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	records, err := h.records.List(r.Context(), recordstore.Filter{
		Tag:           q.Get("tag"),
		TopicContains: q.Get("topic"),
		RecordType:    q.Get("type"),
		Metadata:      meta,
	})
	if err != nil {
		internalError(w, "list memories failed", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetMemory handles GET /api/memories/{id}.
func (h *Handler) GetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("memory not found"))
			return
		}
		internalError(w, "get memory failed", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.records.Search(r.Context(), q, limit)
	if err != nil {
		internalError(w, "search failed", err, slog.String("query", q))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Report handles GET /api/report. With ?dimension= only that tally is
// returned.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var (
		dim report.Dimension
		err error
	)
	if raw := r.URL.Query().Get("dimension"); raw != "" {
		if dim, err = report.ParseDimension(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	records, err := h.records.List(r.Context(), recordstore.Filter{})
	if err != nil {
		internalError(w, "report failed", err)
		return
	}
	if dim != "" {
		writeJSON(w, http.StatusOK, DimensionResponse{
			Dimension: dim,
			Total:     len(records),
			Counts:    report.Tally(records, dim),
		})
		return
	}
	writeJSON(w, http.StatusOK, report.Build(records))
}

// SaveConversation handles POST /api/conversations.
func (h *Handler) SaveConversation(w http.ResponseWriter, r *http.Request) {
	if !h.conversationsAvailable(w) {
		return
	}
	var req SaveConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.conversations.Save(r.Context(), req.AgentID, req.Platform, req.Data, req.Metadata)
	if err != nil {
		internalError(w, "save conversation failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, SaveConversationResponse{
		Message:        "Conversation saved successfully",
		ConversationID: id,
	})
}

// ListConversations handles GET /api/conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	if !h.conversationsAvailable(w) {
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	items, err := h.conversations.List(r.Context(), conversation.Query{
		AgentID:  q.Get("agent_id"),
		Platform: q.Get("platform"),
		Limit:    limit,
	})
	if err != nil {
		internalError(w, "list conversations failed", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetConversation handles GET /api/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	if !h.conversationsAvailable(w) {
		return
	}
	id := chi.URLParam(r, "id")
	c, err := h.conversations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("conversation not found"))
			return
		}
		internalError(w, "get conversation failed", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.records.Count(r.Context())
	if err != nil {
		slog.Warn("api: count records failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		MemoryCount: n,
	})
}

func (h *Handler) conversationsAvailable(w http.ResponseWriter) bool {
	if h.conversations == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("conversation log disabled"))
		return false
	}
	return true
}
