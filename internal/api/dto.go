package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/report"
)

// CreateMemoryRequest is the request body for storing a memory.
type CreateMemoryRequest struct {
	Content   map[string]any `json:"content"`
	Topic     string         `json:"topic,omitempty" example:"Project kickoff"`
	EntryType string         `json:"entry_type,omitempty" example:"user_memory"`
	Domain    string         `json:"domain,omitempty" example:"work"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate implements validation.Validatable.
func (r *CreateMemoryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
		validation.Field(&r.Tags, validation.Each(validation.Required)),
	)
}

// NewRecord converts the request into the store input.
func (r *CreateMemoryRequest) NewRecord() models.NewRecord {
	return models.NewRecord{
		RecordType: r.EntryType,
		Topic:      r.Topic,
		Domain:     r.Domain,
		Content:    r.Content,
		Tags:       r.Tags,
		Metadata:   r.Metadata,
	}
}

// CreateMemoryResponse is returned after a memory is stored.
type CreateMemoryResponse struct {
	Message  string `json:"message" example:"Memory stored successfully"`
	MemoryID string `json:"memory_id" example:"4f9c..."`
}

// SaveConversationRequest is the request body for logging a conversation.
type SaveConversationRequest struct {
	AgentID  string         `json:"agent_id" example:"agent-123"`
	Platform string         `json:"platform" example:"gemini"`
	Data     map[string]any `json:"conversation_data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate implements validation.Validatable.
func (r *SaveConversationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AgentID, validation.Required),
		validation.Field(&r.Platform, validation.Required),
		validation.Field(&r.Data, validation.NotNil),
	)
}

// SaveConversationResponse is returned after a conversation is logged.
type SaveConversationResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// SearchResponse wraps full-text search hits.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// DimensionResponse is a single-dimension report.
type DimensionResponse struct {
	Dimension report.Dimension `json:"dimension"`
	Total     int              `json:"total"`
	Counts    []report.Count   `json:"counts"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status      string `json:"status" example:"healthy"`
	Version     string `json:"version" example:"1.0.0"`
	MemoryCount int    `json:"memory_count" example:"42"`
}
