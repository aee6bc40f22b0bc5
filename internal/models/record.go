// Package models defines the domain types for lettamem.
package models

import "time"

// Record defaults applied at creation.
const (
	DefaultRecordType = "user_memory"
	DefaultTopic      = "Untitled Memory"
)

// Record is one persisted unit of memory data, stored as a JSON document.
type Record struct {
	ID         string         `json:"id"`
	RecordType string         `json:"entry_type"`
	Topic      string         `json:"topic"`
	Domain     string         `json:"domain,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Content    map[string]any `json:"content"`
	Tags       []string       `json:"tags"`
	Metadata   map[string]any `json:"metadata"`
}

// NewRecord is the caller-supplied part of a record. The store assigns
// ID and Timestamp.
type NewRecord struct {
	RecordType string         `json:"entry_type,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	Domain     string         `json:"domain,omitempty"`
	Content    map[string]any `json:"content"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RecordFile is a lightweight representation of a stored record file.
type RecordFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversation is a row of the agent conversation log.
type Conversation struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Platform  string         `json:"platform"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"conversation_data"`
	Metadata  map[string]any `json:"metadata"`
}

// SortableTimeLayout is a fixed-width UTC layout whose lexical order matches
// chronological order. It is used wherever timestamps are stored as text.
const SortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SortableTime formats t in SortableTimeLayout.
func SortableTime(t time.Time) string {
	return t.UTC().Format(SortableTimeLayout)
}
