package recordstore

// enricher copies type-specific content fields into metadata at creation.
type enricher func(content, metadata map[string]any)

// Known record types with metadata enrichment. Other types are stored as-is.
const (
	TypeCodeContext    = "code_context"
	TypeConversation   = "conversation"
	TypeProjectState   = "project_state"
	TypeUserPreference = "user_preference"
)

var enrichers = map[string]enricher{
	TypeCodeContext: func(c, m map[string]any) {
		m["file_path"] = c["file_path"]
		m["language"] = c["language"]
		m["context_lines"] = orDefault(c, "context_lines", []any{})
	},
	TypeConversation: func(c, m map[string]any) {
		m["participants"] = orDefault(c, "participants", []any{})
		m["sentiment"] = orDefault(c, "sentiment", "neutral")
		m["key_topics"] = orDefault(c, "key_topics", []any{})
	},
	TypeProjectState: func(c, m map[string]any) {
		m["project_name"] = c["project_name"]
		m["branch"] = c["branch"]
		m["dependencies"] = orDefault(c, "dependencies", []any{})
		m["open_files"] = orDefault(c, "open_files", []any{})
	},
	TypeUserPreference: func(c, m map[string]any) {
		m["category"] = c["category"]
		m["scope"] = orDefault(c, "scope", "global")
	},
}

func enrich(recordType string, content, metadata map[string]any) {
	if fn, ok := enrichers[recordType]; ok {
		fn(content, metadata)
	}
}

func orDefault(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
