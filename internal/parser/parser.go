// Package parser decodes stored record documents into the canonical schema.
//
// Records on disk were written by several independent producers that disagree
// on key names ("entry_type" vs "type", "topic" vs "title", ...). Parse is the
// single ingestion point that resolves those aliases, so nothing downstream
// has to probe for alternative keys.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/models"
)

// Alias chains, first present key wins.
var (
	typeKeys   = []string{"entry_type", "entryType", "type", "kind"}
	topicKeys  = []string{"topic", "title", "subject"}
	tagKeys    = []string{"tags", "categories", "labels"}
	domainKeys = []string{"domain", "category", "field"}
)

// timestampLayouts are tried in order. Zone-less timestamps are read as
// local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse decodes data into a canonical Record.
func Parse(data []byte) (*models.Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrParse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not an object", apperr.ErrParse)
	}
	return Normalize(raw)
}

// Normalize converts an already-decoded document into a canonical Record.
func Normalize(raw map[string]any) (*models.Record, error) {
	id, _ := raw["id"].(string)
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: missing id", apperr.ErrParse)
	}

	ts, err := parseTimestamp(raw["timestamp"])
	if err != nil {
		return nil, err
	}

	metadata, _ := raw["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &models.Record{
		ID:         id,
		RecordType: firstString(raw, typeKeys),
		Topic:      firstString(raw, topicKeys),
		Domain:     firstString(raw, domainKeys),
		Timestamp:  ts,
		Content:    contentMap(raw["content"]),
		Tags:       firstStrings(raw, tagKeys),
		Metadata:   metadata,
	}, nil
}

// firstString returns the value of the first present key as a string.
// A present key always wins, even when its value is empty or not a string.
func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case nil:
			return ""
		default:
			return fmt.Sprint(s)
		}
	}
	return ""
}

func firstStrings(m map[string]any, keys []string) []string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		out := []string{}
		switch list := v.(type) {
		case []any:
			for _, item := range list {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		case string:
			if list != "" {
				out = append(out, list)
			}
		}
		return out
	}
	return []string{}
}

func contentMap(v any) map[string]any {
	switch c := v.(type) {
	case map[string]any:
		return c
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"text": c}
	}
}

func parseTimestamp(v any) (time.Time, error) {
	s, ok := v.(string)
	if v == nil || (ok && s == "") {
		return time.Time{}, nil
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: timestamp is not a string", apperr.ErrParse)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", apperr.ErrParse, s)
}
