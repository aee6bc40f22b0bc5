package recordstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/lettamem/internal/models"
)

// Filter selects records. All non-empty criteria must match; the zero
// Filter matches every record.
type Filter struct {
	// Tag must appear in the record's tags.
	Tag string `json:"tag,omitempty"`
	// TopicContains is a case-insensitive substring of the topic.
	TopicContains string `json:"topic,omitempty"`
	// RecordType must equal the record type.
	RecordType string `json:"entry_type,omitempty"`
	// Metadata pairs must all be present with equal values.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsZero reports whether f has no criteria.
func (f Filter) IsZero() bool {
	return f.Tag == "" && f.TopicContains == "" && f.RecordType == "" && len(f.Metadata) == 0
}

// Match reports whether r satisfies every criterion of f.
func (f Filter) Match(r *models.Record) bool {
	if f.Tag != "" && !slices.Contains(r.Tags, f.Tag) {
		return false
	}
	if f.TopicContains != "" && !strings.Contains(strings.ToLower(r.Topic), strings.ToLower(f.TopicContains)) {
		return false
	}
	if f.RecordType != "" && r.RecordType != f.RecordType {
		return false
	}
	for k, want := range f.Metadata {
		got, ok := r.Metadata[k]
		if !ok || !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

// Apply returns the records of in that match f, preserving order.
func (f Filter) Apply(in []models.Record) []models.Record {
	if f.IsZero() {
		return in
	}
	out := make([]models.Record, 0, len(in))
	for i := range in {
		if f.Match(&in[i]) {
			out = append(out, in[i])
		}
	}
	return out
}

// jsonEqual compares two JSON-compatible values by their encoding, so that
// numbers decoded as float64 equal the same numbers given as ints.
// encoding/json sorts map keys, which makes the comparison order-independent.
func jsonEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// ParseMetadataPairs converts "key=value" strings into a metadata filter.
// Values that are valid JSON are decoded (n=3 becomes a number, ok=true a
// bool); anything else is kept as a plain string.
func ParseMetadataPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata filter %q: want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}
