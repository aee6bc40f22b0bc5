// Package report tallies records along their categorical dimensions.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/starford/lettamem/internal/models"
)

// Unknown is counted for records with an empty single-valued dimension.
const Unknown = "Unknown"

// Dimension names a categorical attribute of a record.
type Dimension string

// Supported dimensions.
const (
	DimType   Dimension = "type"
	DimTopic  Dimension = "topic"
	DimTags   Dimension = "tags"
	DimDomain Dimension = "domain"
)

// Dimensions lists every dimension in report order.
var Dimensions = []Dimension{DimType, DimTopic, DimTags, DimDomain}

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	for _, d := range Dimensions {
		if string(d) == strings.ToLower(strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("report: unknown dimension %q", s)
}

// Count is one row of a tally.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Report holds one tally per dimension.
type Report struct {
	Total   int     `json:"total"`
	Types   []Count `json:"types"`
	Topics  []Count `json:"topics"`
	Tags    []Count `json:"tags"`
	Domains []Count `json:"domains"`
}

// Build tallies every dimension.
func Build(records []models.Record) Report {
	return Report{
		Total:   len(records),
		Types:   Tally(records, DimType),
		Topics:  Tally(records, DimTopic),
		Tags:    Tally(records, DimTags),
		Domains: Tally(records, DimDomain),
	}
}

// Tally counts the values of dim across records, sorted by count
// descending and then by value.
func Tally(records []models.Record, dim Dimension) []Count {
	counts := make(map[string]int)
	for i := range records {
		r := &records[i]
		switch dim {
		case DimTags:
			for _, tag := range r.Tags {
				counts[tag]++
			}
		case DimType:
			counts[orUnknown(r.RecordType)]++
		case DimTopic:
			counts[orUnknown(r.Topic)]++
		case DimDomain:
			counts[orUnknown(r.Domain)]++
		}
	}

	out := make([]Count, 0, len(counts))
	for v, n := range counts {
		out = append(out, Count{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}

// Section returns the tally for dim.
func (r Report) Section(dim Dimension) []Count {
	switch dim {
	case DimType:
		return r.Types
	case DimTopic:
		return r.Topics
	case DimTags:
		return r.Tags
	case DimDomain:
		return r.Domains
	}
	return nil
}

// WriteText renders the report as plain text, one section per dimension.
func (r Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Total records: %d\n", r.Total); err != nil {
		return err
	}
	for _, dim := range Dimensions {
		if _, err := fmt.Fprintf(w, "\nBy %s:\n", dim); err != nil {
			return err
		}
		rows := r.Section(dim)
		if len(rows) == 0 {
			if _, err := fmt.Fprintln(w, "  (none)"); err != nil {
				return err
			}
			continue
		}
		for _, c := range rows {
			if _, err := fmt.Fprintf(w, "  %-30s %d\n", c.Value, c.Count); err != nil {
				return err
			}
		}
	}
	return nil
}
