package report

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/parser"
)

func TestTally_TypesWithUnknown(t *testing.T) {
	records := []models.Record{
		{RecordType: "a"},
		{RecordType: "a"},
		{RecordType: "b"},
		{},
	}
	got := Tally(records, DimType)
	want := []Count{{"a", 2}, {"Unknown", 1}, {"b", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tally = %v, want %v", got, want)
	}
}

func TestTally_TagsFlattened(t *testing.T) {
	records := []models.Record{
		{Tags: []string{"x", "y"}},
		{Tags: []string{"y"}},
		{},
	}
	got := Tally(records, DimTags)
	want := []Count{{"y", 2}, {"x", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tally = %v, want %v", got, want)
	}
}

func TestBuild_Empty(t *testing.T) {
	r := Build(nil)
	if r.Total != 0 {
		t.Errorf("total = %d", r.Total)
	}
	for _, dim := range Dimensions {
		if n := len(r.Section(dim)); n != 0 {
			t.Errorf("%s has %d rows", dim, n)
		}
	}
}

func TestBuild_SingleValuedSumsToTotal(t *testing.T) {
	records := []models.Record{
		{RecordType: "a", Topic: "t1", Domain: "work"},
		{RecordType: "b", Topic: "t1"},
		{Topic: "t2", Domain: "home", Tags: []string{"q", "r"}},
		{RecordType: "a"},
	}
	r := Build(records)
	for _, dim := range []Dimension{DimType, DimTopic, DimDomain} {
		sum := 0
		for _, c := range r.Section(dim) {
			sum += c.Count
		}
		if sum != r.Total {
			t.Errorf("%s sums to %d, want %d", dim, sum, r.Total)
		}
	}
}

func TestBuild_LegacyKeysCountAsSameType(t *testing.T) {
	docs := []string{
		`{"id":"1","entry_type":"conversation","topic":"x"}`,
		`{"id":"2","type":"conversation","title":"y"}`,
	}
	var records []models.Record
	for _, d := range docs {
		rec, err := parser.Parse([]byte(d))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		records = append(records, *rec)
	}
	got := Build(records).Types
	want := []Count{{"conversation", 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
}

func TestParseDimension(t *testing.T) {
	if d, err := ParseDimension(" Tags "); err != nil || d != DimTags {
		t.Errorf("ParseDimension = %q, %v", d, err)
	}
	if _, err := ParseDimension("color"); err == nil {
		t.Error("expected error")
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	r := Build([]models.Record{{RecordType: "note", Tags: []string{"go"}}})
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Total records: 1", "By type:", "note", "By tags:", "go", "By domain:", "Unknown"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
