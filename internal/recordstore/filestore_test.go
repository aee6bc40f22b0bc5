package recordstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/storage"
)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newFileStore(t *testing.T, opts ...Option) (*FileStore, *bytes.Buffer) {
	t.Helper()
	files, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithLogger(logger), WithClock(stepClock())}, opts...)
	return NewFileStore(files, opts...), &logs
}

func mustCreate(t *testing.T, s Store, nr models.NewRecord) string {
	t.Helper()
	id, err := s.Create(context.Background(), nr)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFileStore_CreateGetRoundTrip(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	nr := models.NewRecord{
		Topic:    "Go Tips",
		Content:  map[string]any{"text": "prefer errgroup", "nested": map[string]any{"k": "v"}},
		Tags:     []string{"go", "concurrency"},
		Metadata: map[string]any{"source": "cli"},
	}
	id := mustCreate(t, s, nr)

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != id || got.Timestamp.IsZero() {
		t.Fatalf("id/timestamp not populated: %+v", got)
	}
	if got.RecordType != models.DefaultRecordType {
		t.Errorf("type = %q", got.RecordType)
	}
	if got.Topic != nr.Topic || !reflect.DeepEqual(got.Tags, nr.Tags) {
		t.Errorf("topic/tags = %q %v", got.Topic, got.Tags)
	}
	if !reflect.DeepEqual(got.Content, nr.Content) || !reflect.DeepEqual(got.Metadata, nr.Metadata) {
		t.Errorf("content/metadata = %v %v", got.Content, got.Metadata)
	}

	again, _ := s.Get(ctx, id)
	if !reflect.DeepEqual(got, again) {
		t.Error("repeated Get should return identical records")
	}
}

func TestFileStore_DefaultTopic(t *testing.T) {
	s, _ := newFileStore(t)
	id := mustCreate(t, s, models.NewRecord{Content: map[string]any{"a": "b"}})

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Topic != "Untitled Memory" {
		t.Errorf("topic = %q, want Untitled Memory", got.Topic)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("tags = %#v, want empty", got.Tags)
	}
}

func TestFileStore_FileName(t *testing.T) {
	s, _ := newFileStore(t)
	id := mustCreate(t, s, models.NewRecord{Topic: "Hello, World/2025!"})

	want := filepath.Join(s.Files().Root(), "hello_ world_2025__"+id+".json")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected file %s: %v", want, err)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Untitled Memory": "untitled memory",
		"a-b.c":           "a_b_c",
		"snake_case OK":   "snake_case ok",
		"Ünïcode Straße":  "ünïcode straße",
		"../etc":          "___etc",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileStore_GetNotFound(t *testing.T) {
	s, _ := newFileStore(t)
	mustCreate(t, s, models.NewRecord{Topic: "x"})

	for _, id := range []string{"missing", "", "../x"} {
		if _, err := s.Get(context.Background(), id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestFileStore_ListTagScenario(t *testing.T) {
	s, _ := newFileStore(t)
	first := mustCreate(t, s, models.NewRecord{Tags: []string{"a", "b"}})
	second := mustCreate(t, s, models.NewRecord{Tags: []string{"b"}})
	mustCreate(t, s, models.NewRecord{Tags: []string{"c"}})

	got, err := s.List(context.Background(), Filter{Tag: "b"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{second, first}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestFileStore_ListSortedByRecency(t *testing.T) {
	s, _ := newFileStore(t)
	for i := 0; i < 5; i++ {
		mustCreate(t, s, models.NewRecord{Topic: "r"})
	}
	got, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Errorf("not sorted at %d: %v before %v", i, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

func TestFileStore_ListTopicCaseInsensitive(t *testing.T) {
	s, _ := newFileStore(t)
	match := mustCreate(t, s, models.NewRecord{Topic: "ABCdef"})
	mustCreate(t, s, models.NewRecord{Topic: "xyz"})

	got, _ := s.List(context.Background(), Filter{TopicContains: "abc"})
	if !reflect.DeepEqual(ids(got), []string{match}) {
		t.Errorf("ids = %v, want [%s]", ids(got), match)
	}
}

func TestFileStore_ListMetadataAndType(t *testing.T) {
	s, _ := newFileStore(t)
	a := mustCreate(t, s, models.NewRecord{RecordType: "note", Metadata: map[string]any{"project": "x", "prio": 1}})
	mustCreate(t, s, models.NewRecord{RecordType: "note", Metadata: map[string]any{"project": "y"}})
	mustCreate(t, s, models.NewRecord{RecordType: "other", Metadata: map[string]any{"project": "x"}})

	got, _ := s.List(context.Background(), Filter{RecordType: "note", Metadata: map[string]any{"project": "x", "prio": 1}})
	if !reflect.DeepEqual(ids(got), []string{a}) {
		t.Errorf("ids = %v, want [%s]", ids(got), a)
	}
}

func TestFileStore_ListSkipsMalformed(t *testing.T) {
	s, logs := newFileStore(t)
	good := mustCreate(t, s, models.NewRecord{Topic: "good"})
	if err := os.WriteFile(filepath.Join(s.Files().Root(), "broken_x.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List should not fail on malformed files: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{good}) {
		t.Errorf("ids = %v, want [%s]", ids(got), good)
	}
	if !strings.Contains(logs.String(), "skipping malformed record") || !strings.Contains(logs.String(), "broken_x.json") {
		t.Errorf("expected warning in logs, got %q", logs.String())
	}
}

func TestFileStore_LegacyRecordsNormalized(t *testing.T) {
	s, _ := newFileStore(t)
	legacy := `{"id":"legacy-1","type":"conversation","title":"Old","timestamp":"2020-01-01T00:00:00","content":{},"categories":["x"]}`
	if err := os.WriteFile(filepath.Join(s.Files().Root(), "conversation_legacy-1.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(context.Background(), "legacy-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RecordType != "conversation" || got.Topic != "Old" || got.Tags[0] != "x" {
		t.Errorf("not normalized: %+v", got)
	}
	listed, _ := s.List(context.Background(), Filter{Tag: "x"})
	if len(listed) != 1 {
		t.Errorf("legacy tags not filterable: %v", ids(listed))
	}
}

func TestFileStore_Enrichment(t *testing.T) {
	s, _ := newFileStore(t)
	id := mustCreate(t, s, models.NewRecord{
		RecordType: TypeCodeContext,
		Content:    map[string]any{"file_path": "main.go", "language": "go"},
		Metadata:   map[string]any{"author": "me"},
	})
	got, _ := s.Get(context.Background(), id)
	if got.Metadata["file_path"] != "main.go" || got.Metadata["language"] != "go" || got.Metadata["author"] != "me" {
		t.Errorf("metadata = %v", got.Metadata)
	}

	id = mustCreate(t, s, models.NewRecord{RecordType: TypeUserPreference, Content: map[string]any{"category": "ui"}})
	got, _ = s.Get(context.Background(), id)
	if got.Metadata["scope"] != "global" || got.Metadata["category"] != "ui" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestFileStore_CreateDoesNotMutateInput(t *testing.T) {
	s, _ := newFileStore(t)
	meta := map[string]any{}
	mustCreate(t, s, models.NewRecord{RecordType: TypeConversation, Metadata: meta})
	if len(meta) != 0 {
		t.Errorf("caller metadata mutated: %v", meta)
	}
}

func TestFileStore_CreateStorageError(t *testing.T) {
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(files)
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	_, err = s.Create(context.Background(), models.NewRecord{})
	if !errors.Is(err, apperr.ErrStorage) {
		t.Errorf("err = %v, want ErrStorage", err)
	}
}
