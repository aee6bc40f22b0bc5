package recordstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/report"
	"github.com/starford/lettamem/internal/testutil"
)

func newIndexed(t *testing.T, cacheSize int64) (*Indexed, *index.DB, string) {
	t.Helper()
	dir, files := testutil.TestRecords(t)
	db := testutil.TestDB(t)
	s, err := NewIndexed(NewFileStore(files, WithLogger(testutil.DiscardLogger()), WithClock(stepClock())), db, cacheSize)
	if err != nil {
		t.Fatalf("NewIndexed: %v", err)
	}
	t.Cleanup(s.Close)
	return s, db, dir
}

func TestIndexed_CreateIndexesRecord(t *testing.T) {
	s, db, _ := newIndexed(t, 100)
	id := mustCreate(t, s, models.NewRecord{Topic: "Indexed", Tags: []string{"x"}})

	path, err := db.PathForID(id)
	if err != nil {
		t.Fatalf("PathForID: %v", err)
	}
	if path != FileName("Indexed", id) {
		t.Errorf("path = %q", path)
	}
	n, _ := s.Count(context.Background())
	if n != 1 {
		t.Errorf("count = %d", n)
	}
}

func TestIndexed_SameResultsAsFileStore(t *testing.T) {
	for _, size := range []int64{0, 100} {
		s, _, _ := newIndexed(t, size)
		ctx := context.Background()
		first := mustCreate(t, s, models.NewRecord{Topic: "ABCdef", Tags: []string{"a", "b"}})
		second := mustCreate(t, s, models.NewRecord{Topic: "other", Tags: []string{"b"}, Metadata: map[string]any{"k": "v"}})
		mustCreate(t, s, models.NewRecord{Topic: "third", Tags: []string{"c"}})

		filters := []Filter{
			{},
			{Tag: "b"},
			{TopicContains: "abc"},
			{Metadata: map[string]any{"k": "v"}},
			{RecordType: "nope"},
		}
		for _, f := range filters {
			want, err := s.Files().List(ctx, f)
			if err != nil {
				t.Fatalf("FileStore.List: %v", err)
			}
			got, err := s.List(ctx, f)
			if err != nil {
				t.Fatalf("Indexed.List: %v", err)
			}
			if !reflect.DeepEqual(ids(got), ids(want)) {
				t.Errorf("cache=%d filter %+v: got %v, want %v", size, f, ids(got), ids(want))
			}
		}

		got, _ := s.List(ctx, Filter{Tag: "b"})
		if !reflect.DeepEqual(ids(got), []string{second, first}) {
			t.Errorf("tag order = %v", ids(got))
		}
	}
}

func TestIndexed_GetFallsBackToScan(t *testing.T) {
	s, _, dir := newIndexed(t, 0)
	raw := `{"id":"late","entry_type":"user_memory","topic":"Late","timestamp":"2025-02-01T00:00:00Z","content":{},"tags":[],"metadata":{}}`
	if err := os.WriteFile(filepath.Join(dir, "late_late.json"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(context.Background(), "late")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Topic != "Late" {
		t.Errorf("topic = %q", got.Topic)
	}
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestIndexed_CachedRecordsAreCopies(t *testing.T) {
	s, _, _ := newIndexed(t, 100)
	ctx := context.Background()
	id := mustCreate(t, s, models.NewRecord{Topic: "c", Tags: []string{"keep"}, Metadata: map[string]any{"m": "1"}})

	// ristretto admits writes asynchronously.
	s.cache.Wait()

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Tags[0] = "mutated"
	got.Metadata["m"] = "2"

	again, _ := s.Get(ctx, id)
	if again.Tags[0] != "keep" || again.Metadata["m"] != "1" {
		t.Errorf("cached record mutated: %+v", again)
	}
}

func TestIndexed_ListSkipsVanishedFiles(t *testing.T) {
	s, _, dir := newIndexed(t, 0)
	keep := mustCreate(t, s, models.NewRecord{Topic: "keep"})
	gone := mustCreate(t, s, models.NewRecord{Topic: "gone"})
	if err := os.Remove(filepath.Join(dir, FileName("gone", gone))); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{keep}) {
		t.Errorf("ids = %v", ids(got))
	}
}

func TestIndexed_ListRespectsContext(t *testing.T) {
	s, _, _ := newIndexed(t, 0)
	mustCreate(t, s, models.NewRecord{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.List(ctx, Filter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIndexed_ListIncludesFilesFromOtherProducers(t *testing.T) {
	for _, size := range []int64{0, 100} {
		s, _, dir := newIndexed(t, size)
		ctx := context.Background()
		own := mustCreate(t, s, models.NewRecord{RecordType: "user_memory", Topic: "Own", Tags: []string{"x"}})

		// Legacy key names as written by older scripts.
		legacy := `{"id":"ext-1","type":"code_context","title":"From script","labels":["x","py"],"timestamp":"2030-01-01T00:00:00","content":"raw text"}`
		if err := os.WriteFile(filepath.Join(dir, "from_script_ext-1.json"), []byte(legacy), 0o644); err != nil {
			t.Fatal(err)
		}

		filters := []Filter{{}, {Tag: "x"}, {Tag: "py"}, {TopicContains: "script"}, {RecordType: "code_context"}}
		for _, f := range filters {
			want, err := s.Files().List(ctx, f)
			if err != nil {
				t.Fatalf("FileStore.List: %v", err)
			}
			got, err := s.List(ctx, f)
			if err != nil {
				t.Fatalf("Indexed.List: %v", err)
			}
			if !reflect.DeepEqual(ids(got), ids(want)) {
				t.Errorf("cache=%d filter %+v: got %v, want %v", size, f, ids(got), ids(want))
			}
		}

		all, _ := s.List(ctx, Filter{})
		if !reflect.DeepEqual(ids(all), []string{"ext-1", own}) {
			t.Errorf("cache=%d ids = %v", size, ids(all))
		}

		rep := report.Build(all)
		if rep.Total != 2 {
			t.Errorf("cache=%d report total = %d, want 2", size, rep.Total)
		}
		types := map[string]int{}
		for _, c := range rep.Types {
			types[c.Value] = c.Count
		}
		if types["code_context"] != 1 || types["user_memory"] != 1 {
			t.Errorf("cache=%d types = %+v", size, rep.Types)
		}

		n, err := s.Count(ctx)
		if err != nil || n != 2 {
			t.Errorf("cache=%d count = %d, err = %v", size, n, err)
		}
	}
}

func TestIndexed_ListDropsFilesRemovedByOtherProducers(t *testing.T) {
	s, db, dir := newIndexed(t, 0)
	ctx := context.Background()
	keep := mustCreate(t, s, models.NewRecord{Topic: "keep"})
	gone := mustCreate(t, s, models.NewRecord{Topic: "gone"})
	if err := os.Remove(filepath.Join(dir, FileName("gone", gone))); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{keep}) {
		t.Errorf("ids = %v", ids(got))
	}
	if _, err := db.PathForID(gone); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("removed file still indexed: %v", err)
	}
}
