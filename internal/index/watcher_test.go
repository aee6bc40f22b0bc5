package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/lettamem/internal/storage"
)

// watcherTestEnv sets up a record dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func recordJSON(id string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"entry_type":"user_memory","topic":"t","timestamp":"2025-01-01T00:00:00Z","content":{},"tags":[],"metadata":{}}`, id))
}

func indexed(db *DB, id string) bool {
	_, err := db.PathForID(id)
	return err == nil
}

func TestSync(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(dir, "t_a.json"), recordJSON("a"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "t_b.json"), recordJSON("b"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644)

	stats, err := Sync(db, store, quietLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Indexed != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}

	_ = os.Remove(filepath.Join(dir, "t_a.json"))
	stats, err = Sync(db, store, quietLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Removed != 1 || stats.Unchanged != 1 {
		t.Errorf("second stats = %+v", stats)
	}
	if indexed(db, "a") {
		t.Error("removed file still indexed")
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, dir, quietLogger(), func(kind, id string) {
		mu.Lock()
		events = append(events, kind+":"+id)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "t_new.json"), recordJSON("new"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "new")
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new" {
				return true
			}
		}
		return false
	}, "expected created:new callback")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(dir, "t_del.json"), recordJSON("del"), 0o644)
	_, _ = Sync(db, store, quietLogger())
	if !indexed(db, "del") {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, dir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "t_del.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(db, "del")
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(dir, "old_r.json"), recordJSON("r"), 0o644)
	_, _ = Sync(db, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, dir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old_r.json"), filepath.Join(dir, "renamed_r.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		p, err := db.PathForID("r")
		return err == nil && p == "renamed_r.json"
	}, "rename reconciliation failed: record should point at the new path")
}

func TestWatcher_IdenticalRewritesNotifyOnce(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	counts := map[string]int{}
	go Watch(ctx, db, store, dir, quietLogger(), func(kind, id string) {
		mu.Lock()
		counts[kind+":"+id]++
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "t_chunked.json")
	for i := 0; i < 3; i++ {
		_ = os.WriteFile(path, recordJSON("chunked"), 0o644)
		time.Sleep(50 * time.Millisecond)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "chunked")
	}, "file not indexed by watcher")
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	got := counts["created:chunked"]
	mu.Unlock()
	if got != 1 {
		t.Errorf("created events = %d, want 1", got)
	}

	changed := []byte(`{"id":"chunked","entry_type":"user_memory","topic":"changed","timestamp":"2025-01-01T00:00:00Z","content":{},"tags":[],"metadata":{}}`)
	_ = os.WriteFile(path, changed, 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["created:chunked"] == 2
	}, "changed content should be reported again")
}

func TestWatcher_RemoveAfterSyncStillNotifies(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	path := filepath.Join(dir, "t_gone.json")
	_ = os.WriteFile(path, recordJSON("gone"), 0o644)
	if _, err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go Watch(ctx, db, store, dir, quietLogger(), func(kind, id string) {
		mu.Lock()
		events = append(events, kind+":"+id)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(path)
	// A listing sync may drop the row before the watcher sees the event.
	_, _ = Sync(db, store, quietLogger())

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "removed:gone" {
				return true
			}
		}
		return false
	}, "expected removed:gone callback")
}
