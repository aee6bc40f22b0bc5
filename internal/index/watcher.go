package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lettamem/internal/checksum"
	"github.com/starford/lettamem/internal/storage"
)

// Watcher event kinds.
const (
	EventCreated = "created"
	EventRemoved = "removed"
)

// EventCallback is called after a watcher-driven index change.
// kind is EventCreated or EventRemoved; id is the record id.
type EventCallback func(kind string, id string)

// Watch starts an fsnotify watcher on the record directory and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) when a
// record appears, changes or disappears; rewriting a file with identical
// content is not reported again.
//
// Records are written by other producers too (scripts, editors), so the
// watcher is what keeps the index honest. Rename events trigger a debounced
// reconciliation pass.
func Watch(ctx context.Context, db RecordIndex, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	seen := announcedFromIndex(db, logger)

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	notify := func(kind, id string) {
		if cb != nil && id != "" {
			cb(kind, id)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, seen, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if !storage.IsRecordFile(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				sum := checksum.Sum(data)
				if seen[rel].checksum == sum {
					continue
				}
				rec, idxErr := IndexRecord(db, rel, data)
				if idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("id", rec.ID))
				seen[rel] = announced{id: rec.ID, checksum: sum}
				notify(EventCreated, rec.ID)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a Create if it stays inside a watched dir.
				id, delErr := db.DeleteByPath(rel)
				if delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				if id == "" {
					// Already dropped from the index by a sync.
					id = seen[rel].id
				}
				delete(seen, rel)
				logger.Debug("watcher: removed", slog.String("path", rel))
				notify(EventRemoved, id)
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// announced is the last state of a path reported through the callback.
type announced struct {
	id       string
	checksum string
}

// announcedFromIndex seeds the announced set with what is already indexed,
// so files present before the watcher started are not reported again until
// their content changes.
func announcedFromIndex(db RecordIndex, logger *slog.Logger) map[string]announced {
	seen := make(map[string]announced)
	rows, err := db.Query(Query{})
	if err != nil {
		logger.Warn("watcher: load index state failed", slog.String("error", err.Error()))
		return seen
	}
	for _, r := range rows {
		seen[r.Path] = announced{id: r.ID, checksum: r.Checksum}
	}
	return seen
}

// reconcile removes index entries without a file on disk and indexes
// on-disk files that are missing or stale in the index. Callbacks fire only
// for paths whose state differs from what was last announced.
func reconcile(db RecordIndex, store storage.Provider, logger *slog.Logger, seen map[string]announced, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, delErr := db.DeleteByPath(p); delErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
		}
	}
	for p, prev := range seen {
		if _, ok := disk[p]; ok {
			continue
		}
		delete(seen, p)
		notify(EventRemoved, prev.id)
	}

	for p, cs := range disk {
		if checksums[p] == cs && seen[p].checksum == cs {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			continue
		}
		rec, idxErr := IndexRecord(db, p, data)
		if idxErr != nil {
			continue
		}
		logger.Debug("reconcile: indexed", slog.String("path", p))
		if seen[p].checksum != cs {
			seen[p] = announced{id: rec.ID, checksum: cs}
			notify(EventCreated, rec.ID)
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
