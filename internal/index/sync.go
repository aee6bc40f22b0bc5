package index

import (
	"encoding/json"
	"log/slog"

	"github.com/starford/lettamem/internal/checksum"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/parser"
	"github.com/starford/lettamem/internal/storage"
)

// SyncStats summarises one Sync pass.
type SyncStats struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Skipped   int `json:"skipped"`
}

// Sync walks the record directory and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
//   - malformed files are logged and skipped
func Sync(db RecordIndex, store storage.Provider, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	metas, err := store.List("")
	if err != nil {
		return stats, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			stats.Unchanged++
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		if _, err := IndexRecord(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			stats.Skipped++
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		stats.Indexed++
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := db.DeleteByPath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
		stats.Removed++
	}

	return stats, nil
}

// IndexRecord parses data and upserts it into the index.
// Exported so that the record store, sync and watcher share one code path.
func IndexRecord(db RecordIndex, path string, data []byte) (*models.Record, error) {
	rec, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	row := RecordRow{
		ID:         rec.ID,
		Path:       path,
		RecordType: rec.RecordType,
		Topic:      rec.Topic,
		Domain:     rec.Domain,
		Timestamp:  rec.Timestamp,
		Checksum:   checksum.Sum(data),
		Tags:       rec.Tags,
	}
	if err := db.UpsertRecord(row, searchBody(rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

// searchBody is the text indexed for full-text search.
func searchBody(rec *models.Record) string {
	content, _ := json.Marshal(rec.Content)
	return string(content)
}
