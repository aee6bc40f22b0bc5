package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/models"
)

// Indexed implements Store on top of a FileStore, using the SQLite index
// for point lookups and to narrow listings. Records are immutable, so
// decoded records are cached by id.
//
// Other producers write into the record directory too, so every listing,
// search and count first brings the index in line with the directory.
type Indexed struct {
	files  *FileStore
	db     index.RecordIndex
	cache  *ristretto.Cache
	logger *slog.Logger

	syncMu sync.Mutex
}

// NewIndexed creates an indexed store. cacheSize is the maximum number of
// cached records; zero or less disables caching.
func NewIndexed(files *FileStore, db index.RecordIndex, cacheSize int64) (*Indexed, error) {
	s := &Indexed{files: files, db: db, logger: files.logger}
	if cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cacheSize * 10,
			MaxCost:     cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("recordstore: create cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Close releases the record cache.
func (s *Indexed) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// Files returns the underlying file store.
func (s *Indexed) Files() *FileStore { return s.files }

// Index returns the underlying index.
func (s *Indexed) Index() index.RecordIndex { return s.db }

// Create writes the record file and indexes it. An index failure is logged
// but does not fail the call: the file is the source of truth and the next
// sync picks it up.
func (s *Indexed) Create(ctx context.Context, nr models.NewRecord) (string, error) {
	rec, path, data, err := s.files.create(ctx, nr)
	if err != nil {
		return "", err
	}
	if _, err := index.IndexRecord(s.db, path, data); err != nil {
		s.logger.Warn("recordstore: index after create failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
	}
	s.remember(rec)
	return rec.ID, nil
}

// Get looks the record up through the index, falling back to a directory
// scan when the index has not caught up yet.
func (s *Indexed) Get(ctx context.Context, id string) (*models.Record, error) {
	if rec, ok := s.cached(id); ok {
		return rec, nil
	}

	path, err := s.db.PathForID(id)
	switch {
	case err == nil:
		if rec, readErr := s.files.readRecord(path); readErr == nil && rec.ID == id {
			s.remember(rec)
			return clone(rec), nil
		}
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	rec, err := s.files.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(rec)
	return clone(rec), nil
}

// List narrows candidates through the index, then applies the full filter
// in memory and re-sorts by timestamp.
func (s *Indexed) List(ctx context.Context, f Filter) ([]models.Record, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(index.Query{
		Tag:           f.Tag,
		TopicContains: f.TopicContains,
		RecordType:    f.RecordType,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, ok := s.cached(row.ID)
		if !ok {
			loaded, err := s.files.readRecord(row.Path)
			if err != nil {
				continue
			}
			s.remember(loaded)
			rec = loaded
		}
		if f.Match(rec) {
			out = append(out, *rec)
		}
	}
	sortByRecency(out)
	return out, nil
}

// Search runs a full-text query against the index.
func (s *Indexed) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.db.Search(query, limit)
}

// Count returns the number of indexed records.
func (s *Indexed) Count(ctx context.Context) (int, error) {
	if err := s.refresh(ctx); err != nil {
		return 0, err
	}
	return s.db.Count()
}

// refresh indexes files that appeared or changed on disk since the last pass
// and drops rows whose file is gone.
func (s *Indexed) refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	stats, err := index.Sync(s.db, s.files.Files(), s.logger)
	if err != nil {
		return fmt.Errorf("%w: sync index: %w", apperr.ErrStorage, err)
	}
	if stats.Indexed > 0 || stats.Removed > 0 {
		s.logger.Debug("recordstore: index refreshed",
			slog.Int("indexed", stats.Indexed), slog.Int("removed", stats.Removed))
	}
	return nil
}

func (s *Indexed) cached(id string) (*models.Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*models.Record)
	if !ok {
		return nil, false
	}
	return clone(rec), true
}

func (s *Indexed) remember(rec *models.Record) {
	if s.cache != nil {
		s.cache.Set(rec.ID, clone(rec), 1)
	}
}

// clone copies a record so callers cannot mutate cached state through
// its top-level collections.
func clone(r *models.Record) *models.Record {
	c := *r
	c.Content = maps.Clone(r.Content)
	c.Metadata = maps.Clone(r.Metadata)
	c.Tags = slices.Clone(r.Tags)
	return &c
}
