package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/models"
	"github.com/starford/lettamem/internal/parser"
	"github.com/starford/lettamem/internal/storage"
)

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

// WithLogger sets the logger used for skipped-record warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// FileStore implements Store with one JSON file per record and full
// directory scans for reads.
type FileStore struct {
	files  storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates a FileStore over files.
func NewFileStore(files storage.Provider, opts ...Option) *FileStore {
	s := &FileStore{
		files:  files,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Files returns the underlying file provider.
func (s *FileStore) Files() storage.Provider { return s.files }

// Create persists a new record and returns its id.
func (s *FileStore) Create(ctx context.Context, nr models.NewRecord) (string, error) {
	rec, _, _, err := s.create(ctx, nr)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *FileStore) create(_ context.Context, nr models.NewRecord) (*models.Record, string, []byte, error) {
	rec := &models.Record{
		ID:         uuid.NewString(),
		RecordType: nr.RecordType,
		Topic:      nr.Topic,
		Domain:     nr.Domain,
		Timestamp:  s.now().UTC(),
		Content:    maps.Clone(nr.Content),
		Tags:       append([]string{}, nr.Tags...),
		Metadata:   maps.Clone(nr.Metadata),
	}
	if rec.RecordType == "" {
		rec.RecordType = models.DefaultRecordType
	}
	if rec.Topic == "" {
		rec.Topic = models.DefaultTopic
	}
	if rec.Content == nil {
		rec.Content = map[string]any{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	enrich(rec.RecordType, rec.Content, rec.Metadata)

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: encode record: %w", apperr.ErrStorage, err)
	}
	path := FileName(rec.Topic, rec.ID)
	if err := s.files.Write(path, data); err != nil {
		return nil, "", nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}

	s.logger.Info("recordstore: stored", slog.String("id", rec.ID), slog.String("path", path))
	return rec, path, data, nil
}

// Get scans the directory for the record with the given id.
func (s *FileStore) Get(_ context.Context, id string) (*models.Record, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, apperr.ErrNotFound
	}
	metas, err := s.files.List("")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	for _, m := range metas {
		if !strings.Contains(filepath.Base(m.Path), id) {
			continue
		}
		rec, err := s.readRecord(m.Path)
		if err != nil {
			continue
		}
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// List loads every record, applies f and sorts by timestamp descending.
// Files that cannot be read or decoded are skipped with a warning.
func (s *FileStore) List(ctx context.Context, f Filter) ([]models.Record, error) {
	metas, err := s.files.List("")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	out := make([]models.Record, 0, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.readRecord(m.Path)
		if err != nil {
			continue
		}
		if f.Match(rec) {
			out = append(out, *rec)
		}
	}
	sortByRecency(out)
	return out, nil
}

// readRecord reads and decodes one file, logging a warning on failure.
func (s *FileStore) readRecord(path string) (*models.Record, error) {
	data, err := s.files.Read(path)
	if err != nil {
		s.logger.Warn("recordstore: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}
	rec, err := parser.Parse(data)
	if err != nil {
		if errors.Is(err, apperr.ErrParse) {
			s.logger.Warn("recordstore: skipping malformed record", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil, err
	}
	return rec, nil
}

// FileName returns the file name for a record: the sanitized topic, an
// underscore, the id and the .json extension.
func FileName(topic, id string) string {
	return Sanitize(topic) + "_" + id + storage.RecordExt
}

// Sanitize keeps letters, digits, spaces and underscores, replaces every
// other rune with an underscore, and lower-cases the result.
func Sanitize(topic string) string {
	var b strings.Builder
	b.Grow(len(topic))
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
