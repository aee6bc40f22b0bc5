package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/lettamem/internal/conversation"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/letta"
	"github.com/starford/lettamem/internal/recordstore"
	"github.com/starford/lettamem/internal/storage"
)

// Runtime holds the opened stores shared by the server, the MCP server and
// the CLI commands.
type Runtime struct {
	Config        *Config
	Files         storage.Provider
	Index         *index.DB
	Records       *recordstore.Indexed
	Conversations *conversation.Log
}

// Open creates the record directory if needed and opens every store.
func Open(cfg *Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(cfg.Records.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Records.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	records, err := recordstore.NewIndexed(recordstore.NewFileStore(files, recordstore.WithLogger(logger)), db, cfg.Records.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	conv, err := conversation.Open(cfg.SQLite.Path)
	if err != nil {
		records.Close()
		db.Close()
		return nil, fmt.Errorf("init conversation log: %w", err)
	}
	return &Runtime{
		Config:        cfg,
		Files:         files,
		Index:         db,
		Records:       records,
		Conversations: conv,
	}, nil
}

// Close releases every store.
func (rt *Runtime) Close() error {
	rt.Records.Close()
	return errors.Join(rt.Conversations.Close(), rt.Index.Close())
}

// LettaClient builds a client for the configured Letta server.
func (c *Config) LettaClient() (*letta.Client, error) {
	return letta.New(letta.Config{
		URL:        c.Letta.URL,
		AgentsPath: c.Letta.AgentsPath,
		HealthPath: c.Letta.HealthPath,
		Token:      c.Letta.Token,
		Timeout:    c.Letta.Timeout,
	})
}
