package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/models"
)

// RecordRow represents a row in the records table.
type RecordRow struct {
	ID         string
	Path       string
	RecordType string
	Topic      string
	Domain     string
	Timestamp  time.Time
	Checksum   string
	Tags       []string
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Topic   string `json:"topic"`
	Snippet string `json:"snippet"`
}

// Query narrows the set of indexed records. Empty fields match everything.
type Query struct {
	Tag           string
	TopicContains string
	RecordType    string
}

// UpsertRecord inserts or replaces a record, its tags, and its FTS entry within a transaction.
func (db *DB) UpsertRecord(r RecordRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	// A file may have been rewritten with a different id; drop the old row.
	var staleID string
	if err := tx.QueryRow(`SELECT id FROM records WHERE path = ? AND id != ?`, r.Path, r.ID).Scan(&staleID); err == nil {
		if err := deleteRecord(tx, staleID); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO records (id, path, entry_type, topic, domain, timestamp, checksum, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			entry_type = excluded.entry_type,
			topic      = excluded.topic,
			domain     = excluded.domain,
			timestamp  = excluded.timestamp,
			checksum   = excluded.checksum,
			body       = excluded.body
	`, r.ID, r.Path, r.RecordType, r.Topic, r.Domain, models.SortableTime(r.Timestamp), r.Checksum, body)
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	if err := ftsUpsert(tx, r.ID, r.Path, r.Topic, body, r.Tags); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM record_tags WHERE record_id = ?`, r.ID)
	if len(r.Tags) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO record_tags (record_id, tag) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare tag insert: %w", err)
		}
		defer stmt.Close()
		for _, tag := range r.Tags {
			if _, err := stmt.Exec(r.ID, tag); err != nil {
				return fmt.Errorf("index: insert tag: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteByPath removes the record stored at path and returns its id.
// An unknown path is not an error; the returned id is empty.
func (db *DB) DeleteByPath(path string) (string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	err = tx.QueryRow(`SELECT id FROM records WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: lookup path: %w", err)
	}
	if err := deleteRecord(tx, id); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

func deleteRecord(tx *sql.Tx, id string) error {
	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM record_tags WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete tags: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete record: %w", err)
	}
	return nil
}

// PathForID returns the file path of the record with the given id.
func (db *DB) PathForID(id string) (string, error) {
	var p string
	err := db.conn.QueryRow(`SELECT path FROM records WHERE id = ?`, id).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("index: path for id: %w", err)
	}
	return p, nil
}

// Query returns indexed records matching q, most recent first.
//
// Topic matching is only pushed down for ASCII needles, and topics holding
// any non-ASCII rune are always kept: SQLite's lower() folds ASCII only while
// strings.ToLower can fold runes such as U+212A KELVIN SIGN to ASCII. Callers
// rely on the result being a superset of an in-memory case-insensitive match.
func (db *DB) Query(q Query) ([]RecordRow, error) {
	var (
		conds []string
		args  []any
	)
	if q.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM record_tags t WHERE t.record_id = records.id AND t.tag = ?)`)
		args = append(args, q.Tag)
	}
	if q.TopicContains != "" && isASCII(q.TopicContains) {
		conds = append(conds, `(instr(lower(topic), lower(?)) > 0 OR topic GLOB ?)`)
		args = append(args, q.TopicContains, nonASCIIGlob)
	}
	if q.RecordType != "" {
		conds = append(conds, `entry_type = ?`)
		args = append(args, q.RecordType)
	}

	stmt := `SELECT id, path, entry_type, topic, domain, timestamp, checksum FROM records`
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}
	stmt += " ORDER BY timestamp DESC"

	rows, err := db.conn.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var (
			r  RecordRow
			ts string
		)
		if err := rows.Scan(&r.ID, &r.Path, &r.RecordType, &r.Topic, &r.Domain, &ts, &r.Checksum); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(models.SortableTimeLayout, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Count returns the number of indexed records.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// nonASCIIGlob matches any text containing a rune outside U+0001..U+007F.
const nonASCIIGlob = "*[^\x01-\x7f]*"

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
