package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"paperboy/internal/core"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite allows at most 999 bound parameters per statement, so seen-paper
// lookups run in chunks.
const seenQueryChunk = 500

// Store is the SQLite-backed digest archive and seen-paper ledger.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the archive database under dataDir, creating the
// directory, the database file, and the tables as needed.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "paperboy.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the archive tables.
func (s *Store) initialize() error {
	digestsTable := `
	CREATE TABLE IF NOT EXISTS digests (
		id TEXT PRIMARY KEY,
		generated_at DATETIME,
		selected_count INTEGER,
		total_reviewed INTEGER,
		summary TEXT,
		papers TEXT
	);`

	seenTable := `
	CREATE TABLE IF NOT EXISTS seen_papers (
		arxiv_id TEXT PRIMARY KEY,
		first_seen DATETIME
	);`

	tables := []string{digestsTable, seenTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

// SaveDigest records a completed digest run in the archive. Saving the
// same run id again replaces the earlier row.
func (s *Store) SaveDigest(digest *core.Digest) error {
	papers, err := json.Marshal(digest.Papers)
	if err != nil {
		return fmt.Errorf("failed to encode digest papers: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO digests
	(id, generated_at, selected_count, total_reviewed, summary, papers)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query,
		digest.ID,
		digest.GeneratedAt,
		digest.Stats.Selected,
		digest.Stats.Analyzed,
		digest.Summary,
		string(papers),
	)

	return err
}

// GetDigest retrieves one archived digest by run id. A miss returns nil
// without error. Only the selected and analyzed counts survive archiving;
// the earlier funnel-stage counts are not stored.
func (s *Store) GetDigest(id string) (*core.Digest, error) {
	query := `
	SELECT id, generated_at, selected_count, total_reviewed, summary, papers
	FROM digests
	WHERE id = ?`

	row := s.db.QueryRow(query, id)

	var digest core.Digest
	var papersJSON string

	err := row.Scan(
		&digest.ID,
		&digest.GeneratedAt,
		&digest.Stats.Selected,
		&digest.Stats.Analyzed,
		&digest.Summary,
		&papersJSON,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan digest: %w", err)
	}

	if err := json.Unmarshal([]byte(papersJSON), &digest.Papers); err != nil {
		return nil, fmt.Errorf("failed to decode digest papers: %w", err)
	}

	return &digest, nil
}

// DigestSummary is one archive row as presented by digest listings.
type DigestSummary struct {
	ID            string
	GeneratedAt   time.Time
	SelectedCount int
	TotalReviewed int
	Summary       string
}

// ListDigests returns archived digests newest first. A non-positive limit
// returns the whole archive.
func (s *Store) ListDigests(limit int) ([]DigestSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	query := `
	SELECT id, generated_at, selected_count, total_reviewed, summary
	FROM digests
	ORDER BY generated_at DESC
	LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests: %w", err)
	}
	defer rows.Close()

	var digests []DigestSummary
	for rows.Next() {
		var d DigestSummary
		if err := rows.Scan(&d.ID, &d.GeneratedAt, &d.SelectedCount, &d.TotalReviewed, &d.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan digest row: %w", err)
		}
		digests = append(digests, d)
	}

	return digests, rows.Err()
}

// MarkSeen records arXiv ids in the seen ledger. Ids already present keep
// their original first_seen date.
func (s *Store) MarkSeen(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO seen_papers (arxiv_id, first_seen) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare seen insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := stmt.Exec(id, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to mark %s seen: %w", id, err)
		}
	}

	return tx.Commit()
}

// FilterUnseen returns the subset of ids with no seen-ledger record,
// preserving input order.
func (s *Store) FilterUnseen(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	for start := 0; start < len(ids); start += seenQueryChunk {
		end := start + seenQueryChunk
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.collectSeen(ids[start:end], seen); err != nil {
			return nil, err
		}
	}

	unseen := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			unseen = append(unseen, id)
		}
	}

	return unseen, nil
}

// collectSeen marks every id from the chunk that has a ledger row.
func (s *Store) collectSeen(chunk []string, seen map[string]bool) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
	query := fmt.Sprintf("SELECT arxiv_id FROM seen_papers WHERE arxiv_id IN (%s)", placeholders)

	args := make([]any, len(chunk))
	for i, id := range chunk {
		args[i] = id
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query seen papers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan seen paper: %w", err)
		}
		seen[id] = true
	}

	return rows.Err()
}
