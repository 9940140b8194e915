// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("file not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrInvalidPath   = errors.New("invalid path")
	ErrSearchMissing = errors.New("search text not found")
)

// =============================================================================
// TYPES
// =============================================================================

// FileInfo describes one stored file.
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Replacement is one search/replace pair for SearchReplace.
type Replacement struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// Config holds store configuration.
type Config struct {
	// DBPath is the SQLite database file path.
	DBPath string

	// MaxFileBytes caps a single file; 0 = unlimited.
	MaxFileBytes int64

	// MaxTotalBytes caps the whole store; 0 = unlimited.
	MaxTotalBytes int64
}

// Store is a path-keyed file store over SQLite. Safe for concurrent use;
// the database serializes writers.
type Store struct {
	db  *sql.DB
	cfg Config
}

// =============================================================================
// OPEN / CLOSE
// =============================================================================

// Open opens (creating if needed) the store database at cfg.DBPath.
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("store: DBPath is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// PERFORMANCE: WAL keeps reads concurrent with the single writer.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path       TEXT PRIMARY KEY,
		content    BLOB NOT NULL,
		size       INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// PATH VALIDATION
// =============================================================================

// CleanPath validates and canonicalizes a virtual file path. Paths are
// always relative, slash-separated keys; traversal and absolute forms are
// rejected rather than resolved.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: traversal in %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Read returns the content of the file at path.
func (s *Store) Read(ctx context.Context, p string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	var content []byte
	err = s.db.QueryRowContext(ctx, "SELECT content FROM files WHERE path = ?", p).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return "", fmt.Errorf("store: read %s: %w", p, err)
	}
	return string(content), nil
}

// Write creates or replaces the file at path. Enforces the per-file and
// total size caps before touching the row.
func (s *Store) Write(ctx context.Context, p, content string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}

	size := int64(len(content))
	if s.cfg.MaxFileBytes > 0 && size > s.cfg.MaxFileBytes {
		return fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrQuotaExceeded, p, size, s.cfg.MaxFileBytes)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin write: %w", err)
	}
	defer tx.Rollback()

	if s.cfg.MaxTotalBytes > 0 {
		var total, existing int64
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM files").Scan(&total); err != nil {
			return fmt.Errorf("store: total size: %w", err)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(size, 0) FROM files WHERE path = ?", p).Scan(&existing); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: existing size: %w", err)
		}
		if total-existing+size > s.cfg.MaxTotalBytes {
			return fmt.Errorf("%w: store would reach %d bytes (limit %d)",
				ErrQuotaExceeded, total-existing+size, s.cfg.MaxTotalBytes)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, content, size, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET content = excluded.content,
			size = excluded.size, updated_at = excluded.updated_at`,
		p, []byte(content), size, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: write %s: %w", p, err)
	}

	return tx.Commit()
}

// List returns metadata for every stored file, sorted by path.
func (s *Store) List(ctx context.Context) ([]FileInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, size, updated_at FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var files []FileInfo
	for rows.Next() {
		var f FileInfo
		if err := rows.Scan(&f.Path, &f.Size, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Delete removes the file at path. Deleting a missing file is ErrNotFound
// so the model learns the path was wrong.
func (s *Store) Delete(ctx context.Context, p string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", p)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", p, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", p, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return nil
}

// Exists reports whether a file is stored at path.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	p, err := CleanPath(p)
	if err != nil {
		return false, err
	}

	var one int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM files WHERE path = ?", p).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", p, err)
	}
	return true, nil
}

// SearchReplace applies each replacement in order to the file at path and
// writes the result back. Every search string must occur at least once;
// a miss aborts the whole operation without modifying the file. Returns
// the total number of occurrences replaced.
func (s *Store) SearchReplace(ctx context.Context, p string, reps []Replacement) (int, error) {
	if len(reps) == 0 {
		return 0, errors.New("store: no replacements given")
	}

	content, err := s.Read(ctx, p)
	if err != nil {
		return 0, err
	}

	total := 0
	for i, rep := range reps {
		if rep.Search == "" {
			return 0, fmt.Errorf("store: replacement %d has empty search text", i+1)
		}
		n := strings.Count(content, rep.Search)
		if n == 0 {
			return 0, fmt.Errorf("%w: %q in %s", ErrSearchMissing, rep.Search, p)
		}
		content = strings.ReplaceAll(content, rep.Search, rep.Replace)
		total += n
	}

	if err := s.Write(ctx, p, content); err != nil {
		return 0, err
	}
	return total, nil
}

// TotalSize returns the sum of stored file sizes in bytes.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM files").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: total size: %w", err)
	}
	return total, nil
}

// Count returns the number of stored files.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
