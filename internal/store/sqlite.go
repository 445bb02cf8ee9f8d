package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"marmobot/internal/core"
)

const createMetadataTableSQL = `
	CREATE TABLE IF NOT EXISTS song_metadata (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

const upsertMetadataSQL = `
	INSERT INTO song_metadata (id, title, duration_ms, thumbnail_url, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		duration_ms = excluded.duration_ms,
		thumbnail_url = excluded.thumbnail_url,
		updated_at = excluded.updated_at
	`

// SQLiteBackend stores metadata in a local SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string, logger *zap.Logger) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createMetadataTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create song_metadata table: %w", err)
	}

	logger.Info("SQLite metadata store initialized", zap.String("path", path))
	return &SQLiteBackend{db: db, logger: logger}, nil
}

// Get returns the stored metadata for id.
func (s *SQLiteBackend) Get(ctx context.Context, id string) (core.TrackMetadata, bool, error) {
	var (
		meta       core.TrackMetadata
		durationMS int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT title, duration_ms, thumbnail_url FROM song_metadata WHERE id = ?", id,
	).Scan(&meta.Title, &durationMS, &meta.ThumbnailURL)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TrackMetadata{}, false, nil
	}
	if err != nil {
		return core.TrackMetadata{}, false, fmt.Errorf("failed to read metadata %s: %w", id, err)
	}
	meta.Duration = time.Duration(durationMS) * time.Millisecond
	return meta, true, nil
}

// Put upserts the metadata for id.
func (s *SQLiteBackend) Put(ctx context.Context, id string, meta core.TrackMetadata) error {
	_, err := s.db.ExecContext(ctx, upsertMetadataSQL,
		id, meta.Title, meta.Duration.Milliseconds(), meta.ThumbnailURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", id, err)
	}
	return nil
}

// IDs lists every stored id.
func (s *SQLiteBackend) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM song_metadata")
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan metadata id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.logger.Info("SQLite metadata store closed")
	return err
}
