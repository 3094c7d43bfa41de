// Package store manages video record persistence backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clipforge/clipforge/internal/video"
)

// ErrNotFound indicates the requested video does not exist.
var ErrNotFound = errors.New("video not found")

// ErrOptimizedPathSet indicates the transcoded artifact path was already
// recorded for this video.
var ErrOptimizedPathSet = errors.New("optimized path already set")

// ErrInvalidTransition indicates a status write that would move the
// lifecycle backwards.
var ErrInvalidTransition = errors.New("illegal status transition")

// Store persists video records.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the video database and applies the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new video record.
func (s *Store) Create(ctx context.Context, v *video.Video) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	tagsJSON, err := json.Marshal(tagsOrEmpty(v.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	sensJSON, err := json.Marshal(v.Sensitivity)
	if err != nil {
		return fmt.Errorf("marshal sensitivity: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO videos (
            id, owner_id, organization_id, title, description, tags_json,
            visibility, file_path, optimized_path, thumbnail_path,
            file_size, mime_type, metadata_json, status,
            processing_progress, sensitivity_json, is_active,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.OwnerID, v.OrganizationID, v.Title, v.Description, string(tagsJSON),
		string(v.Visibility), v.FilePath, v.OptimizedPath, v.ThumbnailPath,
		v.FileSize, v.MimeType, string(metaJSON), string(v.Status),
		video.ClampProgress(v.ProcessingProgress), string(sensJSON), boolToInt(v.IsActive),
		v.CreatedAt.Format(time.RFC3339Nano), v.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// Get returns a single video by id.
func (s *Store) Get(ctx context.Context, id string) (*video.Video, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return v, nil
}

// Update replaces the mutable fields of an existing record.
func (s *Store) Update(ctx context.Context, v *video.Video) error {
	v.UpdatedAt = time.Now().UTC()

	tagsJSON, err := json.Marshal(tagsOrEmpty(v.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	sensJSON, err := json.Marshal(v.Sensitivity)
	if err != nil {
		return fmt.Errorf("marshal sensitivity: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET
            title = ?, description = ?, tags_json = ?, visibility = ?,
            optimized_path = ?, thumbnail_path = ?, file_size = ?,
            mime_type = ?, metadata_json = ?, status = ?,
            processing_progress = ?, sensitivity_json = ?, is_active = ?,
            updated_at = ?
        WHERE id = ?`,
		v.Title, v.Description, string(tagsJSON), string(v.Visibility),
		v.OptimizedPath, v.ThumbnailPath, v.FileSize,
		v.MimeType, string(metaJSON), string(v.Status),
		video.ClampProgress(v.ProcessingProgress), string(sensJSON), boolToInt(v.IsActive),
		v.UpdatedAt.Format(time.RFC3339Nano), v.ID,
	)
	if err != nil {
		return fmt.Errorf("update video %s: %w", v.ID, err)
	}
	return requireRow(res, v.ID)
}

// SetStatusProgress atomically updates lifecycle status and progress.
// The status change must be a legal transition; progress is clamped and
// never regresses, and while failed it is frozen.
func (s *Store) SetStatusProgress(ctx context.Context, id string, status video.Status, progress int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current video.Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM videos WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read status for %s: %w", id, err)
	}
	if !video.CanTransition(current, status) {
		return fmt.Errorf("video %s: %s -> %s: %w", id, current, status, ErrInvalidTransition)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE videos SET
            status = ?,
            processing_progress = CASE
                WHEN status = 'failed' THEN processing_progress
                ELSE MAX(processing_progress, MIN(100, MAX(0, ?)))
            END,
            updated_at = ?
        WHERE id = ?`,
		string(status), progress, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", id, err)
	}
	return tx.Commit()
}

// SetMetadata atomically records probe-derived media metadata.
func (s *Store) SetMetadata(ctx context.Context, id string, md video.Metadata) error {
	metaJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET metadata_json = ?, updated_at = ? WHERE id = ?`,
		string(metaJSON), nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("update metadata for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SetOptimizedPath records the transcoded artifact path. The path is
// written at most once.
func (s *Store) SetOptimizedPath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET optimized_path = ?, updated_at = ?
         WHERE id = ? AND optimized_path = ''`,
		path, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("update optimized path for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrOptimizedPathSet
	}
	return nil
}

// SetThumbnailPath records the generated thumbnail path.
func (s *Store) SetThumbnailPath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET thumbnail_path = ?, updated_at = ? WHERE id = ?`,
		path, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("update thumbnail for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SetSensitivity atomically replaces the sensitivity sub-record.
func (s *Store) SetSensitivity(ctx context.Context, id string, sens video.Sensitivity) error {
	sensJSON, err := json.Marshal(sens)
	if err != nil {
		return fmt.Errorf("marshal sensitivity: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET sensitivity_json = ?, updated_at = ? WHERE id = ?`,
		string(sensJSON), nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("update sensitivity for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Archive soft-deletes a video: the record stays queryable but inactive.
func (s *Store) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET is_active = 0, status = ?, updated_at = ? WHERE id = ?`,
		string(video.StatusArchived), nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("archive video %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SearchOptions narrows a listing query.
type SearchOptions struct {
	Query          string // substring over title, description, tags
	OwnerID        string
	OrganizationID string
	IncludeHidden  bool // include archived/inactive records
	Limit          int
	Offset         int
}

// Search returns videos matching the options, newest first.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]*video.Video, error) {
	var (
		where []string
		args  []any
	)
	if !opts.IncludeHidden {
		where = append(where, "is_active = 1")
	}
	if opts.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, opts.OwnerID)
	}
	if opts.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, opts.OrganizationID)
	}
	if opts.Query != "" {
		where = append(where, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR tags_json LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(opts.Query) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := selectColumns + " FROM videos"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*video.Video
	for rows.Next() {
		v, scanErr := scanVideo(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan video: %w", scanErr)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}
