package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipforge/clipforge/internal/video"
)

const selectColumns = `SELECT
    id, owner_id, organization_id, title, description, tags_json,
    visibility, file_path, optimized_path, thumbnail_path,
    file_size, mime_type, metadata_json, status,
    processing_progress, sensitivity_json, is_active,
    created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*video.Video, error) {
	var (
		v         video.Video
		tagsJSON  string
		metaJSON  string
		sensJSON  string
		active    int
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&v.ID, &v.OwnerID, &v.OrganizationID, &v.Title, &v.Description, &tagsJSON,
		&v.Visibility, &v.FilePath, &v.OptimizedPath, &v.ThumbnailPath,
		&v.FileSize, &v.MimeType, &metaJSON, &v.Status,
		&v.ProcessingProgress, &sensJSON, &active,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &v.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &v.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(sensJSON), &v.Sensitivity); err != nil {
		return nil, fmt.Errorf("decode sensitivity: %w", err)
	}
	v.IsActive = active != 0

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		v.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		v.UpdatedAt = t
	}
	return &v, nil
}
