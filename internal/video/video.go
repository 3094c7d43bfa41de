// Package video defines the Video record, its lifecycle states and the
// legal transitions between them.
package video

import (
	"time"
)

// Status represents the processing lifecycle of a video.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

// Visibility controls who may view a video.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// statusRank orders the forward-only lifecycle. Failed and archived are
// reachable from any non-terminal state.
var statusRank = map[Status]int{
	StatusUploading:  0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     3,
	StatusArchived:   4,
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from current to next is a legal
// forward transition. Failure and archival are always reachable; any
// other move must advance the ordering.
func CanTransition(current, next Status) bool {
	if !ValidStatus(current) || !ValidStatus(next) {
		return false
	}
	if next == StatusFailed || next == StatusArchived {
		return true
	}
	return statusRank[next] >= statusRank[current]
}

// Metadata holds media properties derived by the probe stage. Zero
// values mean "not yet extracted".
type Metadata struct {
	Duration    float64 `json:"duration"` // seconds
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec,omitempty"`
	Bitrate     int64   `json:"bitrate"`
	FrameRate   float64 `json:"frameRate"`
	AspectRatio string  `json:"aspectRatio,omitempty"`
	HasAudio    bool    `json:"hasAudio"`
}

// Video is the central persistent entity describing one uploaded media
// asset and its processing/classification state.
type Video struct {
	ID             string `json:"id"`
	OwnerID        string `json:"ownerId"`
	OrganizationID string `json:"organizationId"`

	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Visibility  Visibility `json:"visibility"`

	FilePath      string `json:"-"`
	OptimizedPath string `json:"-"`
	ThumbnailPath string `json:"-"`
	FileSize      int64  `json:"fileSize"`
	MimeType      string `json:"mimeType"`

	Metadata Metadata `json:"metadata"`

	Status             Status `json:"status"`
	ProcessingProgress int    `json:"processingProgress"`

	Sensitivity Sensitivity `json:"sensitivity"`

	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClampProgress bounds a progress write to [0,100]. Out-of-range writes
// are clamped, never rejected.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SetProgress applies a clamped, monotonically non-decreasing progress
// update. While the video is failed the stored value is frozen.
func (v *Video) SetProgress(p int) {
	if v.Status == StatusFailed {
		return
	}
	p = ClampProgress(p)
	if p > v.ProcessingProgress {
		v.ProcessingProgress = p
	}
}

// Streamable reports whether the video can currently be served.
func (v *Video) Streamable() bool {
	return v.IsActive && v.Status == StatusCompleted
}

// ArtifactPath returns the path to serve for playback, preferring the
// transcoded artifact over the raw upload.
func (v *Video) ArtifactPath() string {
	if v.OptimizedPath != "" {
		return v.OptimizedPath
	}
	return v.FilePath
}
