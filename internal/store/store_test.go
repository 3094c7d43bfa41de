package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/video"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "clipforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestVideo(id string) *video.Video {
	return &video.Video{
		ID:             id,
		OwnerID:        "user-1",
		OrganizationID: "org-1",
		Title:          "Launch recap",
		Description:    "Quarterly launch recording",
		Tags:           []string{"launch", "q3"},
		Visibility:     video.VisibilityOrganization,
		FilePath:       "/data/uploads/" + id + ".mp4",
		FileSize:       1024,
		MimeType:       "video/mp4",
		Status:         video.StatusUploading,
		Sensitivity:    video.Sensitivity{Status: video.SensitivityPending},
		IsActive:       true,
	}
}

func TestCreateGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v := newTestVideo("vid-1")
	require.NoError(t, s.Create(ctx, v))

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, v.Title, got.Title)
	assert.Equal(t, v.Tags, got.Tags)
	assert.Equal(t, video.StatusUploading, got.Status)
	assert.Equal(t, video.SensitivityPending, got.Sensitivity.Status)
	assert.True(t, got.IsActive)
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusProgressClamping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusProcessing, 150))
	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.ProcessingProgress, "writing 150 stores 100")

	require.NoError(t, s.Create(ctx, newTestVideo("vid-2")))
	require.NoError(t, s.SetStatusProgress(ctx, "vid-2", video.StatusProcessing, -5))
	got, err = s.Get(ctx, "vid-2")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ProcessingProgress, "writing -5 stores 0")
}

func TestSetStatusProgressMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusProcessing, 60))
	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusProcessing, 20))

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.ProcessingProgress, "progress never regresses")
}

func TestProgressFrozenAfterFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusProcessing, 20))
	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusFailed, 20))

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, got.Status)
	assert.Equal(t, 20, got.ProcessingProgress)

	// Once failed, further progress writes do not move the stored value.
	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusFailed, 90))
	got, err = s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.ProcessingProgress, "progress frozen at last successful checkpoint")
}

func TestSetStatusProgressRejectsBackwardTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusProcessing, 50))
	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusCompleted, 100))

	err := s.SetStatusProgress(ctx, "vid-1", video.StatusProcessing, 10)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = s.SetStatusProgress(ctx, "vid-1", video.StatusUploading, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusCompleted, got.Status, "rejected writes leave the record untouched")
	assert.Equal(t, 100, got.ProcessingProgress)

	// Failure stays reachable from any state.
	require.NoError(t, s.SetStatusProgress(ctx, "vid-1", video.StatusFailed, 100))
}

func TestSetStatusProgressUnknownVideo(t *testing.T) {
	s := openTestStore(t)
	err := s.SetStatusProgress(context.Background(), "missing", video.StatusProcessing, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	v, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	v.Title = "Renamed"
	v.Description = "edited"
	v.Tags = []string{"edited"}
	v.Visibility = video.VisibilityPublic
	require.NoError(t, s.Update(ctx, v))

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "edited", got.Description)
	assert.Equal(t, []string{"edited"}, got.Tags)
	assert.Equal(t, video.VisibilityPublic, got.Visibility)

	v.ID = "missing"
	assert.ErrorIs(t, s.Update(ctx, v), ErrNotFound)
}

func TestSetOptimizedPathOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	require.NoError(t, s.SetOptimizedPath(ctx, "vid-1", "/data/optimized/vid-1.mp4"))
	err := s.SetOptimizedPath(ctx, "vid-1", "/data/optimized/other.mp4")
	assert.ErrorIs(t, err, ErrOptimizedPathSet)

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "/data/optimized/vid-1.mp4", got.OptimizedPath)
}

func TestSetSensitivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	sens := video.Sensitivity{
		Status:     video.SensitivityCompleted,
		Result:     video.ResultSafe,
		Confidence: 0.88,
		Details:    video.AnalysisDetails{FramesAnalyzed: 12},
	}
	require.NoError(t, s.SetSensitivity(ctx, "vid-1", sens))

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, video.SensitivityCompleted, got.Sensitivity.Status)
	assert.Equal(t, video.ResultSafe, got.Sensitivity.Result)
	assert.Equal(t, 0.88, got.Sensitivity.Confidence)
	assert.Equal(t, 12, got.Sensitivity.Details.FramesAnalyzed)
}

func TestArchive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestVideo("vid-1")))

	require.NoError(t, s.Archive(ctx, "vid-1"))

	got, err := s.Get(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, video.StatusArchived, got.Status)
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := newTestVideo("vid-a")
	a.Title = "Product demo"
	b := newTestVideo("vid-b")
	b.Title = "All hands"
	b.Tags = []string{"townhall"}
	c := newTestVideo("vid-c")
	c.Title = "Archived demo"
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.Archive(ctx, "vid-c"))

	results, err := s.Search(ctx, SearchOptions{Query: "demo"})
	require.NoError(t, err)
	require.Len(t, results, 1, "archived videos are hidden by default")
	assert.Equal(t, "vid-a", results[0].ID)

	results, err = s.Search(ctx, SearchOptions{Query: "townhall"})
	require.NoError(t, err)
	require.Len(t, results, 1, "tags are searchable")
	assert.Equal(t, "vid-b", results[0].ID)

	results, err = s.Search(ctx, SearchOptions{Query: "demo", IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.Search(ctx, SearchOptions{OwnerID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTreatsPatternCharactersLiterally(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := newTestVideo("vid-a")
	a.Title = "discount 50% off"
	b := newTestVideo("vid-b")
	b.Title = "discount 50 dollars off"
	c := newTestVideo("vid-c")
	c.Title = `share\export`
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, s.Create(ctx, c))

	results, err := s.Search(ctx, SearchOptions{Query: "50%"})
	require.NoError(t, err)
	require.Len(t, results, 1, "percent matches literally, not as a wildcard")
	assert.Equal(t, "vid-a", results[0].ID)

	results, err = s.Search(ctx, SearchOptions{Query: `share\export`})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "vid-c", results[0].ID)
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`a\b`, `a\\b`},
		{`100\%`, `100\\\%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeLike(tt.in), "input %q", tt.in)
	}
}
