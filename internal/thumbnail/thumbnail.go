// Package thumbnail captures a poster frame for an uploaded video.
package thumbnail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/mediatool"
)

// Capture offset and canvas geometry for poster frames.
const (
	captureOffsetSeconds = 5
	canvasWidth          = 320
	canvasHeight         = 180
)

// Generator captures a single poster frame per video.
type Generator struct {
	Bin    string // ffmpeg binary path
	Runner mediatool.Runner
	Logger zerolog.Logger
}

// Generate captures one frame five seconds into the media, scaled and
// padded to the thumbnail canvas, and writes it under outputDir. It
// returns the generated filename, or "" on any failure: a missing
// thumbnail is cosmetic and never fails the pipeline.
func (g *Generator) Generate(ctx context.Context, input, outputDir, videoID string) string {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		g.Logger.Warn().Err(err).Msg("thumbnail dir unavailable")
		return ""
	}

	name := videoID + ".jpg"
	out := filepath.Join(outputDir, name)

	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		canvasWidth, canvasHeight, canvasWidth, canvasHeight,
	)
	args := []string{
		"-nostdin",
		"-y",
		"-ss", fmt.Sprintf("%d", captureOffsetSeconds),
		"-i", input,
		"-frames:v", "1",
		"-vf", filter,
		out,
	}

	if _, err := g.Runner.Run(ctx, g.bin(), args); err != nil {
		g.Logger.Warn().Err(err).Str("src", input).Msg("thumbnail capture failed")
		_ = os.Remove(out)
		return ""
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		g.Logger.Warn().Str("src", input).Msg("thumbnail missing after capture")
		_ = os.Remove(out)
		return ""
	}
	return name
}

func (g *Generator) bin() string {
	if g.Bin != "" {
		return g.Bin
	}
	return "ffmpeg"
}
