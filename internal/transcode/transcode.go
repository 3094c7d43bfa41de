// Package transcode produces the web-streamable artifact for an
// uploaded video by running ffmpeg.
package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/mediatool"
)

// ErrNoArtifact indicates ffmpeg exited without producing the expected
// output file.
var ErrNoArtifact = errors.New("transcode produced no output artifact")

// Transcoder converts uploads into a web-friendly H.264/AAC MP4 with a
// fast-start layout so playback can begin before the full file is fetched.
type Transcoder struct {
	Bin    string // ffmpeg binary path
	Runner mediatool.Runner
	Logger zerolog.Logger
}

// Args builds the ffmpeg argument list for input -> output. Exposed for
// tests.
func Args(input, output string) []string {
	return []string{
		"-nostdin",
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		output,
	}
}

// Transcode converts input into a streaming-ready artifact at output.
// The output is written to a temporary path and committed atomically;
// failure of this stage is fatal to the pipeline because streaming
// depends on its artifact.
func (t *Transcoder) Transcode(ctx context.Context, input, output string) (string, error) {
	tmpOut := output + ".tmp.mp4"
	defer func() {
		// Remove the partial artifact on any non-committed exit.
		if _, err := os.Stat(output); err != nil {
			_ = os.Remove(tmpOut)
		}
	}()

	t.Logger.Info().Str("src", input).Str("dest", output).Msg("starting transcode")
	start := time.Now()

	res, err := t.Runner.Run(ctx, t.bin(), Args(input, tmpOut))
	if err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, excerpt(res.Stderr))
	}

	info, err := os.Stat(tmpOut)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoArtifact, excerpt(res.Stderr))
	}

	if err := os.Rename(tmpOut, output); err != nil {
		_ = os.Remove(tmpOut)
		return "", fmt.Errorf("commit artifact: %w", err)
	}

	t.writeSidecar(output, info.Size(), time.Since(start))

	t.Logger.Info().
		Str("dest", output).
		Int64("size", info.Size()).
		Dur("elapsed", time.Since(start)).
		Msg("transcode completed")
	return output, nil
}

// writeSidecar publishes a small diagnostics file next to the artifact.
// Best effort only.
func (t *Transcoder) writeSidecar(output string, size int64, elapsed time.Duration) {
	meta := map[string]any{
		"size":          size,
		"elapsed_ms":    elapsed.Milliseconds(),
		"transcoded_at": time.Now().UTC().Format(time.RFC3339),
		"video_codec":   "h264",
		"audio_codec":   "aac",
		"faststart":     true,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	if err := renameio.WriteFile(output+".meta.json", data, 0o644); err != nil {
		t.Logger.Warn().Err(err).Msg("failed to write transcode sidecar")
	}
}

func (t *Transcoder) bin() string {
	if t.Bin != "" {
		return t.Bin
	}
	return "ffmpeg"
}

func excerpt(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}
