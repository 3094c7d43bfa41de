// Package sensitivity implements the heuristic content-classification
// pass: frame sampling, per-frame scoring and aggregation into a
// safe/flagged/under-review verdict.
package sensitivity

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/mediatool"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/video"
)

// sampleIntervalSeconds is the fixed spacing between sampled frames.
const sampleIntervalSeconds = 10

// Sink receives live progress from an analysis run. Implementations
// must not block.
type Sink interface {
	Progress(videoID string, percent int)
	Error(videoID string, message string)
}

// NopSink discards all progress.
type NopSink struct{}

func (NopSink) Progress(string, int) {}
func (NopSink) Error(string, string) {}

// Engine runs the classification pass. Perturb supplies the per-frame
// random contribution in [0, 0.3); it is injectable so tests are
// deterministic. The unseeded default is a placeholder for a real
// classifier signal.
type Engine struct {
	Bin     string // ffmpeg binary path
	Runner  mediatool.Runner
	Logger  zerolog.Logger
	Perturb func() float64
}

// DefaultPerturb is the production perturbation source.
func DefaultPerturb() float64 {
	return rand.Float64() * 0.3
}

// Analyze classifies the media at path. It never returns an error:
// callers observe failure via the returned sub-record's status, with
// the diagnostic captured in its details. The scratch frame directory
// is removed on every exit path.
func (e *Engine) Analyze(ctx context.Context, path, videoID string, sink Sink) video.Sensitivity {
	if sink == nil {
		sink = NopSink{}
	}

	logger := e.Logger.With().Str("video_id", videoID).Logger()

	sink.Progress(videoID, 0)
	sink.Progress(videoID, 10)

	scratch, err := os.MkdirTemp("", "clipforge-frames-"+videoID+"-")
	if err != nil {
		return e.failed(videoID, sink, logger, fmt.Errorf("create scratch dir: %w", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			logger.Warn().Err(rmErr).Str("dir", scratch).Msg("failed to remove scratch dir")
		}
	}()

	sink.Progress(videoID, 20)

	frames, err := e.sampleFrames(ctx, path, scratch)
	if err != nil {
		return e.failed(videoID, sink, logger, err)
	}

	sink.Progress(videoID, 40)

	scores := e.scoreFrames(videoID, frames, sink, logger)
	if len(scores) == 0 {
		return e.failed(videoID, sink, logger, fmt.Errorf("no frames could be scored"))
	}

	sink.Progress(videoID, 85)

	result := classify(scores)
	logger.Info().
		Str("result", string(result.Result)).
		Float64("confidence", result.Confidence).
		Int("frames", result.Details.FramesAnalyzed).
		Msg("sensitivity analysis completed")
	return result
}

// sampleFrames extracts one frame per interval into dir. It fails when
// zero frames come out.
func (e *Engine) sampleFrames(ctx context.Context, path, dir string) ([]string, error) {
	pattern := filepath.Join(dir, "frame-%04d.jpg")
	args := []string{
		"-nostdin",
		"-i", path,
		"-vf", fmt.Sprintf("fps=1/%d", sampleIntervalSeconds),
		"-q:v", "2",
		pattern,
	}
	res, err := e.Runner.Run(ctx, e.bin(), args)
	if err != nil {
		return nil, fmt.Errorf("frame sampling: %w: %s", err, stderrExcerpt(res.Stderr))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scratch dir: %w", err)
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		frames = append(frames, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(frames)
	if len(frames) == 0 {
		return nil, fmt.Errorf("frame sampling produced no frames")
	}
	return frames, nil
}

// scoreFrames scores each sampled frame. Frames that fail to score are
// skipped, not counted. Progress advances from 40 to 80 proportionally.
func (e *Engine) scoreFrames(videoID string, frames []string, sink Sink, logger zerolog.Logger) []frameScore {
	perturb := e.Perturb
	if perturb == nil {
		perturb = DefaultPerturb
	}

	scores := make([]frameScore, 0, len(frames))
	for i, frame := range frames {
		score, err := scoreFrame(frame, perturb)
		if err != nil {
			logger.Debug().Err(err).Str("frame", frame).Msg("skipping unscorable frame")
		} else {
			scores = append(scores, score)
		}
		sink.Progress(videoID, 40+(40*(i+1))/len(frames))
	}
	metrics.AddAnalysisFrames(len(scores))
	return scores
}

// failed produces the degraded terminal sub-record for an absorbed
// analysis error. Result and confidence stay unset: they are only
// present on a completed pass.
func (e *Engine) failed(videoID string, sink Sink, logger zerolog.Logger, err error) video.Sensitivity {
	logger.Error().Err(err).Msg("sensitivity analysis failed")
	sink.Error(videoID, err.Error())
	return video.Sensitivity{
		Status: video.SensitivityFailed,
		Details: video.AnalysisDetails{
			Error: err.Error(),
		},
	}
}

func (e *Engine) bin() string {
	if e.Bin != "" {
		return e.Bin
	}
	return "ffmpeg"
}

func stderrExcerpt(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}
