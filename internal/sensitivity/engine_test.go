package sensitivity

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/mediatool"
	"github.com/clipforge/clipforge/internal/video"
)

// frameWritingRunner fakes ffmpeg frame sampling by writing uniform
// JPEG frames to the output pattern.
type frameWritingRunner struct {
	frames int
	gray   uint8
	err    error

	mu         sync.Mutex
	scratchDir string
}

func (r *frameWritingRunner) Run(_ context.Context, _ string, args []string) (mediatool.Result, error) {
	if r.err != nil {
		return mediatool.Result{ExitCode: 1}, r.err
	}
	pattern := args[len(args)-1]

	r.mu.Lock()
	r.scratchDir = filepath.Dir(pattern)
	r.mu.Unlock()

	for i := 1; i <= r.frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				img.Set(x, y, color.RGBA{R: r.gray, G: r.gray, B: r.gray, A: 255})
			}
		}
		f, err := os.Create(fmt.Sprintf(pattern, i))
		if err != nil {
			return mediatool.Result{ExitCode: 1}, err
		}
		if err := jpeg.Encode(f, img, nil); err != nil {
			_ = f.Close()
			return mediatool.Result{ExitCode: 1}, err
		}
		_ = f.Close()
	}
	return mediatool.Result{}, nil
}

func (r *frameWritingRunner) dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scratchDir
}

// recordingSink captures progress checkpoints and errors.
type recordingSink struct {
	mu       sync.Mutex
	progress []int
	errors   []string
}

func (s *recordingSink) Progress(_ string, percent int) {
	s.mu.Lock()
	s.progress = append(s.progress, percent)
	s.mu.Unlock()
}

func (s *recordingSink) Error(_ string, message string) {
	s.mu.Lock()
	s.errors = append(s.errors, message)
	s.mu.Unlock()
}

func newEngine(runner mediatool.Runner, perturb func() float64) *Engine {
	return &Engine{
		Bin:     "ffmpeg",
		Runner:  runner,
		Logger:  zerolog.Nop(),
		Perturb: perturb,
	}
}

func TestAnalyzeSafeResult(t *testing.T) {
	runner := &frameWritingRunner{frames: 3, gray: 120}
	sink := &recordingSink{}
	engine := newEngine(runner, func() float64 { return 0 })

	result := engine.Analyze(context.Background(), "input.mp4", "vid-1", sink)

	require.Equal(t, video.SensitivityCompleted, result.Status)
	assert.Equal(t, video.ResultSafe, result.Result)
	assert.Equal(t, 3, result.Details.FramesAnalyzed)
	// Uniform mid-gray frames: no brightness or contrast contribution.
	assert.InDelta(t, 120, result.Details.AvgBrightness, 5)
	assert.Less(t, result.Details.AvgContrast, 10.0)
	assert.Empty(t, sink.errors)
}

func TestAnalyzeProgressCheckpoints(t *testing.T) {
	runner := &frameWritingRunner{frames: 2, gray: 120}
	sink := &recordingSink{}
	engine := newEngine(runner, func() float64 { return 0 })

	engine.Analyze(context.Background(), "input.mp4", "vid-1", sink)

	assert.Equal(t, []int{0, 10, 20, 40, 60, 80, 85}, sink.progress)
}

func TestAnalyzeRemovesScratchDir(t *testing.T) {
	runner := &frameWritingRunner{frames: 2, gray: 120}
	engine := newEngine(runner, func() float64 { return 0 })

	engine.Analyze(context.Background(), "input.mp4", "vid-1", &recordingSink{})

	require.NotEmpty(t, runner.dir())
	assert.NoDirExists(t, runner.dir(), "scratch dir must be removed after a successful run")
}

func TestAnalyzeRemovesScratchDirOnFailure(t *testing.T) {
	// The runner succeeds but produces zero frames, failing stage 1.
	runner := &frameWritingRunner{frames: 0, gray: 120}
	sink := &recordingSink{}
	engine := newEngine(runner, func() float64 { return 0 })

	result := engine.Analyze(context.Background(), "input.mp4", "vid-1", sink)

	require.Equal(t, video.SensitivityFailed, result.Status)
	assert.Empty(t, result.Result, "result stays unset on failure")
	assert.Zero(t, result.Confidence)
	assert.Contains(t, result.Details.Error, "no frames")
	assert.Len(t, sink.errors, 1)

	require.NotEmpty(t, runner.dir())
	assert.NoDirExists(t, runner.dir(), "scratch dir must be removed after a failed run")
}

func TestAnalyzeToolFailure(t *testing.T) {
	runner := &frameWritingRunner{err: fmt.Errorf("boom")}
	sink := &recordingSink{}
	engine := newEngine(runner, nil)

	result := engine.Analyze(context.Background(), "input.mp4", "vid-1", sink)

	assert.Equal(t, video.SensitivityFailed, result.Status)
	assert.Empty(t, result.Result)
	assert.Contains(t, result.Details.Error, "frame sampling")
	assert.Len(t, sink.errors, 1)
}

func TestAnalyzePerturbationIsInjected(t *testing.T) {
	// Neutral frames carry only the perturbation term.
	runner := &frameWritingRunner{frames: 4, gray: 120}
	engine := newEngine(runner, func() float64 { return 0.29 })
	result := engine.Analyze(context.Background(), "input.mp4", "vid-1", &recordingSink{})
	require.Equal(t, video.SensitivityCompleted, result.Status)
	assert.InDelta(t, 0.29, result.Details.AvgSuspicion, 0.01)

	// Dark frames add the +0.1 brightness contribution on top.
	dark := &frameWritingRunner{frames: 4, gray: 10}
	result = newEngine(dark, func() float64 { return 0.29 }).
		Analyze(context.Background(), "input.mp4", "vid-2", &recordingSink{})
	require.Equal(t, video.SensitivityCompleted, result.Status)
	assert.InDelta(t, 0.39, result.Details.AvgSuspicion, 0.01)
}
