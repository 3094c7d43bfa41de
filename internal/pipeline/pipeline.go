// Package pipeline drives the ordered processing stages for uploaded
// videos and supervises their asynchronous execution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/log"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/sensitivity"
	"github.com/clipforge/clipforge/internal/store"
	"github.com/clipforge/clipforge/internal/video"
)

// Stage names used in logs, metrics and error context.
const (
	StageMetadata    = "metadata"
	StageTranscode   = "transcode"
	StageThumbnail   = "thumbnail"
	StageSensitivity = "sensitivity"
)

// ErrAnalysisInFlight is returned when a re-analysis is requested while
// a sensitivity pass is still processing.
var ErrAnalysisInFlight = errors.New("sensitivity analysis already in progress")

// MetadataExtractor probes media files. It degrades internally and
// never fails the pipeline.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) video.Metadata
}

// Transcoder produces the streaming artifact. Its failure is fatal to
// the run.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) (string, error)
}

// ThumbnailGenerator captures a poster frame, returning "" on failure.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, input, outputDir, videoID string) string
}

// Analyzer runs the sensitivity pass; failures are reported through the
// returned sub-record, never as an error.
type Analyzer interface {
	Analyze(ctx context.Context, path, videoID string, sink sensitivity.Sink) video.Sensitivity
}

// Publisher delivers lifecycle events to a recipient's channel.
type Publisher interface {
	Publish(recipientID, name, videoID string, payload map[string]any)
}

// Orchestrator executes the stage sequence for one video per run,
// persisting the record and publishing progress after each milestone.
type Orchestrator struct {
	Store        *store.Store
	Publisher    Publisher
	Metadata     MetadataExtractor
	Transcoder   Transcoder
	Thumbnails   ThumbnailGenerator
	Analyzer     Analyzer
	Manager      *Manager
	OptimizedDir string
	ThumbnailDir string
	Logger       zerolog.Logger
}

// Schedule starts the full pipeline for v as fire-and-forget background
// work. At most one run per video id is in flight; a duplicate schedule
// returns the existing handle.
func (o *Orchestrator) Schedule(ctx context.Context, v *video.Video) (*Run, bool) {
	return o.Manager.Ensure(ctx, v.ID, func(runCtx context.Context) error {
		return o.runPipeline(runCtx, v)
	})
}

// Reanalyze starts a standalone sensitivity pass for v. It refuses to
// start while a pass is still processing; terminal sensitivity states
// reopen to processing.
func (o *Orchestrator) Reanalyze(ctx context.Context, v *video.Video) (*Run, error) {
	if v.Sensitivity.Status == video.SensitivityProcessing {
		return nil, ErrAnalysisInFlight
	}

	run, isNew := o.Manager.Ensure(ctx, v.ID, func(runCtx context.Context) error {
		return o.runAnalysis(runCtx, v)
	})
	if !isNew {
		// A full pipeline run owns the record right now.
		return run, ErrAnalysisInFlight
	}
	return run, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, v *video.Video) error {
	ctx = log.ContextWithVideoID(ctx, v.ID)
	logger := log.WithContext(ctx, o.Logger)
	logger.Info().Msg("pipeline started")

	// Stage 1: metadata extraction (10 -> 20). Degrades, never aborts.
	o.advance(ctx, v, video.StatusProcessing, 10)

	md := o.Metadata.Extract(ctx, v.FilePath)
	if err := o.Store.SetMetadata(ctx, v.ID, md); err != nil {
		logger.Warn().Err(err).Msg("failed to persist metadata")
	}
	v.Metadata = md
	logger.Debug().
		Str(log.FieldCodec, md.Codec).
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", md.Width, md.Height)).
		Float64(log.FieldDuration, md.Duration).
		Msg("metadata extracted")
	o.advance(ctx, v, video.StatusProcessing, 20)

	// Stage 2: transcode (-> 40). Fatal on failure: streaming depends
	// on its artifact.
	output := filepath.Join(o.OptimizedDir, v.ID+".mp4")
	if _, err := o.Transcoder.Transcode(ctx, v.FilePath, output); err != nil {
		return o.fail(ctx, v, StageTranscode, err)
	}
	if err := o.Store.SetOptimizedPath(ctx, v.ID, output); err != nil {
		return o.fail(ctx, v, StageTranscode, fmt.Errorf("persist artifact path: %w", err))
	}
	v.OptimizedPath = output
	o.advance(ctx, v, video.StatusProcessing, 40)

	// Stage 3: thumbnail (-> 60). Cosmetic, absorbed.
	if name := o.Thumbnails.Generate(ctx, v.FilePath, o.ThumbnailDir, v.ID); name != "" {
		path := filepath.Join(o.ThumbnailDir, name)
		if err := o.Store.SetThumbnailPath(ctx, v.ID, path); err != nil {
			logger.Warn().Err(err).Msg("failed to persist thumbnail path")
		}
		v.ThumbnailPath = path
	} else {
		metrics.IncStageFailure(StageThumbnail)
	}
	o.advance(ctx, v, video.StatusProcessing, 60)

	// Stage 4: sensitivity analysis (-> 80 -> 100). Absorbed into a
	// degraded sub-record on failure.
	if err := o.analyze(ctx, v); err != nil {
		logger.Warn().Err(err).Msg("failed to persist sensitivity result")
	}
	o.advance(ctx, v, video.StatusProcessing, 80)

	o.advance(ctx, v, video.StatusCompleted, 100)
	o.Publisher.Publish(v.OwnerID, events.ProcessingComplete, v.ID, map[string]any{
		"status": video.StatusCompleted,
	})
	metrics.IncPipelineRun("completed")
	logger.Info().Msg("pipeline completed")
	return nil
}

// runAnalysis performs a standalone sensitivity pass outside the full
// pipeline (re-analysis).
func (o *Orchestrator) runAnalysis(ctx context.Context, v *video.Video) error {
	return o.analyze(ctx, v)
}

// analyze marks the sensitivity sub-record processing, runs the engine
// and persists whatever it reports.
func (o *Orchestrator) analyze(ctx context.Context, v *video.Video) error {
	processing := v.Sensitivity
	processing.Status = video.SensitivityProcessing
	processing.Result = ""
	processing.Confidence = 0
	if err := o.Store.SetSensitivity(ctx, v.ID, processing); err != nil {
		return err
	}
	v.Sensitivity = processing

	sink := &broadcastSink{publisher: o.Publisher, owner: v.OwnerID}
	result := o.Analyzer.Analyze(ctx, v.FilePath, v.ID, sink)

	if err := o.Store.SetSensitivity(ctx, v.ID, result); err != nil {
		return err
	}
	v.Sensitivity = result

	if result.Status == video.SensitivityCompleted {
		o.Publisher.Publish(v.OwnerID, events.SensitivityComplete, v.ID, map[string]any{
			"result":     result.Result,
			"confidence": result.Confidence,
		})
	} else {
		metrics.IncStageFailure(StageSensitivity)
	}
	return nil
}

// advance persists a status/progress milestone and publishes it.
func (o *Orchestrator) advance(ctx context.Context, v *video.Video, status video.Status, progress int) {
	prev := v.Status
	if err := o.Store.SetStatusProgress(ctx, v.ID, status, progress); err != nil {
		o.Logger.Warn().Err(err).Str(log.FieldVideoID, v.ID).Msg("failed to persist progress")
	}
	v.Status = status
	v.SetProgress(progress)

	o.Logger.Debug().
		Str(log.FieldVideoID, v.ID).
		Str(log.FieldOldState, string(prev)).
		Str(log.FieldNewState, string(status)).
		Int(log.FieldProgress, v.ProcessingProgress).
		Msg("milestone")

	o.Publisher.Publish(v.OwnerID, events.ProcessingProgress, v.ID, map[string]any{
		"status":   status,
		"progress": v.ProcessingProgress,
	})
}

// fail moves the record to its terminal failed state: the lifecycle
// status and the sensitivity status both become failed, progress stays
// frozen at the last successful checkpoint, and a single error event is
// published.
func (o *Orchestrator) fail(ctx context.Context, v *video.Video, stage string, err error) error {
	o.Logger.Error().Err(err).Str(log.FieldVideoID, v.ID).Str(log.FieldStage, stage).Msg("pipeline stage failed")
	metrics.IncStageFailure(stage)
	metrics.IncPipelineRun("failed")

	if dbErr := o.Store.SetStatusProgress(ctx, v.ID, video.StatusFailed, v.ProcessingProgress); dbErr != nil {
		o.Logger.Warn().Err(dbErr).Str(log.FieldVideoID, v.ID).Msg("failed to persist failed status")
	}
	v.Status = video.StatusFailed

	if !v.Sensitivity.Status.Terminal() {
		sens := v.Sensitivity
		sens.Status = video.SensitivityFailed
		sens.Result = ""
		sens.Confidence = 0
		sens.Details.Error = fmt.Sprintf("%s stage failed: %v", stage, err)
		if dbErr := o.Store.SetSensitivity(ctx, v.ID, sens); dbErr != nil {
			o.Logger.Warn().Err(dbErr).Str(log.FieldVideoID, v.ID).Msg("failed to persist sensitivity failure")
		}
		v.Sensitivity = sens
	}

	o.Publisher.Publish(v.OwnerID, events.ProcessingError, v.ID, map[string]any{
		"stage": stage,
		"error": err.Error(),
	})
	return fmt.Errorf("%s stage: %w", stage, err)
}

// broadcastSink forwards engine progress to the owner's event channel.
type broadcastSink struct {
	publisher Publisher
	owner     string
}

func (s *broadcastSink) Progress(videoID string, percent int) {
	s.publisher.Publish(s.owner, events.SensitivityProgress, videoID, map[string]any{
		"progress": video.ClampProgress(percent),
	})
}

func (s *broadcastSink) Error(videoID string, message string) {
	s.publisher.Publish(s.owner, events.SensitivityError, videoID, map[string]any{
		"error": message,
	})
}
