// Command clipforged runs the video ingest, processing and streaming
// daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/events"
	cflog "github.com/clipforge/clipforge/internal/log"
	"github.com/clipforge/clipforge/internal/mediatool"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/probe"
	"github.com/clipforge/clipforge/internal/sensitivity"
	"github.com/clipforge/clipforge/internal/store"
	"github.com/clipforge/clipforge/internal/thumbnail"
	"github.com/clipforge/clipforge/internal/transcode"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	cflog.Configure(cflog.Config{Level: cfg.LogLevel, Service: "clipforge"})
	logger := cflog.WithComponent("daemon")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
}

func run(cfg *config.Config) error {
	logger := cflog.WithComponent("daemon")

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	broadcaster := events.NewBroadcaster()
	runner := &mediatool.ExecRunner{Logger: cflog.WithComponent("mediatool")}
	manager := pipeline.NewManager(cflog.WithComponent("pipeline"))

	orch := &pipeline.Orchestrator{
		Store:     st,
		Publisher: broadcaster,
		Metadata: &probe.Extractor{
			Bin:    cfg.FFprobeBin,
			Runner: runner,
			Logger: cflog.WithComponent("probe"),
		},
		Transcoder: &transcode.Transcoder{
			Bin:    cfg.FFmpegBin,
			Runner: runner,
			Logger: cflog.WithComponent("transcode"),
		},
		Thumbnails: &thumbnail.Generator{
			Bin:    cfg.FFmpegBin,
			Runner: runner,
			Logger: cflog.WithComponent("thumbnail"),
		},
		Analyzer: &sensitivity.Engine{
			Bin:    cfg.FFmpegBin,
			Runner: runner,
			Logger: cflog.WithComponent("sensitivity"),
		},
		Manager:      manager,
		OptimizedDir: cfg.OptimizedDir(),
		ThumbnailDir: cfg.ThumbnailDir(),
		Logger:       cflog.WithComponent("pipeline"),
	}

	verifier := &auth.StaticVerifier{Tokens: cfg.TokenTable()}
	server := api.New(cfg, st, orch, broadcaster, verifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("listen", cfg.Listen).Msg("http server starting")
		return server.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down, draining pipeline runs")
		manager.CancelAll()
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		manager.WaitAll(drainCtx)
		return nil
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		// Shutdown path: the listener error is expected.
		err = nil
	}
	logger.Info().Msg("daemon stopped")
	return err
}
