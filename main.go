package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-to-archive/cmd"
	"github.com/dhcgn/mbox-to-archive/config"
	"github.com/dhcgn/mbox-to-archive/diag"
	"github.com/dhcgn/mbox-to-archive/extract"
	"github.com/dhcgn/mbox-to-archive/filter"
	"github.com/dhcgn/mbox-to-archive/manifest"
	"github.com/dhcgn/mbox-to-archive/mirror"
	"github.com/dhcgn/mbox-to-archive/pgindex"
	"github.com/dhcgn/mbox-to-archive/progress"
	"github.com/dhcgn/mbox-to-archive/runner"
	"github.com/dhcgn/mbox-to-archive/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mbox-to-archive",
		Short: "Extract mailboxes into a self-describing archive tree",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mbox-to-archive", "source", cfg.Source, "type", cfg.SourceType, "dest", cfg.Destination, "statsOnly", cfg.StatsOnly)

			return run(c.Context(), cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewStatsCommand(), cmd.NewSearchCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r := runner.New(ctx, logger)
	stats.NewReporter(r, logger)

	if cfg.Progress && cfg.LogLevel == "info" {
		report, err := cmd.CountMessages(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		bar := progress.New(report.Messages+report.Excluded+report.Skipped, report.Folders, cfg.LogLevel)
		progress.NewProgressReporter(r, bar, logger)
	}

	f, err := cmd.NewFilter(cfg)
	if err != nil {
		return err
	}

	recorder, closeRecorders, err := openRecorders(ctx, cfg, r, logger)
	if err != nil {
		return err
	}

	mode := extract.ModeMaterialize
	next := extract.MaterializeAll
	if cfg.StatsOnly {
		mode = extract.ModeStatistics
		next = extract.StatisticsOnly
	}

	r.AddStage("extract", func(ctx context.Context) error {
		defer func() {
			if err := closeRecorders(); err != nil {
				logger.Error("close recorders", "err", err)
			}
		}()

		src, err := cmd.OpenSource(ctx, cfg, diag.NewLogger(logger), logger)
		if err != nil {
			return err
		}
		defer src.Close()

		o := extract.New(extract.Options{
			Destination:           cfg.Destination,
			RootName:              cfg.RootName,
			NameLength:            cfg.NameLength,
			Mode:                  mode,
			Policy:                extract.FilterPolicy(f, next),
			ContinueOnFolderError: cfg.ContinueOnFolderError,
			Recorder:              recorder,
			Events:                r.EmitEvent,
		}, diag.NewLogger(logger))

		report, err := o.RunContext(ctx, src)
		if err != nil {
			return err
		}
		logger.Info("extraction finished", reportAttrs(report)...)
		logFilterStats(logger, f)
		return nil
	})

	return r.Start()
}

// openRecorders wires the manifest journal and the optional Postgres index
// and S3 mirror. Statistics runs record nothing.
func openRecorders(ctx context.Context, cfg config.Config, r *runner.Runner, logger *slog.Logger) (manifest.Recorder, func() error, error) {
	noop := func() error { return nil }
	if cfg.StatsOnly {
		return nil, noop, nil
	}

	journal, err := manifest.NewFileRecorder(cfg.ManifestDir)
	if err != nil {
		return nil, noop, fmt.Errorf("open manifest: %w", err)
	}
	recs := []manifest.Recorder{journal}
	closers := []func() error{journal.Close}

	if dsn := pgindex.ResolveDSN(cfg.PGDSN); dsn != "" {
		idx, err := pgindex.Open(ctx, dsn)
		if err != nil {
			_ = journal.Close()
			return nil, noop, err
		}
		recs = append(recs, idx)
		closers = append(closers, func() error { idx.Close(); return nil })
		logger.Info("indexing units in postgres")
	}

	if cfg.S3Bucket != "" {
		opts := mirror.Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Root:      cfg.Destination,
		}
		client, err := mirror.NewClient(ctx, opts)
		if err == nil {
			var m *mirror.Mirror
			if m, err = mirror.New(client, opts, logger, r.EmitEvent); err == nil {
				recs = append(recs, m)
				logger.Info("mirroring units to s3", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
			}
		}
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, noop, fmt.Errorf("s3 mirror: %w", err)
		}
	}

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return manifest.Multi(recs...), closeAll, nil
}

func reportAttrs(r extract.Report) []any {
	attrs := []any{
		"folders", r.Folders,
		"messages", r.Messages,
		"written", r.Written,
		"excluded", r.Excluded,
		"skipped", r.Skipped,
		"warnings", r.Warnings,
		"folderErrors", len(r.FolderErrors),
	}
	if !r.Dates.Empty() {
		attrs = append(attrs, "earliest", r.Dates.Earliest, "latest", r.Dates.Latest)
	}
	return attrs
}

func logFilterStats(logger *slog.Logger, f *filter.Filter) {
	if !f.Active() {
		return
	}
	s := f.GetStats()
	for _, hits := range []map[string]int{s.IncludeHeaderHits, s.IncludeBodyHits, s.ExcludeHeaderHits, s.ExcludeBodyHits} {
		for pattern, n := range hits {
			logger.Info("filter hits", "pattern", pattern, "hits", n)
		}
	}
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mbox-to-archive-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
