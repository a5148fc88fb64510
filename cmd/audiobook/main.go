package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/code-100-precent/LingBook/cmd/bootstrap"
	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/internal/pipeline"
	"github.com/code-100-precent/LingBook/internal/reader"
	"github.com/code-100-precent/LingBook/internal/voiceref"
	"github.com/code-100-precent/LingBook/pkg/config"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

type options struct {
	input      string
	output     string
	voice      string
	voiceName  string
	voiceStart time.Duration
	voiceDur   time.Duration
	workers    int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options
	fs := flag.NewFlagSet("audiobook", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "i", "", "Input text file, folder or web page URL (default: NOVELS_FOLDER)")
	fs.StringVar(&opts.output, "o", "", "Output WAV file, or folder in batch mode (default: OUTPUT_FOLDER)")
	fs.StringVar(&opts.voice, "v", "", "Voice reference: local audio file, Bilibili URL or BV id")
	fs.StringVar(&opts.voiceName, "vname", "", "Voice reference name")
	fs.DurationVar(&opts.voiceStart, "vstart", -1, "Voice reference start offset, e.g. 30s (default: REFERENCE_START)")
	fs.DurationVar(&opts.voiceDur, "vdur", 0, "Voice reference length, e.g. 15s (default: REFERENCE_DURATION)")
	fs.IntVar(&opts.workers, "workers", 0, "Concurrent synthesis calls per document (default: SYNTHESIS_WORKERS)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: audiobook [-i input] [-o output] [-v voice source] [flags]")
		fmt.Fprintln(stderr, "Converts novels into narrated WAV audiobooks.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.workers < 0 {
		return nil, errors.New("-workers cannot be negative")
	}
	return &opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}

	if err := config.Load(); err != nil {
		fmt.Fprintln(stderr, "Error: load config:", err)
		return exitUsage
	}
	cfg := config.GlobalConfig
	applyOverrides(cfg, opts)

	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		fmt.Fprintln(stderr, "Error: init logger:", err)
		return exitUsage
	}
	defer logger.Sync()
	bootstrap.LogConfigInfo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Setup(cfg, bootstrap.Deps{}, bootstrap.ConsoleProgress(stdout))
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}
	defer app.Close()

	ref, err := buildReference(ctx, app.Voices, cfg, opts)
	if err != nil {
		if ctx.Err() != nil {
			return exitCancelled
		}
		logger.Error("voice reference failed", zap.Error(err))
		fmt.Fprintln(stderr, "Error: voice reference:", err)
		return exitFailed
	}

	jobs, folder, err := resolveJobs(cfg, opts)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}

	if folder && cfg.Schedule.BatchSchedule != "" {
		return runScheduled(ctx, app, cfg, opts, ref, stdout)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(stdout, "No documents to convert.")
		return exitOK
	}
	tally := app.Batch.Run(ctx, jobs, ref)
	finishBatch(app, cfg, tally, stdout)
	return exitCode(tally)
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.workers > 0 {
		cfg.Pipeline.Workers = opts.workers
	}
	if opts.voiceStart >= 0 {
		cfg.Source.ReferenceStart = opts.voiceStart
	}
	if opts.voiceDur > 0 {
		cfg.Source.ReferenceDuration = opts.voiceDur
	}
}

func buildReference(ctx context.Context, b *voiceref.Builder, cfg *config.Config, opts *options) (*models.VoiceReference, error) {
	if opts.voice == "" {
		return nil, nil
	}
	return b.Build(ctx, voiceref.Request{
		Source:   opts.voice,
		Name:     opts.voiceName,
		Start:    cfg.Source.ReferenceStart,
		Duration: cfg.Source.ReferenceDuration,
	})
}

// resolveJobs maps the input flag to documents. folder reports batch mode.
func resolveJobs(cfg *config.Config, opts *options) ([]pipeline.Job, bool, error) {
	in := opts.input
	if in == "" {
		in = cfg.Paths.NovelsFolder
	}
	outDir := cfg.Paths.OutputFolder

	if reader.IsURL(in) {
		out := opts.output
		if out == "" {
			out = filepath.Join(outDir, "novel_"+time.Now().Format("20060102_150405")+".wav")
		}
		return []pipeline.Job{{Source: in, Output: out}}, false, nil
	}

	fi, err := os.Stat(in)
	if err != nil {
		return nil, false, fmt.Errorf("input %s: %w", in, err)
	}
	if fi.IsDir() {
		if opts.output != "" {
			outDir = opts.output
		}
		jobs, err := pipeline.JobsFromFolder(in, outDir)
		return jobs, true, err
	}

	out := opts.output
	if out == "" {
		stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		out = filepath.Join(outDir, stem+".wav")
	}
	return []pipeline.Job{{Source: in, Output: out}}, false, nil
}

// runScheduled re-lists the folder on every tick; overlapping ticks are skipped.
func runScheduled(ctx context.Context, app *bootstrap.App, cfg *config.Config, opts *options, ref *models.VoiceReference, stdout io.Writer) int {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(cfg.Schedule.BatchSchedule, func() {
		jobs, _, err := resolveJobs(cfg, opts)
		if err != nil {
			logger.Error("scheduled batch: list documents", zap.Error(err))
			return
		}
		if len(jobs) == 0 {
			logger.Info("scheduled batch: nothing to convert")
			return
		}
		finishBatch(app, cfg, app.Batch.Run(ctx, jobs, ref), stdout)
	})
	if err != nil {
		logger.Error("invalid batch schedule", zap.String("schedule", cfg.Schedule.BatchSchedule), zap.Error(err))
		return exitUsage
	}

	c.Start()
	logger.Info("batch scheduler started", zap.String("schedule", cfg.Schedule.BatchSchedule))
	fmt.Fprintf(stdout, "Scheduled batch mode (%s). Press Ctrl-C to stop.\n", cfg.Schedule.BatchSchedule)

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("batch scheduler stopped")
	return exitCancelled
}

func finishBatch(app *bootstrap.App, cfg *config.Config, tally pipeline.Tally, stdout io.Writer) {
	if path := cfg.Metrics.ReportPath; path != "" {
		if err := pipeline.WriteReport(path, tally); err != nil {
			logger.Error("write batch report", zap.String("path", path), zap.Error(err))
		}
	}
	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := app.Metrics.WriteTextfile(path); err != nil {
			logger.Error("write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	printSummary(stdout, tally)
}

func printSummary(w io.Writer, tally pipeline.Tally) {
	fmt.Fprintf(w, "\nDone: %d succeeded, %d failed (%s)\n",
		tally.Succeeded, tally.Failed, tally.Finished.Sub(tally.Started).Round(time.Millisecond))
	for _, o := range tally.Outcomes {
		switch o.Status {
		case pipeline.OutcomeSucceeded:
			fmt.Fprintf(w, "  ok     %s -> %s (%d/%d units, %s)\n", o.Source, o.Output, o.Completed, o.Units, o.Duration.Round(time.Second))
		default:
			fmt.Fprintf(w, "  %-6s %s: %s\n", o.Status, o.Source, o.Error)
		}
	}
}

// exitCode maps a batch to 0, 1 when any document failed or the batch
// stopped on an invariant violation, or 130 on cancellation.
func exitCode(tally pipeline.Tally) int {
	switch {
	case errors.Is(tally.Err, context.Canceled), errors.Is(tally.Err, context.DeadlineExceeded):
		return exitCancelled
	case tally.Failed > 0 || tally.Err != nil:
		return exitFailed
	}
	return exitOK
}
