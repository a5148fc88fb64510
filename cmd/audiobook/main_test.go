package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/code-100-precent/LingBook/internal/merger"
	"github.com/code-100-precent/LingBook/internal/pipeline"
	"github.com/code-100-precent/LingBook/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags([]string{"-i", "book.txt", "-o", "book.wav", "-v", "BV1xx411c7mD", "-vstart", "30s", "-vdur", "10s", "-workers", "4"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "book.txt", opts.input)
	assert.Equal(t, "book.wav", opts.output)
	assert.Equal(t, "BV1xx411c7mD", opts.voice)
	assert.Equal(t, 30*time.Second, opts.voiceStart)
	assert.Equal(t, 10*time.Second, opts.voiceDur)
	assert.Equal(t, 4, opts.workers)

	_, err = parseFlags([]string{"-h"}, &stderr)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr.String(), "Usage: audiobook")

	_, err = parseFlags([]string{"extra"}, &stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-workers", "-1"}, &stderr)
	assert.Error(t, err)
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, run([]string{"-h"}, &stdout, &stderr))
	assert.Equal(t, exitUsage, run([]string{"-bogus"}, &stdout, &stderr))
}

func TestApplyOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.Workers = 1
	cfg.Source.ReferenceStart = 5 * time.Second
	cfg.Source.ReferenceDuration = 15 * time.Second

	applyOverrides(cfg, &options{voiceStart: -1})
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, 5*time.Second, cfg.Source.ReferenceStart)

	applyOverrides(cfg, &options{workers: 3, voiceStart: 0, voiceDur: 8 * time.Second})
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, time.Duration(0), cfg.Source.ReferenceStart)
	assert.Equal(t, 8*time.Second, cfg.Source.ReferenceDuration)
}

func TestResolveJobs(t *testing.T) {
	dir := t.TempDir()
	novels := filepath.Join(dir, "novels")
	require.NoError(t, os.MkdirAll(novels, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(novels, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(novels, "a.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(novels, "cover.jpg"), []byte("x"), 0o644))

	cfg := &config.Config{}
	cfg.Paths.NovelsFolder = novels
	cfg.Paths.OutputFolder = filepath.Join(dir, "out")

	// no -i: the configured folder
	jobs, folder, err := resolveJobs(cfg, &options{})
	require.NoError(t, err)
	assert.True(t, folder)
	require.Len(t, jobs, 2)
	assert.Equal(t, filepath.Join(dir, "out", "a.wav"), jobs[0].Output)

	// single file with the default output name
	jobs, folder, err = resolveJobs(cfg, &options{input: filepath.Join(novels, "b.txt")})
	require.NoError(t, err)
	assert.False(t, folder)
	assert.Equal(t, []pipeline.Job{{Source: filepath.Join(novels, "b.txt"), Output: filepath.Join(dir, "out", "b.wav")}}, jobs)

	// folder with an explicit output folder
	jobs, _, err = resolveJobs(cfg, &options{input: novels, output: filepath.Join(dir, "elsewhere")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "elsewhere", "b.wav"), jobs[1].Output)

	jobs, folder, err = resolveJobs(cfg, &options{input: "https://example.com/chapter/1", output: "ch1.wav"})
	require.NoError(t, err)
	assert.False(t, folder)
	assert.Equal(t, "ch1.wav", jobs[0].Output)

	_, _, err = resolveJobs(cfg, &options{input: filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(pipeline.Tally{Succeeded: 2}))
	assert.Equal(t, exitFailed, exitCode(pipeline.Tally{Succeeded: 1, Failed: 1}))
	assert.Equal(t, exitCancelled, exitCode(pipeline.Tally{Err: context.Canceled}))
	assert.Equal(t, exitFailed, exitCode(pipeline.Tally{Err: merger.ErrIndexCollision}))
	assert.Equal(t, exitFailed, exitCode(pipeline.Tally{Err: errors.New("boom")}))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	start := time.Now()
	printSummary(&buf, pipeline.Tally{
		Succeeded: 1,
		Failed:    1,
		Started:   start,
		Finished:  start.Add(time.Second),
		Outcomes: []pipeline.DocumentOutcome{
			{Source: "a.txt", Output: "a.wav", Status: pipeline.OutcomeSucceeded, Units: 3, Completed: 2},
			{Source: "b.txt", Status: pipeline.OutcomeFailed, Error: "no valid audio"},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.Contains(t, out, "a.txt -> a.wav (2/3 units")
	assert.Contains(t, out, "failed b.txt: no valid audio")
}
