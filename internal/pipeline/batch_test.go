package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/code-100-precent/LingBook/internal/merger"
	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	errs   map[string]error
	before func(source string)
	ran    []string
}

func (s *scriptedRunner) Run(ctx context.Context, source, outputPath string, ref *models.VoiceReference, onProgress models.ProgressFunc) (*Result, error) {
	s.ran = append(s.ran, source)
	if s.before != nil {
		s.before(source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.errs[source]; err != nil {
		return nil, err
	}
	doc := models.NewDocument("title-"+source, source, "x")
	units := []*models.AudioUnit{{Index: 0, Status: models.AudioCompleted, Attempts: 1}, {Index: 1, Status: models.AudioFailed, Attempts: 3}}
	return &Result{Document: doc, Units: units, OutputPath: outputPath, Completed: 1, Failed: 1, Attempts: 4}, nil
}

func jobs(names ...string) []Job {
	var out []Job
	for _, n := range names {
		out = append(out, Job{Source: n, Output: n + ".wav"})
	}
	return out
}

func TestBatchContinuesAfterFailure(t *testing.T) {
	bus := events.New()
	var mu sync.Mutex
	seen := map[string]int{}
	bus.Subscribe(events.Wildcard, func(e events.Event) error {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
		return nil
	})
	runner := &scriptedRunner{errs: map[string]error{
		"b": &PipelineError{Document: "B", Stage: models.StageReading, Kind: KindInput, Err: os.ErrNotExist},
	}}
	metrics := NewMetrics()

	tally := NewBatchDriver(runner, BatchOptions{Bus: bus, Metrics: metrics}).Run(context.Background(), jobs("a", "b", "c"), nil)
	bus.Wait()

	require.NoError(t, tally.Err)
	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, []string{"a", "b", "c"}, runner.ran)
	require.Len(t, tally.Outcomes, 3)

	assert.Equal(t, OutcomeSucceeded, tally.Outcomes[0].Status)
	assert.Equal(t, "title-a", tally.Outcomes[0].Title)
	assert.Equal(t, 4, tally.Outcomes[0].Attempts)
	assert.Equal(t, OutcomeFailed, tally.Outcomes[1].Status)
	assert.Equal(t, "B", tally.Outcomes[1].Title)
	assert.Empty(t, tally.Outcomes[1].Output)
	assert.Contains(t, tally.Outcomes[1].Error, "input")
	assert.Equal(t, "c", tally.Outcomes[2].Source)

	assert.Equal(t, 3, seen[events.DocumentStarted])
	assert.Equal(t, 2, seen[events.DocumentCompleted])
	assert.Equal(t, 1, seen[events.DocumentFailed])

	path := filepath.Join(t.TempDir(), "metrics", "audiobook.prom")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, metrics.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `audiobook_documents_total{status="succeeded"} 2`)
	assert.Contains(t, text, `audiobook_documents_total{status="failed"} 1`)
	assert.Contains(t, text, `audiobook_units_total{status="completed"} 2`)
	assert.Contains(t, text, `audiobook_synthesis_attempts_total 8`)
	assert.Contains(t, text, `audiobook_document_duration_seconds_count 3`)
}

func TestBatchStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &scriptedRunner{before: func(source string) {
		if source == "b" {
			cancel()
		}
	}}

	tally := NewBatchDriver(runner, BatchOptions{}).Run(ctx, jobs("a", "b", "c"), nil)

	assert.ErrorIs(t, tally.Err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, runner.ran)
	assert.Equal(t, 1, tally.Succeeded)
	assert.Equal(t, 0, tally.Failed)
	require.Len(t, tally.Outcomes, 2)
	assert.Equal(t, OutcomeCancelled, tally.Outcomes[1].Status)
}

func TestBatchAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &scriptedRunner{}

	tally := NewBatchDriver(runner, BatchOptions{}).Run(ctx, jobs("a"), nil)
	assert.ErrorIs(t, tally.Err, context.Canceled)
	assert.Empty(t, runner.ran)
	assert.Empty(t, tally.Outcomes)
}

func TestBatchStopsOnIndexCollision(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{
		"a": &PipelineError{Document: "a", Stage: models.StageMerging, Kind: KindMerge, Err: fmt.Errorf("%w: index 3 appears twice", merger.ErrIndexCollision)},
	}}

	tally := NewBatchDriver(runner, BatchOptions{}).Run(context.Background(), jobs("a", "b"), nil)
	assert.ErrorIs(t, tally.Err, merger.ErrIndexCollision)
	assert.Equal(t, []string{"a"}, runner.ran)
	assert.Equal(t, 1, tally.Failed)
}

func TestJobsFromFolder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.md", "c.pdf", "D.TXT"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	got, err := JobsFromFolder(dir, "/out")
	require.NoError(t, err)
	assert.Equal(t, []Job{
		{Source: filepath.Join(dir, "D.TXT"), Output: filepath.Join("/out", "D.wav")},
		{Source: filepath.Join(dir, "a.md"), Output: filepath.Join("/out", "a.wav")},
		{Source: filepath.Join(dir, "b.txt"), Output: filepath.Join("/out", "b.wav")},
	}, got)

	_, err = JobsFromFolder(filepath.Join(dir, "missing"), "/out")
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"b": os.ErrNotExist}}
	tally := NewBatchDriver(runner, BatchOptions{}).Run(context.Background(), jobs("a", "b"), nil)

	path := filepath.Join(t.TempDir(), "reports", "batch.json")
	require.NoError(t, WriteReport(path, tally))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"succeeded": 1`)
	assert.Contains(t, text, `"failed": 1`)
	assert.Contains(t, text, `"status": "failed"`)
	assert.Contains(t, text, `"title": "title-a"`)
}
