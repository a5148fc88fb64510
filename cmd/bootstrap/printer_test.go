package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/config"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/code-100-precent/LingBook/pkg/synthesizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogConfigInfo(t *testing.T) {
	// Save original config
	originalConfig := config.GlobalConfig
	defer func() {
		config.GlobalConfig = originalConfig
	}()

	config.GlobalConfig = &config.Config{
		Mode: "test",
		Log: logger.LogConfig{
			Level:      "info",
			Filename:   "./test.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
		Synthesis: synthesizer.Config{
			Provider: "zhipu",
			APIKey:   "sk-abcdef123456",
			Timeout:  time.Minute,
		},
		Retry:    config.RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second},
		Pipeline: config.PipelineConfig{MaxUnitLength: 500, Workers: 2, MergeSampleRate: 44100, MergeChannels: 1},
	}

	core, recorded := observer.New(zapcore.InfoLevel)
	originalLogger := logger.Lg
	logger.Lg = zap.New(core)
	defer func() {
		logger.Lg = originalLogger
	}()

	LogConfigInfo()

	synth := recorded.FilterMessage("synthesis config").All()
	require.Len(t, synth, 1)
	fields := synth[0].ContextMap()
	assert.Equal(t, "zhipu", fields["provider"])
	// secrets never reach the log in full
	assert.Equal(t, "****3456", fields["api_key"])

	pipe := recorded.FilterMessage("pipeline config").All()
	require.Len(t, pipe, 1)
	assert.EqualValues(t, 2, pipe[0].ContextMap()["workers"])
}

func TestLogConfigInfo_NilConfig(t *testing.T) {
	originalConfig := config.GlobalConfig
	defer func() { config.GlobalConfig = originalConfig }()
	config.GlobalConfig = nil

	core, recorded := observer.New(zapcore.InfoLevel)
	originalLogger := logger.Lg
	logger.Lg = zap.New(core)
	defer func() { logger.Lg = originalLogger }()

	assert.NotPanics(t, LogConfigInfo)
	assert.Equal(t, 1, recorded.FilterMessage("global config not loaded").Len())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("abc"))
	assert.Equal(t, "****wxyz", mask("stuvwxyz"))
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

func TestPrintBannerFromFile(t *testing.T) {
	bannerPath := filepath.Join(t.TempDir(), "banner.txt")
	bannerContent := `
  ╔══════════════════════════════════════╗
  ║          Welcome to LingBook         ║
  ╚══════════════════════════════════════╝
`
	require.NoError(t, os.WriteFile(bannerPath, []byte(bannerContent), 0644))

	output := captureStdout(t, func() {
		assert.NoError(t, PrintBannerFromFile(bannerPath))
	})

	assert.Contains(t, output, "Welcome to LingBook")
	assert.Contains(t, output, "\x1b[38;5;")
	assert.Contains(t, output, "\x1b[0m")
}

func TestPrintBannerFromFile_FileNotFound(t *testing.T) {
	err := PrintBannerFromFile("/nonexistent/banner.txt")
	assert.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

// Test color cycling specifically
func TestPrintBannerFromFile_ColorCycling(t *testing.T) {
	bannerPath := filepath.Join(t.TempDir(), "colors.txt")

	lines := make([]string, 12)
	for i := 0; i < 12; i++ {
		lines[i] = "Color test line " + string(rune('A'+i))
	}
	require.NoError(t, os.WriteFile(bannerPath, []byte(strings.Join(lines, "\n")), 0644))

	output := captureStdout(t, func() {
		assert.NoError(t, PrintBannerFromFile(bannerPath))
	})

	lines = strings.Split(output, "\n")
	require.GreaterOrEqual(t, len(lines), 12)
	assert.Equal(t, extractColorCode(lines[0]), extractColorCode(lines[6]), "Colors should cycle every 6 lines")
	assert.NotEqual(t, extractColorCode(lines[0]), extractColorCode(lines[1]))
}

// Helper function to extract color code from a line
func extractColorCode(line string) string {
	start := strings.Index(line, "\x1b[38;5;")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start:], "m")
	if end == -1 {
		return ""
	}
	return line[start : start+end+1]
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	report := ConsoleProgress(&buf)

	report(models.ProgressEvent{Document: "book", Stage: models.StageSynthesizing, Percent: 55, Current: 5, Total: 10})
	report(models.ProgressEvent{Document: "book", Stage: models.StageSynthesizing, Percent: 55, Message: "voice fallback", Warning: true})

	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, out, 2)
	assert.Contains(t, out[0], "[ 55.0%]")
	assert.Contains(t, out[0], "(5/10)")
	assert.Contains(t, out[1], "WARN")
	assert.Contains(t, out[1], "voice fallback")
}
