package synthesizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/code-100-precent/LingBook/pkg/media"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Local engines write a WAV file through a command line tool.
const (
	LocalEngineEspeak   = "espeak"
	LocalEngineEspeakNG = "espeak-ng"
	LocalEnginePico     = "pico2wave"
)

type LocalConfig struct {
	Engine     string  `json:"engine" yaml:"engine" env:"LOCAL_TTS_ENGINE" default:"espeak"`
	Voice      string  `json:"voice" yaml:"voice" default:"zh"`
	Speed      float64 `json:"speed" yaml:"speed" default:"1.0"`
	SampleRate int     `json:"sample_rate" yaml:"sample_rate" default:"22050"`
	WorkDir    string  `json:"work_dir" yaml:"work_dir"`
}

func NewLocalConfig(engine string) LocalConfig {
	if engine == "" {
		engine = LocalEngineEspeak
	}
	rate := 22050
	if engine == LocalEnginePico {
		rate = 16000
	}
	return LocalConfig{
		Engine:     engine,
		Voice:      "zh",
		Speed:      1.0,
		SampleRate: rate,
		WorkDir:    os.TempDir(),
	}
}

type LocalService struct {
	opt    LocalConfig
	runner media.CommandRunner
	logger *logrus.Entry
}

// NewLocalService checks the engine is installed unless a runner is injected.
func NewLocalService(opt LocalConfig, runner media.CommandRunner) (*LocalService, error) {
	switch opt.Engine {
	case LocalEngineEspeak, LocalEngineEspeakNG, LocalEnginePico:
	default:
		return nil, fmt.Errorf("%w: local engine %q", ErrUnsupportedProvider, opt.Engine)
	}
	if runner == nil {
		if _, err := exec.LookPath(opt.Engine); err != nil {
			return nil, fmt.Errorf("local tts engine %q is not available: %w", opt.Engine, err)
		}
		runner = media.ExecRunner{}
	}
	if opt.WorkDir == "" {
		opt.WorkDir = os.TempDir()
	}
	return &LocalService{
		opt:    opt,
		runner: runner,
		logger: logrus.WithField("provider", ProviderLocal+"-"+opt.Engine),
	}, nil
}

func (s *LocalService) Provider() string {
	return ProviderLocal
}

func (s *LocalService) Format() AudioFormat {
	return AudioFormat{Encoding: "wav", SampleRate: s.opt.SampleRate, Channels: 1, BitDepth: 16}
}

func (s *LocalService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewApplicationError(ProviderLocal, "", ErrEmptyText)
	}
	if voice == "" {
		voice = s.opt.Voice
	}
	out := filepath.Join(s.opt.WorkDir, "local-tts-"+uuid.NewString()+".wav")
	defer os.Remove(out)

	var args []string
	switch s.opt.Engine {
	case LocalEnginePico:
		args = []string{"-l", voice, "-w", out, text}
	default:
		wpm := int(175 * s.opt.Speed)
		args = []string{"-v", voice, "-s", strconv.Itoa(wpm), "-w", out, text}
	}

	if _, err := s.runner.Run(ctx, s.opt.Engine, args...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.WithError(err).Error("local tts: engine failed")
		return nil, NewApplicationError(ProviderLocal, "engine failed", err)
	}
	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, NewApplicationError(ProviderLocal, "read output", err)
	}
	if len(audio) == 0 {
		return nil, NewApplicationError(ProviderLocal, "", ErrEmptyAudio)
	}
	s.logger.WithField("audio_size", len(audio)).Debug("local tts: synthesis completed")
	return audio, nil
}
