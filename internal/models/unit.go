package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// TextUnit is an immutable slice of a document; Index defines playback order.
type TextUnit struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	CharCount int    `json:"charCount"`
}

func NewTextUnit(index int, text string) TextUnit {
	return TextUnit{Index: index, Text: text, CharCount: utf8.RuneCountInString(text)}
}

type AudioStatus string

const (
	AudioPending    AudioStatus = "pending"
	AudioGenerating AudioStatus = "generating"
	AudioCompleted  AudioStatus = "completed"
	AudioFailed     AudioStatus = "failed"
)

// AudioUnit is the synthesized counterpart of the TextUnit with the same Index.
type AudioUnit struct {
	Index      int           `json:"index"`
	SourceText string        `json:"sourceText"`
	FilePath   string        `json:"filePath,omitempty"`
	Duration   time.Duration `json:"duration"`
	Encoding   string        `json:"encoding,omitempty"`
	Status     AudioStatus   `json:"status"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func NewAudioUnit(unit TextUnit) *AudioUnit {
	return &AudioUnit{
		Index:      unit.Index,
		SourceText: unit.Text,
		Status:     AudioPending,
		CreatedAt:  time.Now(),
	}
}

func (a *AudioUnit) Start() error {
	if a.Status != AudioPending {
		return fmt.Errorf("%w: audio unit %d %s -> %s", ErrInvalidTransition, a.Index, a.Status, AudioGenerating)
	}
	a.Status = AudioGenerating
	return nil
}

func (a *AudioUnit) Complete(path, encoding string, duration time.Duration) error {
	if a.Status != AudioGenerating {
		return fmt.Errorf("%w: audio unit %d %s -> %s", ErrInvalidTransition, a.Index, a.Status, AudioCompleted)
	}
	a.Status = AudioCompleted
	a.FilePath = path
	a.Encoding = encoding
	a.Duration = duration
	return nil
}

// Fail is allowed from Pending too, for units that never got to start.
func (a *AudioUnit) Fail(reason error) error {
	if a.Status != AudioGenerating && a.Status != AudioPending {
		return fmt.Errorf("%w: audio unit %d %s -> %s", ErrInvalidTransition, a.Index, a.Status, AudioFailed)
	}
	a.Status = AudioFailed
	if reason != nil {
		a.Error = reason.Error()
	}
	return nil
}

func (a *AudioUnit) Completed() bool {
	return a.Status == AudioCompleted
}
