package models

import "time"

// VoiceReference is sample audio used to bias synthesis toward a voice.
// Built once before a job and shared read-only by every unit.
type VoiceReference struct {
	Name        string        `json:"name"`
	AudioPath   string        `json:"audioPath"`
	SourceURL   string        `json:"sourceUrl,omitempty"`
	Duration    time.Duration `json:"duration"`
	Description string        `json:"description,omitempty"`
}
