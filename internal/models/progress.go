package models

// Stage names a pipeline phase.
type Stage string

const (
	StageReading      Stage = "reading"
	StageSegmenting   Stage = "segmenting"
	StageSynthesizing Stage = "synthesizing"
	StageMerging      Stage = "merging"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// ProgressEvent is emitted on stage transitions and after each unit.
type ProgressEvent struct {
	Document string  `json:"document"`
	Stage    Stage   `json:"stage"`
	Percent  float64 `json:"percent"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Message  string  `json:"message,omitempty"`
	Warning  bool    `json:"warning,omitempty"`
}

// ProgressFunc receives events synchronously; it must not block for long.
type ProgressFunc func(ProgressEvent)
