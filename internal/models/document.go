package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentPending:    {DocumentProcessing, DocumentFailed},
	DocumentProcessing: {DocumentCompleted, DocumentFailed},
}

// Document is one input text converted to one audiobook. Only the
// orchestrator running it mutates it.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Source    string         `json:"source"`
	Content   string         `json:"-"`
	Units     []TextUnit     `json:"units,omitempty"`
	Status    DocumentStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func NewDocument(title, source, content string) *Document {
	now := time.Now()
	return &Document{
		ID:        uuid.NewString(),
		Title:     title,
		Source:    source,
		Content:   content,
		Status:    DocumentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the document forward; terminal states are final.
func (d *Document) Transition(to DocumentStatus) error {
	if d.Terminal() {
		return fmt.Errorf("%w: document %s is final", ErrInvalidTransition, d.Status)
	}
	for _, allowed := range documentTransitions[d.Status] {
		if allowed == to {
			d.Status = to
			d.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: document %s -> %s", ErrInvalidTransition, d.Status, to)
}

// Fail records reason and moves to Failed from any non-terminal state.
func (d *Document) Fail(reason error) error {
	if err := d.Transition(DocumentFailed); err != nil {
		return err
	}
	if reason != nil {
		d.Error = reason.Error()
	}
	return nil
}

func (d *Document) Terminal() bool {
	return d.Status == DocumentCompleted || d.Status == DocumentFailed
}
