package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentTransitions(t *testing.T) {
	d := NewDocument("book", "book.txt", "content")
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, DocumentPending, d.Status)

	require.NoError(t, d.Transition(DocumentProcessing))
	assert.ErrorIs(t, d.Transition(DocumentPending), ErrInvalidTransition)
	require.NoError(t, d.Transition(DocumentCompleted))
	assert.True(t, d.Terminal())
	assert.ErrorIs(t, d.Fail(errors.New("late")), ErrInvalidTransition)
	assert.ErrorIs(t, d.Transition(DocumentProcessing), ErrInvalidTransition)
	assert.Equal(t, DocumentCompleted, d.Status)
}

func TestDocumentFail(t *testing.T) {
	d := NewDocument("book", "book.txt", "")
	require.NoError(t, d.Fail(errors.New("unreadable")))
	assert.Equal(t, DocumentFailed, d.Status)
	assert.Equal(t, "unreadable", d.Error)
}

func TestTextUnitCountsRunes(t *testing.T) {
	u := NewTextUnit(3, "第一段。")
	assert.Equal(t, 3, u.Index)
	assert.Equal(t, 4, u.CharCount)
}

func TestAudioUnitLifecycle(t *testing.T) {
	a := NewAudioUnit(NewTextUnit(0, "hi"))
	assert.Equal(t, AudioPending, a.Status)
	assert.ErrorIs(t, a.Complete("x", "mp3", time.Second), ErrInvalidTransition)

	require.NoError(t, a.Start())
	require.NoError(t, a.Complete("/tmp/x.mp3", "mp3", time.Second))
	assert.True(t, a.Completed())
	assert.ErrorIs(t, a.Fail(errors.New("no")), ErrInvalidTransition)
	assert.ErrorIs(t, a.Start(), ErrInvalidTransition)

	b := NewAudioUnit(NewTextUnit(1, "there"))
	require.NoError(t, b.Fail(errors.New("canceled before start")))
	assert.Equal(t, AudioFailed, b.Status)
	assert.Equal(t, "canceled before start", b.Error)
}
