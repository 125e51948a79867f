package domain

import (
	"strings"
	"time"
)

// ContentType classifies what kind of payload a captured item holds.
type ContentType string

const (
	// ContentText is a plain text note.
	ContentText ContentType = "text"
	// ContentImage is an image capture.
	ContentImage ContentType = "image"
	// ContentPDF is a PDF capture.
	ContentPDF ContentType = "pdf"
	// ContentAudio is an audio capture.
	ContentAudio ContentType = "audio"
)

// Known reports whether t is one of the supported content types.
func (t ContentType) Known() bool {
	switch t {
	case ContentText, ContentImage, ContentPDF, ContentAudio:
		return true
	}
	return false
}

// EmbeddingStatus tracks where an item is in the embedding pipeline.
type EmbeddingStatus string

const (
	// EmbeddingPending means the item awaits embedding.
	EmbeddingPending EmbeddingStatus = "pending"
	// EmbeddingCompleted means a vector record exists for the item.
	EmbeddingCompleted EmbeddingStatus = "completed"
	// EmbeddingFailed means the last pipeline run did not produce a vector record.
	EmbeddingFailed EmbeddingStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal status change.
// Legal moves: pending→completed, pending→failed, failed→pending (retry sweep).
func (s EmbeddingStatus) CanTransition(next EmbeddingStatus) bool {
	switch s {
	case EmbeddingPending:
		return next == EmbeddingCompleted || next == EmbeddingFailed
	case EmbeddingFailed:
		return next == EmbeddingPending
	}
	return false
}

// CapturedItem is a single captured piece of content as stored by the
// relational collaborator. The retrieval core reads all fields and writes
// only EmbeddingStatus.
type CapturedItem struct {
	ID               string
	OwnerID          string
	ContentType      ContentType
	Title            string
	Annotation       string
	Tags             []string
	ExtractedText    string
	OriginalFilename string
	Source           string
	EmbeddingStatus  EmbeddingStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasAllTags reports whether the item carries every tag in want (case-insensitive).
func (i *CapturedItem) HasAllTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range i.Tags {
			if strings.EqualFold(t, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
