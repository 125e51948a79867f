// Package extract maps a captured item to the text that gets embedded.
// Pure and deterministic; no I/O.
package extract

import (
	"fmt"
	"strings"

	"github.com/stashkit/retrieval/internal/domain"
)

// MinTextLength is the smallest trimmed extraction that may be embedded.
const MinTextLength = 3

// Input carries everything extraction looks at. Content is only meaningful
// for text items; binary captures supply title/annotation/filename instead.
type Input struct {
	ContentType      domain.ContentType
	Content          string
	Title            string
	Annotation       string
	OriginalFilename string
}

// Text builds the embeddable string for an item.
//
// Text items use the content verbatim, prepending the title when it is not
// already contained in the content and appending the annotation as context.
// Binary captures (image/pdf/audio) have no content-derived extraction; they
// embed a typed label built from title or filename plus the annotation, or a
// fixed placeholder when neither exists.
func Text(in Input) string {
	switch in.ContentType {
	case domain.ContentText:
		return textItem(in)
	case domain.ContentImage, domain.ContentPDF, domain.ContentAudio:
		return binaryItem(in)
	default:
		return unknownItem(in)
	}
}

// Validate rejects extractions too short to produce a meaningful embedding.
func Validate(text string) error {
	if len(strings.TrimSpace(text)) < MinTextLength {
		return domain.ErrValidationFailed
	}
	return nil
}

func textItem(in Input) string {
	content := strings.TrimSpace(in.Content)
	title := strings.TrimSpace(in.Title)

	var b strings.Builder
	if title != "" && !strings.Contains(strings.ToLower(content), strings.ToLower(title)) {
		b.WriteString(title)
		if content != "" {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(content)

	if annotation := strings.TrimSpace(in.Annotation); annotation != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Context: ")
		b.WriteString(annotation)
	}
	return b.String()
}

func binaryItem(in Input) string {
	label := typeLabel(in.ContentType)

	name := strings.TrimSpace(in.Title)
	if name == "" {
		name = strings.TrimSpace(in.OriginalFilename)
	}
	annotation := strings.TrimSpace(in.Annotation)

	if name == "" && annotation == "" {
		return fmt.Sprintf("%s content (no description provided)", label)
	}

	var parts []string
	if name != "" {
		parts = append(parts, fmt.Sprintf("%s: %s", label, name))
	}
	if annotation != "" {
		parts = append(parts, "Context: "+annotation)
	}
	return strings.Join(parts, "\n")
}

func unknownItem(in Input) string {
	if annotation := strings.TrimSpace(in.Annotation); annotation != "" {
		return annotation
	}
	if title := strings.TrimSpace(in.Title); title != "" {
		return title
	}
	return "Unknown content"
}

func typeLabel(t domain.ContentType) string {
	switch t {
	case domain.ContentImage:
		return "Image"
	case domain.ContentPDF:
		return "PDF"
	case domain.ContentAudio:
		return "Audio"
	}
	return "File"
}

// FromItem builds extraction input from a stored item row. ExtractedText
// holds the raw text content for text items; binary items rebuild their
// embeddable string from the descriptive fields alone, so reprocessing a
// stored row yields the same extraction as the original capture.
func FromItem(item *domain.CapturedItem) Input {
	return Input{
		ContentType:      item.ContentType,
		Content:          item.ExtractedText,
		Title:            item.Title,
		Annotation:       item.Annotation,
		OriginalFilename: item.OriginalFilename,
	}
}
