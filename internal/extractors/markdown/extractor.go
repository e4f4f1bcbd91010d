package markdown

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docvault/internal/core/domain"
	"github.com/custodia-labs/docvault/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles Markdown documents. Headings become section entries
// whose offsets point into the extracted plain text, so downstream
// chunking can snap to them.
type Extractor struct{}

// New creates a new Markdown extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50 // Format-specific, above the plain text fallback
}

var (
	headingRe      = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	imageRe        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	linkRe         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	inlineCodeRe   = regexp.MustCompile("`([^`]*)`")
	blockquoteRe   = regexp.MustCompile(`^>\s*`)
	listMarkerRe   = regexp.MustCompile(`^\s*[-*+]\s+`)
	numberedListRe = regexp.MustCompile(`^\s*\d+\.\s+`)
	hrRe           = regexp.MustCompile(`^[-*_]{3,}\s*$`)
)

// Extract converts markdown to plain text, simplifying formatting line by
// line so section offsets stay consistent with the output text.
func (e *Extractor) Extract(_ context.Context, data []byte, mimeType string) (*driven.ExtractResult, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("binary content for %s: %w", mimeType, domain.ErrExtraction)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid utf-8 for %s: %w", mimeType, domain.ErrExtraction)
	}

	raw := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	var out strings.Builder
	var sections []domain.Section
	inCode := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			// Code content survives verbatim, only the fences go.
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			title := strings.TrimSpace(m[2])
			closeSection(sections, out.Len())
			sections = append(sections, domain.Section{
				Title:  title,
				Offset: out.Len(),
			})
			out.WriteString(title)
			out.WriteByte('\n')
			continue
		}

		if hrRe.MatchString(strings.TrimSpace(line)) {
			continue
		}

		out.WriteString(stripInline(line))
		out.WriteByte('\n')
	}

	text := strings.TrimRight(out.String(), "\n")
	closeSection(sections, len(text))

	return &driven.ExtractResult{
		Text:      text,
		Structure: domain.Structure{Sections: sections},
	}, nil
}

// closeSection sets the span length of the most recent open section.
func closeSection(sections []domain.Section, end int) {
	if len(sections) == 0 {
		return
	}
	last := &sections[len(sections)-1]
	if last.Length == 0 && end > last.Offset {
		last.Length = end - last.Offset
	}
}

// stripInline removes inline markdown formatting from a single line.
func stripInline(line string) string {
	line = blockquoteRe.ReplaceAllString(line, "")
	line = listMarkerRe.ReplaceAllString(line, "")
	line = numberedListRe.ReplaceAllString(line, "")
	line = imageRe.ReplaceAllString(line, "")
	line = linkRe.ReplaceAllString(line, "$1")
	line = inlineCodeRe.ReplaceAllString(line, "$1")
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	line = strings.ReplaceAll(line, "*", "")
	return line
}
