// Package chunker splits a heading-structured manual into labeled chunks.
//
// The input format uses two heading levels: "## " opens a section and
// "### " opens a subsection. Any other non-blank line is content.
package chunker

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	sectionPrefix    = "## "
	subsectionPrefix = "### "
)

// Kind tells whether a chunk closes a section body or a subsection body.
type Kind string

const (
	KindSection    Kind = "section"
	KindSubsection Kind = "subsection"
)

// Chunk is one labeled unit of manual text. An empty Section or Subsection
// means the label is absent.
type Chunk struct {
	ID         int
	Section    string
	Subsection string
	Content    string
	Kind       Kind
}

// ContentLength returns the length of Content in characters.
func (c Chunk) ContentLength() int {
	return utf8.RuneCountInString(c.Content)
}

// Parse reads a manual from r and returns its chunks in emission order.
//
// Content that appears before the first section heading is dropped.
func Parse(r io.Reader) ([]Chunk, error) {
	p := &parser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("line %d: invalid UTF-8", lineNo)
		}
		p.feed(norm.NFC.String(strings.TrimRight(string(raw), "\r")))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read manual: %w", err)
	}
	if len(p.content) > 0 {
		p.flush()
	}
	return p.chunks, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) ([]Chunk, error) {
	return Parse(strings.NewReader(s))
}

type parser struct {
	chunks     []Chunk
	section    string
	subsection string
	inSection  bool
	content    []string
}

func (p *parser) feed(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	switch {
	case strings.HasPrefix(trimmed, subsectionPrefix):
		if p.inSection && len(p.content) > 0 {
			p.flush()
		}
		p.subsection = strings.TrimSpace(trimmed[len(subsectionPrefix):])
		p.content = p.content[:0]
	case strings.HasPrefix(trimmed, sectionPrefix):
		// A new section always closes the open one, even with no content.
		if p.inSection {
			p.flush()
		}
		p.section = strings.TrimSpace(trimmed[len(sectionPrefix):])
		p.subsection = ""
		p.inSection = true
		p.content = p.content[:0]
	default:
		// Preamble lines are collected but never flushed: flush needs an
		// open section.
		p.content = append(p.content, line)
	}
}

// flush emits the pending content as a chunk of the open section. Nothing is
// emitted outside a section.
func (p *parser) flush() {
	if !p.inSection {
		p.content = p.content[:0]
		return
	}
	kind := KindSection
	if p.subsection != "" {
		kind = KindSubsection
	}
	p.chunks = append(p.chunks, Chunk{
		ID:         len(p.chunks),
		Section:    p.section,
		Subsection: p.subsection,
		Content:    strings.Join(p.content, "\n"),
		Kind:       kind,
	})
	p.content = p.content[:0]
}
