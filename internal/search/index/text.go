package index

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/chunker"
)

const (
	sectionLabel    = "Section: "
	subsectionLabel = "Subsection: "
	unitSeparator   = " | "
)

// EmbeddingUnit returns the text fed to the embedding model for c: the
// labeled section, the labeled subsection and the content, joined by " | ".
// Absent parts are left out.
func EmbeddingUnit(c chunker.Chunk) string {
	parts := make([]string, 0, 3)
	if c.Section != "" {
		parts = append(parts, sectionLabel+c.Section)
	}
	if c.Subsection != "" {
		parts = append(parts, subsectionLabel+c.Subsection)
	}
	if c.Content != "" {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, unitSeparator)
}

// TextHash returns a sha256 hash (hex) of the text.
func TextHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
