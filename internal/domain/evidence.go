package domain

import (
	"regexp"
	"strings"
)

// Document is an ingested user asset (§3).
type Document struct {
	Key            string       `json:"key"`
	PresentationID string       `json:"presentation_id"`
	Name           string       `json:"name"`
	URL            string       `json:"url,omitempty"`
	Kind           DocumentKind `json:"kind"`
	ContentHash    string       `json:"content_hash"`
}

// Chunk is a bounded text fragment extracted from a Document (§3).
// Text is capped at 4000 chars by the ingestion pipeline.
type Chunk struct {
	Key            string    `json:"key"`
	DocKey         string    `json:"doc_key"`
	PresentationID string    `json:"presentation_id"`
	Name           string    `json:"name"`
	Text           string    `json:"text"`
	URL            string    `json:"url,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

// RetrievedChunk is one retrieval hit, scored against a query (§6 Retrieval API).
type RetrievedChunk struct {
	ChunkKey string  `json:"chunk_key"`
	Name     string  `json:"name"`
	Text     string  `json:"text"`
	URL      string  `json:"url,omitempty"`
	Score    float64 `json:"score"`
}

const maxChunkChars = 4000
const minChunkChars = 50
const maxNameChars = 255

var invalidNameChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeName applies the §3 document/chunk name canonicalization rule:
// characters outside [A-Za-z0-9._-] become '_', capped at 255 chars.
func SanitizeName(name string) string {
	sanitized := invalidNameChar.ReplaceAllString(name, "_")
	if len(sanitized) > maxNameChars {
		sanitized = sanitized[:maxNameChars]
	}
	return sanitized
}

// SplitIntoChunks splits text into paragraph chunks of at most
// maxChunkChars, dropping pieces shorter than minChunkChars unless
// it is the only chunk; a short final piece is merged into the previous
// chunk instead (§4.3 step 2).
func SplitIntoChunks(text string) []string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	var chunks []string
	var buf strings.Builder

	flush := func() {
		trimmed := strings.TrimSpace(buf.String())
		if trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		buf.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if buf.Len()+len(p)+1 > maxChunkChars {
			flush()
		}
		if len(p) > maxChunkChars {
			// A single paragraph that alone exceeds the cap is hard-split.
			for len(p) > maxChunkChars {
				chunks = append(chunks, p[:maxChunkChars])
				p = p[maxChunkChars:]
			}
			if p != "" {
				buf.WriteString(p)
			}
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return chunks
	}

	filtered := chunks[:0]
	for i, c := range chunks {
		if len(c) >= minChunkChars || len(chunks) == 1 {
			filtered = append(filtered, c)
		} else if i == len(chunks)-1 && len(filtered) > 0 {
			// Merge a short trailing remainder into the previous chunk
			// rather than dropping evidence.
			filtered[len(filtered)-1] = filtered[len(filtered)-1] + "\n\n" + c
		}
	}
	return filtered
}
