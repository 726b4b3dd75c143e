package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"

	"github.com/slidecraft/orchestrator/internal/domain"
)

// IngestFile is one user-provided asset handed to Ingest (§4.3). The
// upload HTTP handler and file-system layout are out of scope (§1); this
// is the boundary the orchestrator actually owns.
type IngestFile struct {
	Name        string
	URL         string
	Kind        domain.DocumentKind
	ContentType string
	Data        []byte
}

// ContentHash derives the idempotency key §4.3 requires: re-ingesting the
// same (presentation_id, name, content_hash) must yield the same doc_key.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DeriveText extracts plain text from a file per §4.3 step 2. Documents
// are routed by content type; images yield an empty string, as no OCR
// is performed.
func DeriveText(f IngestFile) (string, error) {
	switch {
	case f.Kind == domain.DocumentImage:
		return "", nil
	case strings.Contains(f.ContentType, "pdf") || strings.HasSuffix(strings.ToLower(f.Name), ".pdf"):
		return extractPDF(f.Data)
	case strings.Contains(f.ContentType, "html") || strings.HasSuffix(strings.ToLower(f.Name), ".html"):
		return extractHTML(f.Data, f.URL)
	case strings.Contains(f.ContentType, "markdown") || strings.HasSuffix(strings.ToLower(f.Name), ".md"):
		return extractMarkdown(f.Data)
	default:
		return strings.TrimSpace(string(f.Data)), nil
	}
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(text)), nil
}

func extractHTML(data []byte, rawURL string) (string, error) {
	parsedURL, _ := url.Parse(rawURL)
	if parsedURL == nil {
		parsedURL = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(article.TextContent), nil
}

// extractMarkdown strips markdown to plain text by converting to HTML
// and then discarding the tags; goldmark has no built-in plain-text
// renderer, and a full custom NodeRenderer is unwarranted for this path.
func extractMarkdown(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(stripTags(buf.String())), nil
}

func stripTags(html string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
