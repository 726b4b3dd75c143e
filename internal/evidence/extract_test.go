package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashStableAndDistinct(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	c := ContentHash([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDeriveTextPlainPassthrough(t *testing.T) {
	f := IngestFile{Name: "notes.txt", ContentType: "text/plain", Data: []byte("  plain notes  ")}
	text, err := DeriveText(f)
	require.NoError(t, err)
	assert.Equal(t, "plain notes", text)
}

func TestDeriveTextMarkdown(t *testing.T) {
	f := IngestFile{Name: "brief.md", ContentType: "text/markdown", Data: []byte("# Title\n\nSome **bold** text.")}
	text, err := DeriveText(f)
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "bold")
	assert.NotContains(t, text, "<")
}

func TestStripTags(t *testing.T) {
	out := stripTags("<p>Hello <b>World</b></p>")
	assert.Equal(t, "Hello World", out)
}
