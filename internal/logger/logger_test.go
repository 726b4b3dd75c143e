package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("unknown"))
}

func TestSetupReturnsUsableLogger(t *testing.T) {
	l := Setup("debug", "json")
	assert.NotNil(t, l)
}

func TestWithTraceAttachesFields(t *testing.T) {
	base := Setup("info", "json")
	child := WithTrace(base, "pres-1", "sess-1")
	assert.NotEqual(t, base, child)
}
