package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWriter(t *testing.T) {
	t.Cleanup(func() { Init(false) })

	var buf bytes.Buffer
	InitWriter(true, &buf)
	assert.True(t, Enabled())
	Debug("request", "method", "GET")
	With("component", "stream").Warn("dropped")

	out := buf.String()
	assert.Contains(t, out, "msg=request")
	assert.Contains(t, out, "method=GET")
	assert.Contains(t, out, "lib=onyx")
	assert.Contains(t, out, "component=stream")

	buf.Reset()
	InitWriter(false, &buf)
	assert.False(t, Enabled())
	Error("hidden")
	assert.Empty(t, buf.String())
}

func TestFromEnv(t *testing.T) {
	t.Cleanup(func() { Init(false) })

	t.Setenv(EnvVar, "nope")
	assert.False(t, FromEnv())
	assert.False(t, Enabled())

	t.Setenv(EnvVar, "true")
	assert.True(t, FromEnv())
	assert.True(t, Enabled())
}
