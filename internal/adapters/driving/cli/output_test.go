package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		assert.NoError(t, checkFormat(f))
	}
	assert.Error(t, checkFormat("csv"))
}

func TestWriteStructured(t *testing.T) {
	v := struct {
		TotalChunks int      `json:"total_chunks"`
		Names       []string `json:"names"`
	}{3, []string{"a"}}

	buf := new(bytes.Buffer)
	require.NoError(t, writeStructured(buf, formatJSON, v))
	assert.Equal(t, "{\n  \"total_chunks\": 3,\n  \"names\": [\n    \"a\"\n  ]\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, writeStructured(buf, formatYAML, v))
	assert.Equal(t, "names:\n    - a\ntotal_chunks: 3\n", buf.String())
}

func TestTerminalWidth_NotTerminal(t *testing.T) {
	_, ok := terminalWidth(new(bytes.Buffer))
	assert.False(t, ok)
}

func TestRenderMarkdown(t *testing.T) {
	out, err := renderMarkdown("## Sources\n\n- FAB-FS-Q1-2025-English.pdf, p.3\n", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "FAB-FS-Q1-2025-English.pdf")
}

func TestNewPalette_PlainWhenNotTerminal(t *testing.T) {
	p := newPalette(new(bytes.Buffer))
	assert.Equal(t, "Validated", p.success.Render("Validated"))
	assert.Equal(t, "Error:", p.failure.Render("Error:"))
}
