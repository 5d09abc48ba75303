package ui_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dev/onyx-database-go/internal/ui"
)

func TestFormatRecords(t *testing.T) {
	records := []map[string]any{
		{"name": "Ada", "age": 36.0},
		{"name": "Lin", "roles": []any{"admin"}, "meta": map[string]any{"x": 1.0}},
	}

	headers, rows := ui.FormatRecords(records, nil)
	assert.Equal(t, []string{"age", "meta", "name", "roles"}, headers)
	assert.Equal(t, [][]string{
		{"36", "", "Ada", ""},
		{"", `{"x":1}`, "Lin", `["admin"]`},
	}, rows)

	headers, rows = ui.FormatRecords(records, []string{"name"})
	assert.Equal(t, []string{"name"}, headers)
	assert.Equal(t, [][]string{{"Ada"}, {"Lin"}}, rows)
}

func TestJSONWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out bytes.Buffer
	p := ui.New(&out, &out)
	require.NoError(t, p.JSON(map[string]any{"count": 3}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 3, decoded["count"])
}

func TestRecordsEmpty(t *testing.T) {
	var out bytes.Buffer
	p := ui.New(&out, &out)
	require.NoError(t, p.Records(nil, nil))
	assert.Contains(t, out.String(), "no records")
}

func TestMessagesGoToTheirStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	p := ui.New(&out, &errOut)
	p.Success("saved %d", 2)
	p.Warning("careful")
	p.Error("failed")

	assert.Contains(t, out.String(), "saved 2")
	assert.Contains(t, errOut.String(), "careful")
	assert.Contains(t, errOut.String(), "failed")
	assert.NotContains(t, out.String(), "failed")
}
