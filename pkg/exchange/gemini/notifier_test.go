package gemini

import (
	"bytes"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemsync/pkg/core"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	n.Notify(core.SeverityWarning, "skipped a record")
	n.Notify(core.SeverityError, "request failed")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, sonic.Unmarshal(lines[0], &first))
	require.NoError(t, sonic.Unmarshal(lines[1], &second))

	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "skipped a record", first["message"])
	assert.Equal(t, "warning", first["severity"])
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, "request failed", second["message"])
}
