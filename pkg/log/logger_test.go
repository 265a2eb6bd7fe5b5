package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/paisley/pkg/log"
)

func TestNewDefaultsToInfo(t *testing.T) {
	logger := log.New("paisley", "dev", "0.1.0")
	ctx := context.Background()

	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelError))
}

func TestRecordsCarryServiceAttrs(t *testing.T) {
	line := logLine(t, func() {
		logger := log.NewWithLevel(
			"paisley", "prod", "0.1.0", slog.LevelDebug,
		)
		logger.Debug("engine ready", slog.Int("machines", 2))
	})

	assert.Equal(t, "paisley", line["service"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "0.1.0", line["version"])
	assert.Equal(t, "engine ready", line["msg"])
	assert.EqualValues(t, 2, line["machines"])
}

// logLine captures stdout for fn and decodes the single JSON record
func logLine(t *testing.T, fn func()) map[string]any {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	var line map[string]any
	require.NoError(t,
		json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	return line
}
