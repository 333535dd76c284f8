package logger_test

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func TestInstanceComponentField(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)

	var buf bytes.Buffer
	log := logger.New(&buf).With("sampler")
	log.Info().Int("rows", 3).Msg("Retention applied")

	entry := decode(t, &buf)
	assert.Equal(t, "sampler", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Retention applied", entry["message"])
	assert.EqualValues(t, 3, entry["rows"])
}

func TestErrorWithContext(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)

	var buf bytes.Buffer
	err := errors.New().Wrap(errors.ErrStoreSample, stderrors.New("database is locked"))
	logger.New(&buf).ErrorWithContext(err, "metrics", "insert").Msg("")

	entry := decode(t, &buf)
	assert.Equal(t, "metrics", entry["component"])
	assert.Equal(t, "insert", entry["operation"])
	assert.Equal(t, string(errors.ErrStoreSample), entry["error_code"])
	assert.Equal(t, "database is locked", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	logger.SetLogLevel(logger.WarnLevel)
	defer logger.SetLogLevel(logger.DebugLevel)

	var buf bytes.Buffer
	log := logger.New(&buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Error().Str("k", "v").Msg("ignored")
		log.With("x").Debug().Send()
	})
}
