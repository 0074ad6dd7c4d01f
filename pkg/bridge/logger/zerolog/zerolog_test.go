package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

func newTestLogger(level zerolog.Level) (*Logger, *bytes.Buffer) {
	output := &bytes.Buffer{}
	zlog := zerolog.New(output).Level(level)
	return NewLogger(&zlog), output
}

func TestZerologLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *Logger, msg string, fields ...bridge.Field)
	}{
		{"debug", (*Logger).Debug},
		{"info", (*Logger).Info},
		{"warn", (*Logger).Warn},
		{"error", (*Logger).Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, output := newTestLogger(zerolog.DebugLevel)
			tt.log(logger, "reconciliation aborted", bridge.F("event_id", "evt_1"))

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "reconciliation aborted", entry["message"])
			assert.Equal(t, "evt_1", entry["event_id"])
		})
	}
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	logger, output := newTestLogger(zerolog.WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Zero(t, output.Len(), "debug and info should be filtered out")

	logger.Warn("warn message")
	logger.Error("error message")
	assert.NotZero(t, output.Len())
}

func TestZerologLogger_Fields(t *testing.T) {
	logger, output := newTestLogger(zerolog.DebugLevel)

	logger.Error("ledger write failed",
		bridge.F("member_id", "42"),
		bridge.F("attempt", 3),
		bridge.F("error", errors.New("connection refused")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	assert.Equal(t, "42", entry["member_id"])
	assert.Equal(t, float64(3), entry["attempt"])
	assert.Equal(t, "connection refused", entry["error"])
}

func TestZerologLogger_NilLogger(t *testing.T) {
	logger := NewLogger(nil)
	assert.NotPanics(t, func() { logger.Info("dropped") })
}
