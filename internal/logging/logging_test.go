package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, tc := range []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	} {
		l, err := New(tc.level, "json")
		require.NoError(t, err, tc.level)
		assert.True(t, l.Core().Enabled(tc.want))
		assert.False(t, l.Core().Enabled(tc.want-1))
	}
}

func TestNewConsole(t *testing.T) {
	l, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}
