package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_Ordering(t *testing.T) {
	levels := Levels()
	require.Len(t, levels, 6)
	for i := 1; i < len(levels); i++ {
		assert.Less(t, levels[i-1], levels[i])
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range Levels() {
		parsed, err := ParseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, parsed)
	}

	_, err := ParseLevel("WARN")
	assert.Error(t, err)
	_, err = ParseLevel("warning")
	assert.Error(t, err)
}

func TestLevel_MarshalInvalid(t *testing.T) {
	_, err := Level(42).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "level(42)", Level(42).String())
}

func TestDetectLevel(t *testing.T) {
	tests := []struct {
		line     string
		expected Level
	}{
		{"2026-01-01 ERROR failed to open socket", LevelError},
		{"[warning] disk almost full", LevelWarn},
		{"CRITICAL: power lost", LevelFatal},
		{"debug: cache miss", LevelDebug},
		{"TRACE enter handler", LevelTrace},
		{"just a plain line", LevelInfo},
		{"information overload", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectLevel(tt.line))
		})
	}
}
