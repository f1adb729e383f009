package flume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelOrdering(t *testing.T) {
	// debug < info < warning < success < error
	ordered := []Level{LevelDebug, LevelInfo, LevelWarning, LevelSuccess, LevelError}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Rank(), ordered[i].Rank())
	}

	assert.True(t, LevelSuccess.AtLeast(LevelWarning))
	assert.False(t, LevelWarning.AtLeast(LevelSuccess))
	assert.True(t, LevelError.AtLeast(LevelError))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarning.String())
	assert.Equal(t, "SUCCESS", LevelSuccess.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warning", LevelWarning, false},
		{"warn", LevelWarning, false},
		{"success", LevelSuccess, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestLevelSet(t *testing.T) {
	var empty LevelSet
	assert.True(t, empty.Empty())
	assert.False(t, empty.Contains(LevelInfo))

	// An allow-set ignores the severity order entirely.
	set := NewLevelSet(LevelDebug, LevelError)
	assert.False(t, set.Empty())
	assert.True(t, set.Contains(LevelDebug))
	assert.True(t, set.Contains(LevelError))
	assert.False(t, set.Contains(LevelInfo))
	assert.False(t, set.Contains(LevelWarning))
	assert.False(t, set.Contains(Level(42)))
}
