package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "json info", level: "info", format: "json", wantLevel: zapcore.InfoLevel},
		{name: "default format", level: "warn", format: "", wantLevel: zapcore.WarnLevel},
		{name: "console debug", level: "DEBUG", format: "console", wantLevel: zapcore.DebugLevel},
		{name: "padded values", level: " error ", format: " JSON ", wantLevel: zapcore.ErrorLevel},
		{name: "unknown level", level: "verbose", format: "json", wantErr: true},
		{name: "unknown format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Desugar().Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, logger.Desugar().Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}
