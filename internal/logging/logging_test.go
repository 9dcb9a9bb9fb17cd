// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.LogConfig
		enabled zapcore.Level
		hidden  zapcore.Level
		errMsg  string
	}{
		{name: "defaults", cfg: types.LogConfig{}, enabled: zapcore.InfoLevel, hidden: zapcore.DebugLevel},
		{name: "debug console", cfg: types.LogConfig{Level: "debug", Format: "console"}, enabled: zapcore.DebugLevel, hidden: zapcore.DebugLevel - 1},
		{name: "warn json", cfg: types.LogConfig{Level: "WARN", Format: "json"}, enabled: zapcore.WarnLevel, hidden: zapcore.InfoLevel},
		{name: "bad level", cfg: types.LogConfig{Level: "loud"}, errMsg: "log level"},
		{name: "bad format", cfg: types.LogConfig{Format: "xml"}, errMsg: "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.enabled))
			assert.False(t, log.Core().Enabled(tt.hidden))
		})
	}
}
