package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mossy-p/videochat-signaling/config"
	"github.com/stretchr/testify/assert"
)

func TestSetupLoggerLevels(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		level    string
		debug    bool
		warnOnly bool
	}{
		{"development is verbose", config.EnvDevelopment, "", true, false},
		{"production defaults to info", config.EnvProduction, "", false, false},
		{"override wins", config.EnvDevelopment, "warn", false, true},
		{"bad override ignored", config.EnvProduction, "loud", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := setupLogger(&config.Config{Environment: tt.env, LogLevel: tt.level})
			ctx := context.Background()
			assert.Equal(t, tt.debug, log.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, !tt.warnOnly, log.Enabled(ctx, slog.LevelInfo))
			assert.True(t, log.Enabled(ctx, slog.LevelWarn))
		})
	}
}
