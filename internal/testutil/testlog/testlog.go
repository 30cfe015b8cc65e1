package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/observability"
)

// Start returns a logger routed through t.Log, honoring PROTOCTL_LOG_LEVEL.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t)).
		Level(observability.LevelFromEnv(zerolog.DebugLevel)).
		With().Str("test", t.Name()).Logger()
	return logger
}
