package logger

import (
	"path/filepath"
	"testing"

	"github.com/scrapedeck/console/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := New(config.LoggerConfig{Level: "loud", Encoding: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	assert.False(t, log.Desugar().Core().Enabled(-1))
	assert.True(t, log.Desugar().Core().Enabled(0))
}

func TestNew_DebugLevel(t *testing.T) {
	log, err := New(config.LoggerConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(-1))
}

func TestNewNop(t *testing.T) {
	log := NewNop().Named("registry")
	log.Infow("registry_refresh", "count", 2)
	assert.NotNil(t, log.SugaredLogger)
}
