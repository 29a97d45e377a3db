package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultSessionMaxTurns, cfg.Session.MaxTurns)
	assert.Equal(t, DefaultBatchMaxConcurrency, cfg.Batch.MaxConcurrency)
	assert.Equal(t, DefaultWorkerMaxTurns, cfg.Worker.DefaultMaxTurns)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  max_turns: 25
batch:
  max_concurrency: 4
store:
  backend: sqlite
  path: /tmp/contexts.db
workspace: /srv/work
models:
  default:
    provider: anthropic
    model: claude-3-5-sonnet-20241022
  coder:
    provider: openai
    model: gpt-4o
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Session.MaxTurns)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/srv/work", cfg.Workspace)

	coder := cfg.ModelFor(core.AgentTypeCoder)
	assert.Equal(t, "openai", coder.Provider)
	assert.Equal(t, "gpt-4o", coder.Model)

	explorer := cfg.ModelFor(core.AgentTypeExplorer)
	assert.Equal(t, "anthropic", explorer.Provider, "falls back to the default entry")
}

func TestModelForBuiltinDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	m := cfg.ModelFor(core.AgentTypeExplorer)
	assert.Equal(t, DefaultProvider, m.Provider)
	assert.Equal(t, DefaultAnthropicModel, m.Model)
}

func TestValidation(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "taskmesh.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	_, err := Load(write(t, "session:\n  max_turns: 0\n"))
	assert.Error(t, err)

	_, err = Load(write(t, "store:\n  backend: redis\n"))
	assert.Error(t, err)

	_, err = Load(write(t, "store:\n  backend: sqlite\n"))
	assert.Error(t, err, "sqlite requires a path")

	_, err = Load(write(t, "models:\n  coder:\n    provider: bedrock\n"))
	assert.Error(t, err)
}

func TestMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
