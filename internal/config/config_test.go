package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "tracebyte.json", `{
		"server": {"addr": ":4000"},
		"tracer": {"defaultLogMethod": "profiler", "maxDepth": 10},
		"remote": {"type": "http", "url": "http://localhost:4000/mcp"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, "profiler", cfg.Tracer.DefaultLogMethod)
	assert.Equal(t, 10, cfg.Tracer.MaxDepth)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultProcessPrefixes(), cfg.Protocol.ProcessPrefixes)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "tracebyte.yaml", `
log:
  level: debug
protocol:
  processPrefixes:
    - fragment: contentProcess
      kind: content
sourceMaps:
  "http://example.com/app.js": ./app.js.map
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Protocol.ProcessPrefixes, 1)
	assert.Equal(t, "content", cfg.Protocol.ProcessPrefixes[0].Kind)
	assert.Equal(t, "./app.js.map", cfg.SourceMaps["http://example.com/app.js"])
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACEBYTE_ADDR", ":5555")
	t.Setenv("TRACEBYTE_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "c.json", `{}`))
	require.NoError(t, err)

	assert.Equal(t, ":5555", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"bad log method":  `{"tracer": {"defaultLogMethod": "bogus"}}`,
		"negative limit":  `{"tracer": {"maxRecords": -1}}`,
		"stdio no cmd":    `{"remote": {"type": "stdio"}}`,
		"http no url":     `{"remote": {"type": "http"}}`,
		"unknown remote":  `{"remote": {"type": "carrier-pigeon"}}`,
		"bad prefix kind": `{"protocol": {"processPrefixes": [{"fragment": "x", "kind": "y"}]}}`,
		"malformed":       `{`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "c.json", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
