package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/entitybug/orm"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, orm.StoreConfig{Driver: orm.DriverSQLite}, cfg.Store.ORM())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, FileName, `
outputDir: gen
includeTests: true
index: source
log:
  level: debug
store:
  driver: sqlite3
  dsn:
    orders-pu: file:orders.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		OutputDir:    "gen",
		IncludeTests: true,
		Index:        IndexSource,
		Resolver:     ResolverModule,
		Log:          LogConfig{Level: "debug"},
		Store: StoreConfig{
			Driver: orm.DriverSQLite3,
			DSN:    map[string]string{"orders-pu": "file:orders.db"},
		},
	}, cfg)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, FileName, "index: source\nresolver: module\n")
	t.Setenv("ENTITYBUG_RESOLVER", "tool")
	t.Setenv("ENTITYBUG_INCLUDE_TESTS", "true")
	t.Setenv("ENTITYBUG_OUTPUT_DIR", "out")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, IndexSource, cfg.Index)
	assert.Equal(t, ResolverTool, cfg.Resolver)
	assert.True(t, cfg.IncludeTests)
	assert.Equal(t, "out", cfg.OutputDir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		errMsg  string
	}{
		{name: "unknown field", content: "bogus: 1\n", errMsg: "bogus"},
		{name: "bad index", content: "index: jandex\n", errMsg: "invalid index mode"},
		{name: "bad resolver", content: "resolver: classpath\n", errMsg: "invalid resolver"},
		{name: "bad driver", content: "store:\n  driver: postgres\n", errMsg: "invalid sqlite driver"},
		{name: "bad env", content: "", env: map[string]string{"ENTITYBUG_INCLUDE_TESTS": "maybe"}, errMsg: "ENTITYBUG_INCLUDE_TESTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, FileName, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.False(t, LoadEnvFile(logger, filepath.Join(t.TempDir(), ".env")))

	path := writeFile(t, ".env", "ENTITYBUG_TEST_DOTENV=loaded\n")
	t.Cleanup(func() { os.Unsetenv("ENTITYBUG_TEST_DOTENV") })
	assert.True(t, LoadEnvFile(logger, path))
	assert.Equal(t, "loaded", os.Getenv("ENTITYBUG_TEST_DOTENV"))
}
