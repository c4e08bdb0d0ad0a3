package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	return &Loader{v: viper.New()}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsplit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	l := newTestLoader()
	// No config file anywhere near a temp working directory.
	l.v.AddConfigPath(t.TempDir())

	cfg, err := l.LoadWithoutValidation()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "pdf", cfg.Finish.Format)
	assert.True(t, cfg.Separation.Enabled)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
separation:
  minimum_pages: 3
  delete_blank_pages: true
finish:
  format: png
  collision: overwrite
`)

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Separation.MinimumPages)
	assert.True(t, cfg.Separation.DeleteBlankPages)
	assert.Equal(t, "png", cfg.Finish.Format)
	assert.Equal(t, "overwrite", cfg.Finish.Collision)
	// Untouched keys keep their defaults.
	assert.True(t, cfg.Separation.UseBarcodes)
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := newTestLoader().LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadWithFileInvalidValues(t *testing.T) {
	path := writeConfigFile(t, "finish:\n  format: docx\n")
	_, err := newTestLoader().LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadWithFileMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "log_level: [unclosed\n")
	_, err := newTestLoader().LoadWithFile(path)
	require.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("DOCSPLIT_SEPARATION_MINIMUM_PAGES", "4")
	t.Setenv("DOCSPLIT_LOG_LEVEL", "warn")

	l := newTestLoader()
	l.v.AddConfigPath(t.TempDir())
	cfg, err := l.LoadWithoutValidation()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Separation.MinimumPages)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoaderSetOverride(t *testing.T) {
	l := newTestLoader()
	l.v.AddConfigPath(t.TempDir())
	l.Set("separation.minimum_pages", 7)

	cfg, err := l.LoadWithoutValidation()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Separation.MinimumPages)
}

func TestGetConfigSearchPaths(t *testing.T) {
	paths := GetConfigSearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, "/etc/docsplit")
}
