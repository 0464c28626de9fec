package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("REDINK_TEST_KEY", "sk-test")

	require.Equal(t, "key: sk-test", expandEnv("key: ${REDINK_TEST_KEY}"))
	require.Equal(t, "model: gpt-4o", expandEnv("model: ${REDINK_UNSET_MODEL:gpt-4o}"))
	require.Equal(t, "x: ${REDINK_UNSET_NO_DEFAULT}", expandEnv("x: ${REDINK_UNSET_NO_DEFAULT}"))
}

func TestLoadFromUsesDefaultsWithoutFiles(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15, cfg.Image.MaxConcurrency)
	require.Equal(t, 300*time.Second, cfg.Client.OutlineTimeout)
	require.Equal(t, 10*time.Second, cfg.Client.CRUDTimeout)
}

func TestLoadFromMergesEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	base := `
app:
  name: redink-test
image:
  provider: mock
  max_concurrency: 4
llm:
  default_provider: main
  providers:
    main:
      type: mock
      model: ${REDINK_TEST_MODEL:mock-text}
`
	overlay := `
image:
  max_concurrency: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte(overlay), 0o644))
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	require.Equal(t, "redink-test", cfg.App.Name)
	require.Equal(t, "mock", cfg.Image.Provider)
	require.Equal(t, 2, cfg.Image.MaxConcurrency)
	require.Equal(t, "mock-text", cfg.LLM.Providers["main"].Model)
}

func TestLoadFromRejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("database:\n  driver: mysql\n"), 0o644))

	_, err := LoadFrom(dir)
	require.ErrorContains(t, err, "unsupported database driver")
}
