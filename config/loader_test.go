package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, SaveToFile(&Config{RelayURL: "wss://fallback", Identifier: "erin"}, filepath.Join(dir, "default.yaml")))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "nonexistent-env"})
	require.NoError(t, err)
	require.Equal(t, "wss://fallback", cfg.RelayURL)
}

func TestLoadReturnsDefaultsWhenNoFileExists(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipValidation: true})
	require.NoError(t, err)
	require.Equal(t, "test", cfg.Environment)
	require.Equal(t, DefaultChunkBytes, cfg.ChunkBytes)
}

func TestLoadFailsValidationWithoutRelayURL(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	require.Error(t, err)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveToFile(&Config{RelayURL: "wss://file", Identifier: "frank"}, filepath.Join(dir, "default.yaml")))
	t.Setenv("HELIX_RELAY_URL", "wss://override")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "nonexistent-env"})
	require.NoError(t, err)
	require.Equal(t, "wss://override", cfg.RelayURL)
}
