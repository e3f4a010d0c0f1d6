package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	require.NoError(t, SaveToFile(&Config{RelayURL: "wss://relay.example/ws", Identifier: "alice"}, path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "wss://relay.example/ws", cfg.RelayURL)
	require.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	require.Equal(t, DefaultHandshakeTimeout, cfg.HandshakeTimeout)
	require.Equal(t, DefaultChunkBytes, cfg.ChunkBytes)
	require.Equal(t, DefaultInflightWindow, cfg.InflightWindow)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestSaveToFileJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, SaveToFile(&Config{RelayURL: "wss://x", Identifier: "bob"}, path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "bob", cfg.Identifier)
}

func TestValidateRequiresRelayURLAndIdentifier(t *testing.T) {
	issues := Validate(&Config{ChunkBytes: 1, InflightWindow: 1})
	var fields []string
	for _, i := range issues {
		fields = append(fields, i.Field)
	}
	require.Contains(t, fields, "relay_url")
	require.Contains(t, fields, "identifier")
}

func TestValidateChunkExceedsMaxIsWarning(t *testing.T) {
	cfg := &Config{
		RelayURL:       "wss://relay",
		Identifier:     "carol",
		ChunkBytes:     1024,
		MaxFileBytes:   512,
		InflightWindow: 4,
	}
	issues := Validate(cfg)
	require.Len(t, issues, 1)
	require.Equal(t, "warn", issues[0].Level)
}

func TestValidatePassesWithCompleteConfig(t *testing.T) {
	cfg := &Config{
		RelayURL:       "wss://relay",
		Identifier:     "dave",
		ChunkBytes:     DefaultChunkBytes,
		MaxFileBytes:   DefaultMaxFileBytes,
		InflightWindow: DefaultInflightWindow,
	}
	require.Empty(t, Validate(cfg))
}
