package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "willow.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "custom.db"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "custom.db", cfg.Database.Path)
	assert.Equal(t, DefaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, uint64(64), cfg.Sync.MaxEntriesPerAnnounce)
}

func TestWriteDefaultThenLoadFromFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "willow.toml")

	cfg := Config{
		Database: DatabaseConfig{Path: "round-trip.db"},
		Server:   ServerConfig{ListenAddr: ":9999"},
		Sync:     SyncConfig{MaxEntriesPerAnnounce: 32, MaxSplitDepth: 8, MinFingerprintRange: 2},
		Identity: IdentityConfig{KeyPath: "/tmp/key"},
		Log:      LogConfig{Verbosity: 2, JSON: true},
	}
	require.NoError(t, WriteDefault(path, cfg))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "round-trip.db", loaded.Database.Path)
	assert.Equal(t, ":9999", loaded.Server.ListenAddr)
	assert.Equal(t, uint32(8), loaded.Sync.MaxSplitDepth)
}

func TestStoreSyncConfigConvertsFields(t *testing.T) {
	c := SyncConfig{MaxEntriesPerAnnounce: 10, MaxSplitDepth: 3, MinFingerprintRange: 5}
	s := c.StoreSyncConfig()
	assert.Equal(t, uint64(10), s.MaxEntriesPerAnnounce)
	assert.Equal(t, uint32(3), s.MaxSplitDepth)
	assert.Equal(t, uint64(5), s.MinFingerprintRange)
}
