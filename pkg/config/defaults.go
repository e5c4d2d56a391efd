package config

import "github.com/spf13/viper"

// SetDefaults configures default values for every configuration option,
// applied before any file or environment variable is merged in.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "willow.db")

	v.SetDefault("server.listen_addr", ":7077")
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("sync.max_entries_per_announce", 64)
	v.SetDefault("sync.max_split_depth", 16)
	v.SetDefault("sync.min_fingerprint_range", 1)

	v.SetDefault("identity.key_path", "~/.willow/identity.key")
	v.SetDefault("identity.namespace_key_path", "~/.willow/namespace.key")

	v.SetDefault("log.verbosity", 0)
	v.SetDefault("log.json", false)
}

// DefaultListenAddr is the fallback WebSocket listen address when
// server.listen_addr is unset anywhere.
const DefaultListenAddr = ":7077"
