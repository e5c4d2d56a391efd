// Package config loads willow's runtime configuration the way the teacher's
// am package loads QNTX's: Viper layered over TOML files and environment
// variables, with SetDefaults establishing every value's fallback before any
// file or env var is merged in.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/store"
)

// Config is willow's root configuration tree.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Identity IdentityConfig `mapstructure:"identity"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite-backed entry store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // sqlite file, or ":memory:" for the in-process store
}

// ServerConfig configures `willow serve`'s WebSocket listener.
type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" toml:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// SyncConfig tunes range-based set reconciliation's split behaviour. Field
// names mirror store.SyncConfig; this is the on-disk/env-var shadow of it.
type SyncConfig struct {
	MaxEntriesPerAnnounce uint64 `mapstructure:"max_entries_per_announce" toml:"max_entries_per_announce"`
	MaxSplitDepth         uint32 `mapstructure:"max_split_depth" toml:"max_split_depth"`
	MinFingerprintRange   uint64 `mapstructure:"min_fingerprint_range" toml:"min_fingerprint_range"`
}

// IdentityConfig locates the user's and namespace's did:key signing
// material on disk.
type IdentityConfig struct {
	KeyPath          string `mapstructure:"key_path" toml:"key_path"`
	NamespaceKeyPath string `mapstructure:"namespace_key_path" toml:"namespace_key_path"`
}

// LogConfig configures the zap logger's verbosity and output format.
type LogConfig struct {
	Verbosity int  `mapstructure:"verbosity"`
	JSON      bool `mapstructure:"json"`
}

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads willow's configuration using Viper, caching the result for the
// lifetime of the process.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific TOML file, bypassing the
// search path and environment variable merge Load otherwise performs.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	return &cfg, nil
}

// Reset clears the cached configuration. Useful for tests that load several
// configurations in the same process.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper builds a Viper instance with environment bindings, defaults, and
// the config file search path merged in, in ascending precedence order.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("WILLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig walks up from the working directory looking for
// willow.toml, returning the first one found or "" if none exists.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "willow.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// mergeConfigFiles layers config files in ascending precedence (lowest
// first): system, user, project. Env vars (already bound above) win over
// all of them because Viper consults them before its merged key/value store.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	willowDir := filepath.Join(homeDir, ".willow")
	os.MkdirAll(willowDir, DefaultDirPermissions)

	configPaths := []string{
		"/etc/willow/config.toml",
		filepath.Join(willowDir, "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		configPaths = append(configPaths, project)
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}
		for key, value := range tempViper.AllSettings() {
			v.Set(key, value)
		}
	}
}

// WriteDefault writes cfg to path encoded as TOML, creating parent
// directories as needed.
func WriteDefault(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create config directory %s", dir)
		}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode config as TOML")
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// File system permission constants.
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// StoreSyncConfig converts the on-disk SyncConfig into the store package's
// tuning struct that the reconciliation driver actually consumes.
func (c SyncConfig) StoreSyncConfig() store.SyncConfig {
	return store.SyncConfig{
		MaxEntriesPerAnnounce: c.MaxEntriesPerAnnounce,
		MaxSplitDepth:         c.MaxSplitDepth,
		MinFingerprintRange:   c.MinFingerprintRange,
	}
}
