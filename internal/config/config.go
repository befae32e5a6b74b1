package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Inputs  InputsConfig
	Output  OutputConfig
	DB      DBConfig
	Bridges BridgesConfig
}

// InputsConfig holds the declared-state locations.
type InputsConfig struct {
	Path      string // directory of declaration files
	BridgeSet string `mapstructure:"bridge_set"` // root of bridge plugin directories
}

// OutputConfig holds the managed-store locations.
type OutputConfig struct {
	TargetDir string `mapstructure:"target_dir"` // managed package store
	LinkDir   string `mapstructure:"link_dir"`   // active-package symlink farm
}

// DBConfig holds sqlite settings.
type DBConfig struct {
	Path string
}

// BridgesConfig holds invocation settings.
type BridgesConfig struct {
	LogDir  string        `mapstructure:"log_dir"`  // per-bridge append-only logs
	WorkDir string        `mapstructure:"work_dir"` // per-invocation scratch root
	Timeout time.Duration // 0 = wait forever for a bridge process
}

// Load reads configuration from file and env. Env var overrides use prefix
// PKGBRIDGE_. The config file defaults to
// $XDG_CONFIG_HOME/pkgbridge/config.toml and may be pointed elsewhere with
// PKGBRIDGE_CONFIG.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("inputs.path", filepath.Join(configHome(), "pkgbridge", "declarations"))
	v.SetDefault("inputs.bridge_set", filepath.Join(configHome(), "pkgbridge", "bridges"))
	v.SetDefault("output.target_dir", "/usr/local/lib/pkgbridge")
	v.SetDefault("output.link_dir", "/usr/local/bin")
	v.SetDefault("db.path", "/var/lib/pkgbridge/pkgbridge.db")
	v.SetDefault("bridges.log_dir", "/var/log/pkgbridge")
	v.SetDefault("bridges.work_dir", "/var/tmp/pkgbridge")
	v.SetDefault("bridges.timeout", time.Duration(0))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("PKGBRIDGE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(configHome(), "pkgbridge"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PKGBRIDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.expandPaths()
	return c, nil
}

func configHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Inputs.Path, &c.Inputs.BridgeSet,
		&c.Output.TargetDir, &c.Output.LinkDir,
		&c.DB.Path, &c.Bridges.LogDir, &c.Bridges.WorkDir,
	} {
		*p = expandHome(*p)
	}
}

// expandHome resolves a leading ~/ against the home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
