package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/michaelbrown/toolselector/internal/logging"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Watch bool `mapstructure:"watch"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	ConfigPath string        `mapstructure:"config_path"`
	BackupPath string        `mapstructure:"backup_path"`
	Log        LogConfig     `mapstructure:"log"`
	Server     ServerConfig  `mapstructure:"server"`
	Storage    StorageConfig `mapstructure:"storage"`
}

// Load reads toolselector.yaml from the working directory or
// $HOME/.toolselector. A missing file is not an error. TOOLSELECTOR_*
// environment variables override file values.
func Load() (*Config, error) {
	return load(viper.New())
}

// LoadFile reads settings from an explicit file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(expandHome(path))
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("toolselector")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.toolselector")
	}

	v.SetEnvPrefix("TOOLSELECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("config_path", DefaultConfigPath())
	v.SetDefault("backup_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.port", 8741)
	v.SetDefault("server.watch", false)
	v.SetDefault("storage.db_path", filepath.Join(homeDir(), ".toolselector", "history.db"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ConfigPath = expandHome(cfg.ConfigPath)
	cfg.BackupPath = expandHome(cfg.BackupPath)
	cfg.Storage.DBPath = expandHome(cfg.Storage.DBPath)
	return &cfg, nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	if c.Log.Level != "" {
		lc.Level = c.Log.Level
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}

// DefaultConfigPath returns the Claude Desktop configuration file for the
// current OS.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(homeDir(), ".config")
	}
	return filepath.Join(dir, "Claude", "claude_desktop_config.json")
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}
