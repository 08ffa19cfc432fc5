// Package config resolves runtime settings.
//
// Precedence, highest first: bound command-line flags, MNEMOSYNE_*
// environment variables, the mnemosyne.yaml config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/mnemosyne/internal/claims"
	"github.com/roach88/mnemosyne/internal/seed"
	"github.com/roach88/mnemosyne/internal/verify"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MNEMOSYNE"

// FileName is the config file name searched for when none is given.
const FileName = "mnemosyne"

// Config is the resolved runtime configuration.
type Config struct {
	DataDir           string        `mapstructure:"data_dir" yaml:"data_dir"`
	DBPath            string        `mapstructure:"db_path" yaml:"db_path"`
	BlobDir           string        `mapstructure:"blob_dir" yaml:"blob_dir"`
	LedgerDir         string        `mapstructure:"ledger_dir" yaml:"ledger_dir"`
	Env               string        `mapstructure:"env" yaml:"env"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	Quorum            int           `mapstructure:"quorum" yaml:"quorum"`
	VotePolicy        string        `mapstructure:"vote_policy" yaml:"vote_policy"`
	ImportMode        string        `mapstructure:"import_mode" yaml:"import_mode"`
	BlobCacheTTL      time.Duration `mapstructure:"blob_cache_ttl" yaml:"blob_cache_ttl"`
	BlobCacheMaxBytes int64         `mapstructure:"blob_cache_max_bytes" yaml:"blob_cache_max_bytes"`
}

// Defaults returns the built-in configuration. Derived paths are left
// empty; ApplyDefaults fills them from DataDir.
func Defaults() Config {
	return Config{
		DataDir:           "data",
		Env:               "prod",
		Quorum:            verify.DefaultThreshold,
		VotePolicy:        string(claims.PolicyPermissive),
		ImportMode:        string(seed.ModeDedup),
		BlobCacheTTL:      10 * time.Minute,
		BlobCacheMaxBytes: 1 << 20,
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("blob_dir", d.BlobDir)
	v.SetDefault("ledger_dir", d.LedgerDir)
	v.SetDefault("env", d.Env)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("quorum", d.Quorum)
	v.SetDefault("vote_policy", d.VotePolicy)
	v.SetDefault("import_mode", d.ImportMode)
	v.SetDefault("blob_cache_ttl", d.BlobCacheTTL)
	v.SetDefault("blob_cache_max_bytes", d.BlobCacheMaxBytes)
}

// Load resolves a Config. configFile names an explicit YAML file; when it
// is empty, mnemosyne.yaml is looked up in the working directory and is
// optional. flags may be nil; otherwise each flag whose name matches a key
// (with dashes for underscores) overrides it when set.
func Load(v *viper.Viper, configFile string, flags *pflag.FlagSet) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range v.AllKeys() {
			if f := flags.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults derives the store locations from DataDir.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = Defaults().DataDir
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "mnemosyne.db")
	}
	if c.BlobDir == "" {
		c.BlobDir = filepath.Join(c.DataDir, "blobs")
	}
	if c.LedgerDir == "" {
		c.LedgerDir = filepath.Join(c.DataDir, "ledger")
	}
	if c.Env == "" {
		c.Env = Defaults().Env
	}
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	if c.Quorum < 1 {
		return fmt.Errorf("quorum must be at least 1, got %d", c.Quorum)
	}
	switch c.Env {
	case "prod", "local", "dev":
	default:
		return fmt.Errorf("env must be prod, local or dev, got %q", c.Env)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if _, err := claims.ParseVotePolicy(c.VotePolicy); err != nil {
		return fmt.Errorf("vote_policy: %w", err)
	}
	if _, err := seed.ParseImportMode(c.ImportMode); err != nil {
		return fmt.Errorf("import_mode: %w", err)
	}
	if c.BlobCacheTTL < 0 {
		return fmt.Errorf("blob_cache_ttl must not be negative, got %s", c.BlobCacheTTL)
	}
	return nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
