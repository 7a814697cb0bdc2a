// Package config loads the configuration of the entitybug tool. Values come
// from defaults, then an optional YAML file, then ENTITYBUG_* environment
// variables (which may be loaded from a .env file). Command-line flags are
// applied last, by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/entitybug/orm"
)

// FileName is the configuration file looked up in the working directory when
// no file is given explicitly.
const FileName = "entitybug.yaml"

// Index modes.
const (
	IndexManifest = "manifest"
	IndexSource   = "source"
)

// Resolver scopes.
const (
	ResolverModule = "module"
	ResolverTool   = "tool"
)

// Config represents the entitybug configuration.
type Config struct {
	// OutputDir is where generated files go. If empty, they are written into
	// the source directory of their package.
	OutputDir    string `yaml:"outputDir"`
	IncludeTests bool   `yaml:"includeTests"`
	// Index is IndexManifest or IndexSource.
	Index string `yaml:"index"`
	// Resolver is ResolverModule or ResolverTool.
	Resolver string      `yaml:"resolver"`
	Log      LogConfig   `yaml:"log"`
	Store    StoreConfig `yaml:"store"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type StoreConfig struct {
	Driver string            `yaml:"driver"`
	Dir    string            `yaml:"dir"`
	DSN    map[string]string `yaml:"dsn"`
}

// ORM returns the store configuration in the form the orm package takes.
func (s StoreConfig) ORM() orm.StoreConfig {
	return orm.StoreConfig{Driver: s.Driver, Dir: s.Dir, DSN: s.DSN}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Index:    IndexManifest,
		Resolver: ResolverModule,
		Store:    StoreConfig{Driver: orm.DriverSQLite},
	}
}

// Load reads the configuration. If path is empty, FileName is read from the
// working directory when it exists. Environment overrides are applied and the
// result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// no config file; defaults apply
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides values from ENTITYBUG_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("ENTITYBUG_OUTPUT_DIR"); ok {
		c.OutputDir = v
	}
	if v, ok := os.LookupEnv("ENTITYBUG_INCLUDE_TESTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENTITYBUG_INCLUDE_TESTS %q: %w", v, err)
		}
		c.IncludeTests = b
	}
	if v, ok := os.LookupEnv("ENTITYBUG_INDEX"); ok {
		c.Index = v
	}
	if v, ok := os.LookupEnv("ENTITYBUG_RESOLVER"); ok {
		c.Resolver = v
	}
	if v, ok := os.LookupEnv("ENTITYBUG_SQLITE_DRIVER"); ok {
		c.Store.Driver = v
	}
	if v, ok := os.LookupEnv("ENTITYBUG_STORE_DIR"); ok {
		c.Store.Dir = v
	}
	return nil
}

// Validate checks that enumerated values are known.
func (c *Config) Validate() error {
	switch c.Index {
	case IndexManifest, IndexSource:
	default:
		return fmt.Errorf("invalid index mode %q: must be %q or %q", c.Index, IndexManifest, IndexSource)
	}
	switch c.Resolver {
	case ResolverModule, ResolverTool:
	default:
		return fmt.Errorf("invalid resolver %q: must be %q or %q", c.Resolver, ResolverModule, ResolverTool)
	}
	switch c.Store.Driver {
	case orm.DriverSQLite, orm.DriverSQLite3:
	default:
		return fmt.Errorf("invalid sqlite driver %q", c.Store.Driver)
	}
	return nil
}

// LoadEnvFile loads environment variables from a .env file.
// If envFile is empty, it attempts to load .env from the current directory.
// Returns true if a file was loaded, false otherwise.
func LoadEnvFile(logger *slog.Logger, envFile string) bool {
	if envFile == "" {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		logger.Debug("No .env file found", "path", envFile)
		return false
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn("Failed to load .env file", "path", envFile, "err", err)
		return false
	}

	logger.Debug("Loaded .env file", "path", envFile)
	return true
}
