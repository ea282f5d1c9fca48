// Package config loads the .goextract.yaml settings of a workspace.
package config

import (
	"errors"
	"fmt"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/mamaar/goextract/internal/log"
	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
)

// FileName is looked up from the workspace root towards the filesystem
// root.
const FileName = ".goextract.yaml"

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	// BestEffort passes variables the classification table has no entry
	// for as plain inputs instead of failing.
	BestEffort   bool `yaml:"best_effort"`
	ContextFirst bool `yaml:"context_first"`

	DefaultFunctionName string `yaml:"default_function_name,omitempty"`
	DefaultMethodName   string `yaml:"default_method_name,omitempty"`

	// Hidden files are treated as generated: nothing is inserted into them.
	Hidden  []string `yaml:"hidden,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	CacheSize int `yaml:"cache_size,omitempty"`

	Log LogConfig `yaml:"log"`

	// Path of the file the settings came from, empty for defaults.
	Path string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Source bool   `yaml:"source,omitempty"`
}

func Default() *Config {
	return &Config{
		BestEffort:   true,
		ContextFirst: true,
		CacheSize:    analysis.DefaultCacheSize,
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatText),
		},
	}
}

// Find returns the nearest .goextract.yaml at or above dir, or "".
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadFor loads the settings that apply to the workspace at dir, falling
// back to the defaults when there is no settings file.
func LoadFor(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", FileName, err)
	}
	return Load(path)
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.Path = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	for _, name := range []string{c.DefaultFunctionName, c.DefaultMethodName} {
		if name != "" && !token.IsIdentifier(name) {
			errs = append(errs, fmt.Errorf("%q is not a valid identifier", name))
		}
	}
	for _, glob := range append(c.Hidden, c.Exclude...) {
		if !doublestar.ValidatePattern(glob) {
			errs = append(errs, fmt.Errorf("invalid glob %q", glob))
		}
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Engine returns the engine settings.
func (c *Config) Engine() *refactor.EngineConfig {
	cfg := refactor.DefaultConfig()
	cfg.BestEffort = c.BestEffort
	cfg.ContextFirst = c.ContextFirst
	cfg.DefaultFunctionName = c.DefaultFunctionName
	cfg.DefaultMethodName = c.DefaultMethodName
	cfg.Hidden = c.Hidden
	cfg.Exclude = c.Exclude
	if c.CacheSize > 0 {
		cfg.CacheSize = c.CacheSize
	}
	return cfg
}

// Logging returns the logger settings; format and level are validated by
// Load.
func (c *Config) Logging() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format, _ = log.ParseFormat(c.Log.Format)
	cfg.AddSource = c.Log.Source
	return cfg
}
