// Package manifest handles echo.toml machine configuration and TOML program
// descriptions.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "echo.toml"

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Resolver modes.
const (
	ResolverUnknown = "unknown"
	ResolverZero    = "zero"
)

// Invoker modes.
const (
	InvokerStepIn        = "step-in"
	InvokerReturnUnknown = "return-unknown"
	InvokerReturnDefault = "return-default"
)

// Config represents an echo.toml configuration.
type Config struct {
	Machine  Machine  `toml:"machine"`
	Resolver Resolver `toml:"resolver"`
	Invoker  Invoker  `toml:"invoker"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the echo.toml file (set at load time).
	Dir string `toml:"-"`
}

// Machine configures the emulated address space and the driver loop.
type Machine struct {
	PointerSize     int  `toml:"pointer-size"`
	StackSize       int  `toml:"stack-size"`
	HeapSize        int  `toml:"heap-size"`
	MaxInstructions int  `toml:"max-instructions"`
	Trace           bool `toml:"trace"`
}

// Resolver selects the policy for undetermined values.
type Resolver struct {
	Mode string `toml:"mode"`
}

// Invoker selects what happens at call sites.
type Invoker struct {
	Mode string `toml:"mode"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Default returns the configuration used when no echo.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Machine.PointerSize == 0 {
		c.Machine.PointerSize = 8
	}
	if c.Machine.StackSize == 0 {
		c.Machine.StackSize = 1 << 20
	}
	if c.Machine.HeapSize == 0 {
		c.Machine.HeapSize = 64 << 20
	}
	if c.Machine.MaxInstructions == 0 {
		c.Machine.MaxInstructions = 1_000_000
	}
	if c.Resolver.Mode == "" {
		c.Resolver.Mode = ResolverUnknown
	}
	if c.Invoker.Mode == "" {
		c.Invoker.Mode = InvokerStepIn
	}
	if c.Log.Verbosity == 0 {
		c.Log.Verbosity = 1
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Machine.PointerSize != 4 && c.Machine.PointerSize != 8 {
		return fmt.Errorf("%w: pointer-size must be 4 or 8, got %d", ErrInvalidConfig, c.Machine.PointerSize)
	}
	if c.Machine.StackSize <= 0 || c.Machine.HeapSize <= 0 {
		return fmt.Errorf("%w: stack-size and heap-size must be positive", ErrInvalidConfig)
	}
	if c.Machine.MaxInstructions < 0 {
		return fmt.Errorf("%w: max-instructions must not be negative", ErrInvalidConfig)
	}
	switch c.Resolver.Mode {
	case ResolverUnknown, ResolverZero:
	default:
		return fmt.Errorf("%w: unknown resolver mode %q", ErrInvalidConfig, c.Resolver.Mode)
	}
	switch c.Invoker.Mode {
	case InvokerStepIn, InvokerReturnUnknown, InvokerReturnDefault:
	default:
		return fmt.Errorf("%w: unknown invoker mode %q", ErrInvalidConfig, c.Invoker.Mode)
	}
	return nil
}

// Load parses an echo.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// LoadFile parses a configuration file at an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir = filepath.Dir(path)
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find an echo.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// LogPath returns the configured log file path relative to the config
// directory, or nil to log to stderr.
func (c *Config) LogPath() *string {
	if c.Log.Path == "" {
		return nil
	}
	p := c.Log.Path
	if !filepath.IsAbs(p) && c.Dir != "" {
		p = filepath.Join(c.Dir, p)
	}
	return &p
}
