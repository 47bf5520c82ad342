// Package config handles sourcegen.toml generator configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/lower"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "sourcegen.toml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a sourcegen.toml file.
type Config struct {
	ClassFile ClassFileConfig `toml:"classfile"`
	Lowering  LoweringConfig  `toml:"lowering"`
	Output    OutputConfig    `toml:"output"`
	Log       LogConfig       `toml:"log"`

	// Dir is the directory containing the sourcegen.toml file (set at load time).
	Dir string `toml:"-"`
}

// ClassFileConfig selects the class-file format version.
type ClassFileConfig struct {
	Major      uint16 `toml:"major"`
	SourceFile bool   `toml:"source-file"`
}

// LoweringConfig tunes code selection.
type LoweringConfig struct {
	SwitchDensity float64 `toml:"switch-density"`
}

// OutputConfig configures where and how artifacts are written.
type OutputConfig struct {
	Dir     string `toml:"dir"`
	Workers int    `toml:"workers"`
	Index   string `toml:"index"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present. Load
// starts from it, so keys a file leaves out keep these values.
func Default() *Config {
	return &Config{
		ClassFile: ClassFileConfig{Major: classfile.V17},
		Lowering:  LoweringConfig{SwitchDensity: lower.DefaultSwitchDensity},
		Output:    OutputConfig{Dir: filepath.Join("build", "classes"), Workers: 4},
		Log:       LogConfig{Verbosity: 1},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.ClassFile.Major < 50 || c.ClassFile.Major > 69 {
		errs = append(errs, fmt.Errorf("%w: classfile.major %d outside 50..69", ErrInvalid, c.ClassFile.Major))
	}
	if d := c.Lowering.SwitchDensity; d <= 0 || d > 1 {
		errs = append(errs, fmt.Errorf("%w: lowering.switch-density %g outside (0, 1]", ErrInvalid, d))
	}
	if c.Output.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: output.workers must be positive", ErrInvalid))
	}
	if c.Log.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("%w: log.verbosity must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// Load parses a sourcegen.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return parse(dir, path, data)
}

func parse(dir, path string, data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s in %s", ErrInvalid, undecoded[0], path)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a sourcegen.toml file, then
// loads it. Returns the default configuration if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// OutputDir returns the output directory, resolved against the
// configuration directory.
func (c *Config) OutputDir() string { return c.resolve(c.Output.Dir) }

// IndexPath returns the artifact index path, or "" when indexing is off.
func (c *Config) IndexPath() string {
	if c.Output.Index == "" {
		return ""
	}
	return c.resolve(c.Output.Index)
}

// LogFile returns the log file path, or nil to log to stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	path := c.resolve(c.Log.File)
	return &path
}

// LoweringOptions returns the options passed to the lowering engine.
func (c *Config) LoweringOptions() lower.Options {
	return lower.Options{SwitchDensity: c.Lowering.SwitchDensity}
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}
