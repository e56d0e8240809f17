// Package config loads fasmgen.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "fasmgen.toml"

// Config is the contents of fasmgen.toml.
type Config struct {
	Build Build `toml:"build"`
	Log   Log   `toml:"log"`
}

// Build configures the build pipeline.
type Build struct {
	// Dir is where listings and executables are written.
	Dir string `toml:"dir"`

	// Fasm is the assembler binary, looked up on PATH if not a path.
	Fasm string `toml:"fasm"`

	// AsmOnly stops after writing the listing.
	AsmOnly bool `toml:"asm_only"`

	// Jobs bounds the number of files built at once.
	Jobs int `toml:"jobs"`
}

// Log configures logging.
type Log struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Build: Build{
			Dir:  "build",
			Fasm: "fasm",
			Jobs: 4,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the configuration at path. A missing file yields the
// defaults; keys absent from the file keep their default values and
// unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the TOML decoder cannot.
func (c *Config) Validate() error {
	if c.Build.Jobs < 1 {
		return fmt.Errorf("build.jobs must be at least 1, got %d", c.Build.Jobs)
	}
	if c.Build.Dir == "" {
		return errors.New("build.dir must not be empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses the configured log level.
func (c *Config) Level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
