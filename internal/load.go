package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	pkgconfig "github.com/starford/lettamem/pkg/config"
)

// LettaEnvFile holds credentials shared with other Letta tooling.
const LettaEnvFile = "~/.letta/env"

// LoadEnv loads LettaEnvFile into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv() error {
	path := ExpandHome(LettaEnvFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads the YAML file at path over the built-in defaults. When
// optional is true a missing file yields the defaults instead of an error.
func LoadConfig(path string, optional bool) (*Config, error) {
	cfg := NewDefaultConfig()
	if optional {
		if _, err := pkgconfig.LoadOptional(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := pkgconfig.Load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
