package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Environment variables that override the YAML configuration
const (
	EnvProxy     = "CATALOG_PROXY"
	EnvUserAgent = "CATALOG_USER_AGENT"
	EnvLogLevel  = "CATALOG_LOG_LEVEL"
)

// Load reads the YAML file at path on top of DefaultAppConfig, applies environment
// overrides and validates the result. A missing file is only an error when required is set.
func Load(path string, required bool) (*AppConfig, []string, error) {
	cfg := DefaultAppConfig()
	var warnings []string

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, nil, fmt.Errorf("%w: parsing %s: %v", utils.ErrConfigValidation, path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
		warnings = append(warnings, fmt.Sprintf("config file %s not found, using built-in defaults", path))
	default:
		return nil, nil, fmt.Errorf("%w: reading %s: %v", utils.ErrConfigValidation, path, err)
	}

	cfg.ApplyEnv()

	validateWarnings, err := cfg.Validate()
	warnings = append(warnings, validateWarnings...)
	if err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides proxy, user agent and log level from the environment
func (c *AppConfig) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvProxy)); v != "" {
		c.ProxyAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUserAgent)); v != "" {
		c.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}
