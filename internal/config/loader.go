package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// GetConfigDir returns the dockbus home directory (~/.dockbus).
func GetConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dockbus")
}

// GetConfigPath returns the default config file path (~/.dockbus/config.json).
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// Load reads configuration from a JSON file, then applies environment overrides.
// If path is empty, uses the default config path.
// If the file doesn't exist, starts from DefaultConfig().
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return DefaultConfig(), err
		}
	case !os.IsNotExist(err):
		return Config{}, err
	}

	if err := ApplyEnv(&cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from DOCKBUS_* environment variables. Unset
// variables leave the field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes configuration to a JSON file.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvePanelsFile returns the panels.yaml path, relative paths taken
// against the directory holding configPath.
func ResolvePanelsFile(cfg Config, configPath string) string {
	p := cfg.PanelsFile
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if configPath == "" {
		configPath = GetConfigPath()
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
