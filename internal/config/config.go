package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// LaunchConfigFileName is the launch configuration written by the front-end,
	// looked up relative to the working directory.
	LaunchConfigFileName = "app.conf.json"

	// SDWebUIDirFlag is the sidecar flag carrying the configured directory.
	SDWebUIDirFlag = "--sd_webui_dir"
)

// LaunchConfig holds the optional settings that shape the sidecar launch
type LaunchConfig struct {
	SDWebUIDir string `json:"sdwebui_dir" yaml:"sdwebui_dir"`
}

const sdWebUIDirKey = "sdwebui_dir"

// SidecarArgs returns the extra launch arguments derived from the config.
// An empty directory contributes nothing.
func (c LaunchConfig) SidecarArgs() []string {
	if c.SDWebUIDir == "" {
		return nil
	}
	return []string{SDWebUIDirFlag, c.SDWebUIDir}
}

// LoadLaunchConfig reads the launch config at path. Any read or parse failure
// yields the zero value; a malformed file is discarded as a whole.
func LoadLaunchConfig(path string) LaunchConfig {
	cfg, err := ReadLaunchConfig(path)
	if err != nil {
		return LaunchConfig{}
	}
	return cfg
}

// ReadLaunchConfig is LoadLaunchConfig with the failure reported, for callers
// that want to log why the defaults were used.
func ReadLaunchConfig(path string) (LaunchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LaunchConfig{}, fmt.Errorf("failed to read launch config: %w", err)
	}

	// Keys match exactly: "SDWEBUI_DIR" is an unknown field, not the directory.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return LaunchConfig{}, fmt.Errorf("failed to parse launch config: %w", err)
	}

	var cfg LaunchConfig
	if raw, ok := fields[sdWebUIDirKey]; ok {
		if err := json.Unmarshal(raw, &cfg.SDWebUIDir); err != nil {
			return LaunchConfig{}, fmt.Errorf("failed to parse launch config: %s: %w", sdWebUIDirKey, err)
		}
	}

	return cfg, nil
}

// SaveLaunchConfig writes cfg to path as indented JSON, creating the parent
// directory when needed.
func SaveLaunchConfig(path string, cfg LaunchConfig) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal launch config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create launch config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write launch config: %w", err)
	}

	return nil
}
