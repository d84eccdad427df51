package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Gateway  struct {
		BaseURL        string `json:"base_url"`
		APIKey         string `json:"api_key"`
		Integration    string `json:"integration"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"gateway"`
	Sync struct {
		StorageRoot string `json:"storage_root"`
		StateDir    string `json:"state_dir"`
		WindowHours int    `json:"window_hours"`
		MaxParsers  int    `json:"max_parsers"`
	} `json:"sync"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".hookrelay"),
		LogLevel: "info",
	}
	cfg.Gateway.BaseURL = "https://api.getunbound.ai"
	cfg.Gateway.Integration = "cursor"
	cfg.Gateway.TimeoutSeconds = 30
	cfg.Sync.WindowHours = 24
	cfg.Sync.MaxParsers = 4

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("HOOKRELAY_API_KEY"); apiKey != "" {
		cfg.Gateway.APIKey = apiKey
	}
	if baseURL := os.Getenv("HOOKRELAY_GATEWAY_URL"); baseURL != "" {
		cfg.Gateway.BaseURL = baseURL
	}
	if dataDir := os.Getenv("HOOKRELAY_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if window := os.Getenv("HOOKRELAY_WINDOW_HOURS"); window != "" {
		if n, err := strconv.Atoi(window); err == nil && n > 0 {
			cfg.Sync.WindowHours = n
		}
	}

	if cfg.Sync.StateDir == "" {
		cfg.Sync.StateDir = cfg.DataDir
	}

	return cfg, nil
}

// Save atomically writes the config to path, creating the parent
// directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts the config to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the config as a flat dot-keyed map, optionally
// masking secret values for display.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config at path and returns the value at the
// dot-separated key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates one dot-separated key in the config file. The raw
// value is interpreted as JSON when possible, otherwise as a string.
func SetValue(path, key, raw string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	flat := Flatten(m)
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	flat[key] = value
	nested := Unflatten(flat)

	out, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out = append(out, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
