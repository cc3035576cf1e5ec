package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a YAML or JSON config/backend file into an *Options,
// dispatching on the file extension. Both formats decode into the same
// struct shape, since Options carries matching yaml and json tags.
func ParseFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	opts := &Options{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("failed to parse json config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension for %s", path)
	}
	return opts, nil
}

// ParseJSONFragment parses a `--json` command-line fragment (a JSON object,
// not a file) into an *Options overlay.
func ParseJSONFragment(fragment string) (*Options, error) {
	opts := &Options{}
	if err := json.Unmarshal([]byte(fragment), opts); err != nil {
		return nil, fmt.Errorf("failed to parse --json fragment: %w", err)
	}
	return opts, nil
}

// ParseBackendFile parses a single backend definition file (one
// BackendConfig per file, named after the file's basename without
// extension) from the backends directory.
func ParseBackendFile(path string) (string, *BackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read backend file %s: %w", path, err)
	}

	cfg := &BackendConfig{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return "", nil, fmt.Errorf("failed to parse backend file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", nil, fmt.Errorf("failed to parse backend file %s: %w", path, err)
		}
	default:
		return "", nil, fmt.Errorf("unsupported backend file extension for %s", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), ext)
	return name, cfg, nil
}
