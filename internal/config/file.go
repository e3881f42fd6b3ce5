package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values; unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}
