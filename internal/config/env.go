package config

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads KEY=value lines from path into the environment. Variables
// already set in the environment win over the file. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
