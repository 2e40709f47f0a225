package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; values already in the environment win.
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the .env files that exist and returns their names.
func LoadEnvFiles() ([]string, error) {
	var loaded []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}
