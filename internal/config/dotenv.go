package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// maxAncestorDotenvDepth bounds how far up the directory tree LoadDotenv
// searches for a .env file, per spec §6.
const maxAncestorDotenvDepth = 3

// LoadDotenv discovers a .env file in the working directory or up to
// maxAncestorDotenvDepth parent directories and loads the first one found.
// It uses godotenv.Load rather than Overload: system environment variables
// always win over file values, per spec §6's override rule.
func LoadDotenv() {
	dir, err := filepath.Abs(".")
	if err != nil {
		return
	}
	for i := 0; i <= maxAncestorDotenvDepth; i++ {
		candidate := filepath.Join(dir, ".env")
		if _, statErr := os.Stat(candidate); statErr == nil {
			_ = godotenv.Load(candidate)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
