package helper

import (
	"os"
	"path/filepath"
)

// DefaultConfigDir is the last place a relative config file name is looked up
const DefaultConfigDir = "/etc/redsess"

// GetCfgPath returns the path to the configuration file.
//
// Lookup order: an absolute filename is returned as is, then ./{filename},
// then ./configs/{filename}, and finally DefaultConfigDir/{filename}.
func GetCfgPath(filename string) string {
	if filename == "" {
		panic("filename cannot be empty")
	}

	if filepath.IsAbs(filename) {
		return filename
	}

	for _, dir := range []string{".", "configs"} {
		if p := existingAbs(filepath.Join(dir, filename)); p != "" {
			return p
		}
	}

	return filepath.Join(DefaultConfigDir, filename)
}

func existingAbs(candidate string) string {
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	absPath, err := filepath.Abs(candidate)
	if err != nil {
		return ""
	}
	return absPath
}
