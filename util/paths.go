package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppConfigDir = ".config/quill"
	// ConfigDirEnv moves the config directory, e.g. onto a container volume.
	ConfigDirEnv = "QUILL_CONFIG_DIR"
)

// GetConfigDir returns the directory holding config, database and host key,
// creating it when missing. QUILL_CONFIG_DIR wins over ~/.config/quill.
func GetConfigDir() (string, error) {
	configDir := os.Getenv(ConfigDirEnv)
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, AppConfigDir)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return configDir, nil
}

// ResolveFilePath prefers an existing file in the working directory and
// otherwise points into the config directory, existing or not.
func ResolveFilePath(filename string) string {
	return resolveInConfigDir(filename)
}

// ResolveFilePathWithSubdir is ResolveFilePath for subdir/filename. The
// subdirectory is created in the config directory so the file can be written.
func ResolveFilePathWithSubdir(subdir, filename string) string {
	return resolveInConfigDir(filepath.Join(subdir, filename))
}

func resolveInConfigDir(rel string) string {
	if _, err := os.Stat(rel); err == nil {
		return rel
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return rel
	}
	path := filepath.Join(configDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return rel
	}
	return path
}
