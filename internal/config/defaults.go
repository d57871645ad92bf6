package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - Linux:   $XDG_CONFIG_HOME/xtouchd/ or ~/.config/xtouchd/
//   - macOS:   ~/Library/Application Support/xtouchd/
//   - Windows: %APPDATA%\xtouchd\
func ConfigDir() string {
	if dir := os.Getenv("XTOUCHD_CONFIG_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(appData(), "xtouchd")
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "xtouchd")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "xtouchd")
		}
		return filepath.Join(homeDir(), ".config", "xtouchd")
	}
}

// DataDir returns the platform-specific data directory.
//
// Platform paths:
//   - Linux:   $XDG_DATA_HOME/xtouchd/ or ~/.local/share/xtouchd/
//   - macOS:   ~/Library/Application Support/xtouchd/
//   - Windows: %LOCALAPPDATA%\xtouchd\
func DataDir() string {
	if dir := os.Getenv("XTOUCHD_DATA_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "xtouchd")
		}
		return filepath.Join(appData(), "xtouchd")
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "xtouchd")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "xtouchd")
		}
		return filepath.Join(homeDir(), ".local", "share", "xtouchd")
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats returns the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the working directory, then the config directory,
// for config.<ext>. It returns "" when nothing is found.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func appData() string {
	if dir := os.Getenv("APPDATA"); dir != "" {
		return dir
	}
	return homeDir()
}
