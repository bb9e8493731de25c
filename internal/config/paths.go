package config

import (
	"os"
	"path/filepath"
)

const appDir = "propmatch"

func dataHome() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return ""
		}
	}
	return dir
}

func defaultDataDir() string {
	dir := dataHome()
	if dir == "" {
		return "propmatch-data"
	}
	return filepath.Join(dir, appDir)
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, appDir, "config.toml")
}

func secretsFilePath() string {
	dir := dataHome()
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, appDir, "secrets.json")
}
