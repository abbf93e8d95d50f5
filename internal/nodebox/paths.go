package nodebox

import (
	"os"
	"path/filepath"
	"strings"
)

func expandUser(p string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return expandUser("~")
}

// configDir is $XDG_CONFIG_HOME/nodebox, falling back to ~/.config/nodebox.
func configDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(expandUser(xdg), AppName)
	}
	return filepath.Join(homeDir(), ".config", AppName)
}

// defaultConfigPath honours NODEBOX_CONFIG before the XDG location.
func defaultConfigPath() string {
	if env := strings.TrimSpace(os.Getenv(EnvConfig)); env != "" {
		return absPath(env)
	}
	return filepath.Join(configDir(), "config.toml")
}

// defaultRunDir is $XDG_STATE_HOME/nodebox/run, falling back to
// ~/.local/state/nodebox/run.
func defaultRunDir() string {
	if env := strings.TrimSpace(os.Getenv(EnvRunDir)); env != "" {
		return absPath(env)
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(expandUser(xdg), AppName, "run")
	}
	return filepath.Join(homeDir(), ".local", "state", AppName, "run")
}

func absPath(p string) string {
	p = expandUser(strings.TrimSpace(p))
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
