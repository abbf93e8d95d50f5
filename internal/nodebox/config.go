package nodebox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

type NexusConfig struct {
	Binary       string `toml:"binary,omitempty"`
	InstallerURL string `toml:"installer-url,omitempty"`
	BinDir       string `toml:"bin-dir,omitempty"`
	NodeID       string `toml:"node-id,omitempty"`
	Wallet       string `toml:"wallet,omitempty"`
}

type TashiConfig struct {
	InstallerURL    string `toml:"installer-url,omitempty"`
	InstallerURLAlt string `toml:"installer-url-alt,omitempty"`
	Container       string `toml:"container,omitempty"`
	AuthVolume      string `toml:"auth-volume,omitempty"`
}

// AppConfig is the on-disk config.toml.
type AppConfig struct {
	Distro      string      `toml:"distro,omitempty"`
	RunDir      string      `toml:"run-dir,omitempty"`
	LogLevel    string      `toml:"log-level,omitempty"`
	StartGrace  string      `toml:"start-grace,omitempty"`
	StopTimeout string      `toml:"stop-timeout,omitempty"`
	Nexus       NexusConfig `toml:"nexus"`
	Tashi       TashiConfig `toml:"tashi"`
}

var distroNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

func defaultAppConfig() AppConfig {
	return AppConfig{
		Distro:      DefaultDistro,
		LogLevel:    "info",
		StartGrace:  DefaultStartGrace.String(),
		StopTimeout: DefaultStopTimeout.String(),
		Nexus: NexusConfig{
			Binary:       NexusBinary,
			InstallerURL: NexusInstallerURL,
			BinDir:       "~/.nexus/bin",
		},
		Tashi: TashiConfig{
			InstallerURL:    TashiInstallerURL,
			InstallerURLAlt: TashiInstallerURLAlt,
			Container:       TashiContainer,
			AuthVolume:      TashiAuthVolume,
		},
	}
}

// normalizeConfig fills every empty field from the defaults.
func normalizeConfig(cfg AppConfig) AppConfig {
	def := defaultAppConfig()
	cfg.Distro = firstNonEmpty(cfg.Distro, def.Distro)
	cfg.RunDir = strings.TrimSpace(cfg.RunDir)
	cfg.LogLevel = firstNonEmpty(cfg.LogLevel, def.LogLevel)
	cfg.StartGrace = firstNonEmpty(cfg.StartGrace, def.StartGrace)
	cfg.StopTimeout = firstNonEmpty(cfg.StopTimeout, def.StopTimeout)
	cfg.Nexus.Binary = firstNonEmpty(cfg.Nexus.Binary, def.Nexus.Binary)
	cfg.Nexus.InstallerURL = firstNonEmpty(cfg.Nexus.InstallerURL, def.Nexus.InstallerURL)
	cfg.Nexus.BinDir = firstNonEmpty(cfg.Nexus.BinDir, def.Nexus.BinDir)
	cfg.Nexus.NodeID = strings.TrimSpace(cfg.Nexus.NodeID)
	cfg.Nexus.Wallet = strings.TrimSpace(cfg.Nexus.Wallet)
	cfg.Tashi.InstallerURL = firstNonEmpty(cfg.Tashi.InstallerURL, def.Tashi.InstallerURL)
	cfg.Tashi.InstallerURLAlt = firstNonEmpty(cfg.Tashi.InstallerURLAlt, def.Tashi.InstallerURLAlt)
	cfg.Tashi.Container = firstNonEmpty(cfg.Tashi.Container, def.Tashi.Container)
	cfg.Tashi.AuthVolume = firstNonEmpty(cfg.Tashi.AuthVolume, def.Tashi.AuthVolume)
	return cfg
}

func validateConfig(cfg AppConfig) error {
	if !distroNameRE.MatchString(cfg.Distro) {
		return fmt.Errorf("invalid distro %q: must match %s", cfg.Distro, distroNameRE.String())
	}
	if _, err := log.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log-level %q", cfg.LogLevel)
	}
	for key, v := range map[string]string{"start-grace": cfg.StartGrace, "stop-timeout": cfg.StopTimeout} {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid %s %q: must be a positive duration like 5s", key, v)
		}
	}
	return nil
}

func (c AppConfig) startGrace() time.Duration {
	d, err := time.ParseDuration(c.StartGrace)
	return ternary(err == nil && d > 0, d, DefaultStartGrace)
}

func (c AppConfig) stopTimeout() time.Duration {
	d, err := time.ParseDuration(c.StopTimeout)
	return ternary(err == nil && d > 0, d, DefaultStopTimeout)
}

// readConfigAt decodes path. A missing file wraps ErrConfigNotFound.
func readConfigAt(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
		}
		return AppConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg AppConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg = normalizeConfig(cfg)
	if err := validateConfig(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// loadConfig reads path, falling back to defaults when it does not exist.
func loadConfig(path string) (AppConfig, error) {
	cfg, err := readConfigAt(path)
	if errors.Is(err, ErrConfigNotFound) {
		return defaultAppConfig(), nil
	}
	return cfg, err
}

func writeConfigAt(path string, cfg AppConfig, force bool) error {
	cfg = normalizeConfig(cfg)
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if !force && fileExists(path) {
		return fmt.Errorf("refusing to overwrite existing file: %s (use --force)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config TOML: %w", err)
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	// Node ids and wallets live here.
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// configSetters maps `config set` keys to fields.
var configSetters = map[string]func(*AppConfig, string){
	"distro":                  func(c *AppConfig, v string) { c.Distro = v },
	"run-dir":                 func(c *AppConfig, v string) { c.RunDir = v },
	"log-level":               func(c *AppConfig, v string) { c.LogLevel = v },
	"start-grace":             func(c *AppConfig, v string) { c.StartGrace = v },
	"stop-timeout":            func(c *AppConfig, v string) { c.StopTimeout = v },
	"nexus.binary":            func(c *AppConfig, v string) { c.Nexus.Binary = v },
	"nexus.installer-url":     func(c *AppConfig, v string) { c.Nexus.InstallerURL = v },
	"nexus.bin-dir":           func(c *AppConfig, v string) { c.Nexus.BinDir = v },
	"nexus.node-id":           func(c *AppConfig, v string) { c.Nexus.NodeID = v },
	"nexus.wallet":            func(c *AppConfig, v string) { c.Nexus.Wallet = v },
	"tashi.installer-url":     func(c *AppConfig, v string) { c.Tashi.InstallerURL = v },
	"tashi.installer-url-alt": func(c *AppConfig, v string) { c.Tashi.InstallerURLAlt = v },
	"tashi.container":         func(c *AppConfig, v string) { c.Tashi.Container = v },
	"tashi.auth-volume":       func(c *AppConfig, v string) { c.Tashi.AuthVolume = v },
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setConfigKey(cfg *AppConfig, key, value string) error {
	set, ok := configSetters[strings.TrimSpace(key)]
	if !ok {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(configKeys(), ", "))
	}
	set(cfg, strings.TrimSpace(value))
	return validateConfig(normalizeConfig(*cfg))
}
