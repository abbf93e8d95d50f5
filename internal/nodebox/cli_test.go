package nodebox

import (
	"errors"
	"path/filepath"
	"testing"
)

func executeRoot(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvRunDir, t.TempDir())
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := executeRoot(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if err := executeRoot(t, "--config", path, "config", "init"); err == nil {
		t.Fatalf("expected config init to refuse an existing file")
	}
	if err := executeRoot(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}

	if err := executeRoot(t, "--config", path, "config", "set", "nexus.node-id", "31337"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	cfg, err := readConfigAt(path)
	if err != nil {
		t.Fatalf("readConfigAt: %v", err)
	}
	if cfg.Nexus.NodeID != "31337" {
		t.Fatalf("expected node id 31337, got %q", cfg.Nexus.NodeID)
	}

	if err := executeRoot(t, "--config", path, "config", "set", "bogus", "x"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestRootValidatesGlobalFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := executeRoot(t, "--config", path, "--log-level", "loud", "config", "path"); err == nil {
		t.Fatalf("expected invalid log level error")
	}
	if err := executeRoot(t, "--config", path, "--distro", "Bad Distro", "config", "path"); err == nil {
		t.Fatalf("expected invalid distro error")
	}
	if err := executeRoot(t, "--config", path, "-q", "config", "path"); err != nil {
		t.Fatalf("expected config path to succeed, got %v", err)
	}
}

func TestPreflightRejectsUnknownTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := executeRoot(t, "--config", path, "preflight", "--tool", "docker"); err == nil {
		t.Fatalf("expected invalid --tool error")
	}
}

func TestNexusFlagsPlacement(t *testing.T) {
	tests := []struct {
		flags   nexusFlags
		want    Placement
		wantErr bool
	}{
		{flags: nexusFlags{}, want: PlacementAuto},
		{flags: nexusFlags{Native: true}, want: PlacementNative},
		{flags: nexusFlags{Proot: true}, want: PlacementProot},
		{flags: nexusFlags{Native: true, Proot: true}, wantErr: true},
	}
	for _, tc := range tests {
		got, err := tc.flags.placement()
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("placement(%+v): expected %q err=%t, got %q err=%v", tc.flags, tc.want, tc.wantErr, got, err)
		}
	}
}

func TestResolveIdentifier(t *testing.T) {
	t.Run("flag beats env and config", func(t *testing.T) {
		t.Setenv(EnvNodeID, "from-env")
		got, err := resolveIdentifier("node id", "from-flag", EnvNodeID, "from-config")
		if err != nil || got != "from-flag" {
			t.Fatalf("expected from-flag, got %q err=%v", got, err)
		}
	})

	t.Run("env beats config", func(t *testing.T) {
		t.Setenv(EnvNodeID, " from-env ")
		got, err := resolveIdentifier("node id", "", EnvNodeID, "from-config")
		if err != nil || got != "from-env" {
			t.Fatalf("expected from-env, got %q err=%v", got, err)
		}
	})

	t.Run("config as last resort", func(t *testing.T) {
		t.Setenv(EnvNodeID, "")
		got, err := resolveIdentifier("node id", "", EnvNodeID, "from-config")
		if err != nil || got != "from-config" {
			t.Fatalf("expected from-config, got %q err=%v", got, err)
		}
	})

	t.Run("nothing and no terminal => ErrEmptyIdentifier", func(t *testing.T) {
		if isTTY() {
			t.Skip("stdin and stdout are a terminal")
		}
		t.Setenv(EnvNodeID, "")
		_, err := resolveIdentifier("node id", "", EnvNodeID, "")
		if !errors.Is(err, ErrEmptyIdentifier) {
			t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
		}
	})
}

func TestConfigInitForceRepairsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "distro = \n[[[\n")

	if err := executeRoot(t, "--config", path, "config", "show"); err == nil {
		t.Fatalf("expected a broken config to fail other commands")
	}
	if err := executeRoot(t, "--config", path, "config", "init"); err == nil {
		t.Fatalf("expected config init to refuse an existing file without --force")
	}
	if err := executeRoot(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("expected config init --force to replace a broken file, got %v", err)
	}
	cfg, err := readConfigAt(path)
	if err != nil {
		t.Fatalf("readConfigAt: %v", err)
	}
	if cfg.Distro != DefaultDistro {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
