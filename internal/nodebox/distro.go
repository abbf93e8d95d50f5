package nodebox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// Distro is a Linux distribution run through proot-distro. It implements
// Runner so the same probes and searches work inside the guest.
type Distro struct {
	Name   string
	Prefix string // Termux $PREFIX, used to find installed rootfs dirs
	Shell  *Shell
	// Preamble runs before every guest script, e.g. PATH exports.
	Preamble string
}

func NewDistro(name string, p Platform, sh *Shell) *Distro {
	return &Distro{Name: firstNonEmpty(name, DefaultDistro), Prefix: p.Prefix, Shell: sh}
}

// Available reports whether proot-distro itself is on PATH.
func (d *Distro) Available() bool {
	return d.Shell.Has("proot-distro")
}

func (d *Distro) rootfsDir() string {
	if d.Prefix == "" {
		return ""
	}
	return filepath.Join(d.Prefix, "var", "lib", "proot-distro", "installed-rootfs", d.Name)
}

// Installed reports whether the distro rootfs is present.
func (d *Distro) Installed(ctx context.Context) bool {
	if dir := d.rootfsDir(); dir != "" && fileExists(dir) {
		return true
	}
	if !d.Available() {
		return false
	}
	out, err := d.Shell.WithTimeout(30*time.Second).CaptureArgs(ctx, "proot-distro", "list")
	if err != nil {
		return false
	}
	return listShowsInstalled(out, d.Name)
}

// listShowsInstalled parses `proot-distro list`. Newer releases print blocks
// like "  Ubuntu (24.04)\n    Alias: ubuntu\n    Installed: yes".
func listShowsInstalled(out, name string) bool {
	inBlock := false
	for _, ln := range strings.Split(out, "\n") {
		t := strings.TrimSpace(ln)
		lower := strings.ToLower(t)
		switch {
		case t == "":
			inBlock = false
		case strings.HasPrefix(lower, "alias:"):
			inBlock = strings.TrimSpace(t[len("alias:"):]) == name
		case strings.Contains(t, "< "+name+" >"):
			inBlock = true
		case inBlock && strings.HasPrefix(lower, "installed:"):
			return strings.TrimSpace(lower[len("installed:"):]) == "yes"
		}
	}
	return false
}

// Install installs the distro unless it is already there.
func (d *Distro) Install(ctx context.Context) error {
	if !d.Available() {
		return ErrDistroUnavailable
	}
	if d.Installed(ctx) {
		return nil
	}
	_, err := d.Shell.RunArgs(ctx, "proot-distro", "install", d.Name)
	if err != nil && !d.Installed(ctx) {
		return fmt.Errorf("install %s with proot-distro: %w", d.Name, err)
	}
	return nil
}

// Argv is the host argv that runs script inside the guest with a login shell.
func (d *Distro) Argv(script string) []string {
	if p := strings.TrimSpace(d.Preamble); p != "" {
		script = p + "\n" + script
	}
	return []string{"proot-distro", "login", d.Name, "--", "bash", "-lc", script}
}

// WrapArgv rewrites a guest argv into the host argv that runs it there.
func (d *Distro) WrapArgv(argv []string) ([]string, error) {
	script, err := quoteArgv(argv)
	if err != nil {
		return nil, err
	}
	return d.Argv(script), nil
}

// Login runs script inside the guest, attached to the terminal.
func (d *Distro) Login(ctx context.Context, script string) (Result, error) {
	argv := d.Argv(script)
	return d.Shell.RunArgs(ctx, argv[0], argv[1:]...)
}

// WithPreamble returns a copy of d that runs preamble before each script.
func (d *Distro) WithPreamble(preamble string) *Distro {
	c := *d
	c.Preamble = preamble
	return &c
}

// LoginCapture runs script inside the guest and captures its output.
func (d *Distro) LoginCapture(ctx context.Context, script string) (string, error) {
	argv := d.Argv(script)
	return d.Shell.CaptureArgs(ctx, argv[0], argv[1:]...)
}

func (d *Distro) RunArgs(ctx context.Context, name string, args ...string) (Result, error) {
	script, err := quoteArgv(append([]string{name}, args...))
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	return d.Login(ctx, script)
}

func (d *Distro) CaptureArgs(ctx context.Context, name string, args ...string) (string, error) {
	script, err := quoteArgv(append([]string{name}, args...))
	if err != nil {
		return "", err
	}
	return d.LoginCapture(ctx, script)
}

// quoteArgv renders argv as a single bash command line.
func quoteArgv(argv []string) (string, error) {
	parts := make([]string, 0, len(argv))
	for _, a := range argv {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", a, err)
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " "), nil
}
