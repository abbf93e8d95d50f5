package nodebox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Requirement names a package and the command that proves it is installed.
type Requirement struct {
	Package  string
	Command  string // defaults to Package
	Required bool
}

func Optional(pkg string) Requirement { return Requirement{Package: pkg} }

func Required(pkg string) Requirement { return Requirement{Package: pkg, Required: true} }

func (r Requirement) command() string {
	return firstNonEmpty(r.Command, r.Package)
}

// Packages installs Termux packages through pkg. Re-running is a no-op once
// every requirement is satisfied.
type Packages struct {
	Shell    *Shell
	Platform Platform
	Timeout  time.Duration

	updated bool
}

// Ensure makes sure every requirement is installed. It returns the first
// error for a required package; optional failures are only logged.
func (p *Packages) Ensure(ctx context.Context, reqs ...Requirement) error {
	logger := loggerOr(p.Shell.Logger)
	for _, r := range reqs {
		if strings.TrimSpace(r.Package) == "" {
			continue
		}
		if p.Shell.Has(r.command()) {
			logger.Debug("already available", "command", r.command())
			continue
		}
		if p.Platform.PackageManager == "" {
			err := fmt.Errorf("%s is missing and there is no package manager to install it: %w", r.Package, ErrNotTermux)
			if r.Required {
				return err
			}
			logger.Warn("skipping optional package", "package", r.Package, "err", err)
			continue
		}
		if p.Installed(ctx, r.Package) {
			logger.Debug("already installed", "package", r.Package)
			continue
		}
		if err := p.install(ctx, r.Package); err != nil {
			if r.Required {
				return fmt.Errorf("install required package %s: %w", r.Package, err)
			}
			logger.Warn("optional package failed to install", "package", r.Package, "err", err)
		}
	}
	return nil
}

// Installed reports whether dpkg knows pkg as installed.
func (p *Packages) Installed(ctx context.Context, pkg string) bool {
	sh := p.Shell.WithTimeout(orDefault(p.Timeout, 30*time.Second))
	out, err := sh.CaptureArgs(ctx, "dpkg", "-s", pkg)
	if err != nil {
		return false
	}
	// dpkg -s also exits 0 for packages left in config-files state.
	return !strings.Contains(out, "Status: deinstall")
}

func (p *Packages) install(ctx context.Context, pkg string) error {
	if !p.updated {
		p.updated = true
		// A failed index refresh still leaves a usable cache.
		_, _ = p.Shell.Run(ctx, "yes | pkg update -y")
	}
	_, err := p.Shell.RunArgs(ctx, "pkg", "install", "-y", pkg)
	return err
}

// Upgrade refreshes the index and upgrades every installed package.
func (p *Packages) Upgrade(ctx context.Context) {
	if p.Platform.PackageManager == "" {
		return
	}
	p.updated = true
	_, _ = p.Shell.Run(ctx, "yes | pkg update -y")
	_, _ = p.Shell.Run(ctx, "yes | pkg upgrade -y")
}
