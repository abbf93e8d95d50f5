package nodebox

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Tashi installs and manages the Tashi DePIN worker, a podman container
// inside the proot guest.
type Tashi struct {
	App *App
}

func (t *Tashi) podman() Podman {
	return Podman{Runner: t.App.Distro()}
}

// Preflight refuses to continue without pkg and warns about the rest.
func (t *Tashi) Preflight() error {
	logger := loggerOr(t.App.Logger)
	p := t.App.Platform
	if !p.Termux {
		logger.Warn("not running in Termux; this flow is written for Termux on Android, trying anyway")
	}
	logger.Info("detected architecture", "arch", p.Arch)
	if w := p.ArchWarning(); w != "" {
		logger.Warn(w)
	}
	if p.PackageManager == "" {
		return fmt.Errorf("'pkg' not found; use Termux: %w", ErrNotTermux)
	}
	return nil
}

var tashiHostPackages = []Requirement{
	{Package: "proot-distro", Required: true},
	{Package: "curl", Required: true},
	{Package: "wget", Required: true},
	{Package: "tar", Required: true},
	{Package: "ca-certificates", Required: true},
	{Package: "git", Required: true},
	{Package: "openssh", Command: "ssh", Required: true},
}

const tashiGuestPackages = "bash ca-certificates curl wget iproute2 uidmap slirp4netns fuse-overlayfs podman"

// Install runs the whole setup and then the vendor installer, which asks
// for the bonding token interactively.
func (t *Tashi) Install(ctx context.Context) error {
	logger := loggerOr(t.App.Logger)
	if err := t.Preflight(); err != nil {
		return err
	}

	logger.Info("step 1: Termux packages")
	pk := t.App.Packages()
	pk.Upgrade(ctx)
	if err := pk.Ensure(ctx, tashiHostPackages...); err != nil {
		return err
	}

	logger.Info("step 2: " + t.App.Config.Distro + " via proot-distro")
	d := t.App.Distro()
	if err := d.Install(ctx); err != nil {
		return err
	}

	logger.Info("step 3: rootless podman inside the guest")
	if _, err := d.Login(ctx, "apt-get update -y"); err != nil {
		return err
	}
	if _, err := d.Login(ctx, "DEBIAN_FRONTEND=noninteractive apt-get install -y "+tashiGuestPackages); err != nil {
		return err
	}
	pm := t.podman()
	if v, err := pm.Version(ctx); err != nil {
		logger.Warn("podman sanity check failed", "err", err)
	} else {
		logger.Info("podman ready", "version", v)
	}
	if !pm.Functional(ctx) {
		logger.Warn("podman info failed; rootless podman often does not work under proot")
	}

	logger.Info("step 4: Tashi installer (interactive)")
	if _, err := d.Login(ctx, t.installerScript()); err != nil {
		return fmt.Errorf("tashi installer: %w", err)
	}
	t.NextSteps(t.App.Out)
	return nil
}

// installerScript tries the primary URL and then the mirror, with curl when
// present and wget otherwise.
func (t *Tashi) installerScript() string {
	primary := mustQuote(t.App.Config.Tashi.InstallerURL)
	alt := mustQuote(t.App.Config.Tashi.InstallerURLAlt)
	return strings.Join([]string{
		"set -e",
		"if command -v curl >/dev/null 2>&1; then",
		"  curl -fsSL " + primary + " | bash -s - || curl -fsSL " + alt + " | bash -s -",
		"else",
		"  wget -qO- " + primary + " | bash -s - || wget -qO- " + alt + " | bash -s -",
		"fi",
	}, "\n")
}

func (t *Tashi) NextSteps(w io.Writer) {
	fmt.Fprintf(w, strings.TrimSpace(`
=== Next steps ===
- The installer prints a "bond worker" URL and asks for an authorization token.
  Open the URL in a browser with a Solana (devnet) wallet, finish bonding,
  then paste the token into the terminal.
- For full rewards UDP port %d must be reachable from the internet.
  Mobile/NAT connections usually block it; the worker still runs but may earn less.

Quick commands:
  nodebox tashi status      # container and image
  nodebox tashi logs -f     # follow worker logs
  nodebox tashi restart     # restart the worker
  nodebox tashi uninstall   # remove container + auth volume (reset bonding)

If podman does not work under proot, run the installer on a Linux x86-64 VPS or PC.
`)+"\n", TashiUDPPort)
}

func (t *Tashi) Status(ctx context.Context) error {
	pm := t.podman()
	name := t.App.Config.Tashi.Container
	rows, err := pm.PS(ctx, name)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintln(t.App.Out, r)
	}
	if !pm.ContainerExists(ctx, name) {
		fmt.Fprintf(t.App.Out, "container: %s (%s)\n", name, renderState("missing"))
		return nil
	}
	st, err := pm.Inspect(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.App.Out, "container: %s (%s)\n", st.Name, renderState(st.Status))
	fmt.Fprintf(t.App.Out, "image:     %s\n", st.Image)
	return nil
}

func (t *Tashi) Logs(ctx context.Context, follow bool) error {
	return t.podman().Logs(ctx, t.App.Config.Tashi.Container, follow)
}

func (t *Tashi) Restart(ctx context.Context) error {
	name := t.App.Config.Tashi.Container
	if err := t.podman().Restart(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(t.App.Out, "OK: restarted %q.\n", name)
	return nil
}

// Uninstall removes the worker, its leftover -old container and the auth
// volume so the device can be bonded to another wallet.
func (t *Tashi) Uninstall(ctx context.Context) error {
	logger := loggerOr(t.App.Logger)
	pm := t.podman()
	name := t.App.Config.Tashi.Container
	for _, c := range []string{name, name + "-old"} {
		if err := pm.Remove(ctx, c); err != nil {
			logger.Debug("remove container", "name", c, "err", err)
		}
	}
	if err := pm.RemoveVolume(ctx, t.App.Config.Tashi.AuthVolume); err != nil {
		logger.Debug("remove volume", "name", t.App.Config.Tashi.AuthVolume, "err", err)
	}
	fmt.Fprintln(t.App.Out, "OK: uninstalled. Run 'nodebox tashi install' to set it up again.")
	return nil
}
