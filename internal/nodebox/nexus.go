package nodebox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// Placement picks where the Nexus CLI runs.
type Placement string

const (
	PlacementAuto   Placement = "auto"
	PlacementNative Placement = "native"
	PlacementProot  Placement = "proot"
)

type StartOptions struct {
	Placement Placement
	Detach    bool
}

// Nexus installs and runs the nexus-network CLI, natively or inside the
// proot guest.
type Nexus struct {
	App *App
}

func (n *Nexus) binary() string { return n.App.Config.Nexus.Binary }

func (n *Nexus) binDir() string { return absPath(n.App.Config.Nexus.BinDir) }

// shell is the host shell with the vendor bin dir on PATH.
func (n *Nexus) shell() *Shell {
	return n.App.Shell.WithEnv("PATH=" + prependPath(n.binDir(), os.Getenv("PATH")))
}

// guest is the proot distro with the vendor bin dir on PATH.
func (n *Nexus) guest() *Distro {
	return n.App.Distro().WithPreamble(`export PATH="$HOME/.nexus/bin:$HOME/.local/bin:$PATH"`)
}

// ProbeCLI checks the native CLI: on PATH or under the vendor bin dir.
func (n *Nexus) ProbeCLI(ctx context.Context) Usability {
	return ProbeNative(ctx, n.shell(), n.binary(), filepath.Join(n.binDir(), n.binary()))
}

// NetworkReachable checks that the installer host answers.
func (n *Nexus) NetworkReachable(ctx context.Context) bool {
	return n.App.Shell.WithTimeout(20*time.Second).Succeeds(ctx, "curl -sSfI "+mustQuote(n.App.Config.Nexus.InstallerURL))
}

// InstallCLI installs the CLI on Termux with the vendor installer unless a
// usable one is already there.
func (n *Nexus) InstallCLI(ctx context.Context) (bool, error) {
	logger := loggerOr(n.App.Logger)
	if !n.App.Platform.Termux {
		return false, ErrNotTermux
	}
	if u := n.ProbeCLI(ctx); u.Runnable {
		logger.Info("Nexus CLI already available, skipping install", "path", u.Path)
		return true, nil
	}
	if err := n.App.Packages().Ensure(ctx, Required("curl")); err != nil {
		return false, err
	}
	url := n.App.Config.Nexus.InstallerURL
	if !n.NetworkReachable(ctx) {
		return false, fmt.Errorf("cannot reach %s; check the connection", url)
	}
	if _, err := n.App.Shell.Run(ctx, "curl -fsSL "+mustQuote(url)+" | sh"); err != nil {
		return false, fmt.Errorf("run Nexus installer: %w", err)
	}
	if _, err := EnsurePathEntry(n.App.Home, n.binDir()); err != nil {
		logger.Warn("could not update shell rc files", "err", err)
	}
	u := n.ProbeCLI(ctx)
	if !u.Runnable {
		return false, fmt.Errorf("after install: %s: %w", firstNonEmpty(u.Reason, "not detected"), ErrCLIUnavailable)
	}
	logger.Info("Nexus CLI installed", "path", u.Path)
	return true, nil
}

// EnsureDistroTool makes proot-distro available for the fallback path.
func (n *Nexus) EnsureDistroTool(ctx context.Context) bool {
	if !n.App.Platform.Termux {
		return false
	}
	d := n.App.Distro()
	if d.Available() {
		return true
	}
	_ = n.App.Packages().Ensure(ctx, Optional("proot-distro"))
	return d.Available()
}

// Preflight installs what it can and returns the status record.
func (n *Nexus) Preflight(ctx context.Context) Status {
	logger := loggerOr(n.App.Logger)
	st := Status{Termux: n.App.Platform.Termux}
	if st.Termux {
		ok, err := n.InstallCLI(ctx)
		if err != nil {
			logger.Warn("native Nexus CLI not ready", "err", err)
		}
		st.CLIReady = ok
		st.ProotReady = n.EnsureDistroTool(ctx)
	} else {
		st.CLIReady = n.ProbeCLI(ctx).Runnable
	}
	logger.Info("preflight", "termux", st.Termux, "cli_ready", st.CLIReady, "proot_ready", st.ProotReady)
	return st
}

// Start runs the node. Auto placement prefers the native CLI and falls back
// to the proot guest when the native binary cannot run.
func (n *Nexus) Start(ctx context.Context, id string, st Status, opts StartOptions) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("node id: %w", ErrEmptyIdentifier)
	}
	logger := loggerOr(n.App.Logger)
	placement := orDefault(opts.Placement, PlacementAuto)
	if opts.Detach {
		if _, err := n.App.Supervisor(NexusWorkerName).checkNotRunning(); err != nil {
			return err
		}
	}

	if placement != PlacementProot {
		if st.CLIReady || placement == PlacementNative {
			err := n.startNative(ctx, id, opts.Detach)
			if err == nil || placement == PlacementNative || !errors.Is(err, ErrCLIUnavailable) {
				return err
			}
			logger.Warn("native Nexus CLI cannot run here, falling back to proot", "err", err)
		}
		if !st.ProotReady {
			return fmt.Errorf("nexus CLI is not usable natively and proot-distro is not ready; check the connection and Termux permissions: %w", ErrCLIUnavailable)
		}
		logger.Info("Nexus CLI not usable natively, running inside " + n.App.Config.Distro + " (proot-distro)")
	}
	return n.startInDistro(ctx, id, opts.Detach)
}

func (n *Nexus) startNative(ctx context.Context, id string, detach bool) error {
	u := n.ProbeCLI(ctx)
	if !u.Runnable {
		return fmt.Errorf("%s: %w", firstNonEmpty(u.Reason, "not found"), ErrCLIUnavailable)
	}
	sh := n.shell()
	help, _ := sh.WithTimeout(20*time.Second).CaptureArgs(ctx, u.Path, "start", "--help")
	spellings := Reorder(NexusStartSpellings, help+"\n"+u.Help)

	try := RunnerAttempt(sh)
	if detach {
		sup := n.App.Supervisor(NexusWorkerName)
		sup.Env = []string{"PATH=" + prependPath(n.binDir(), os.Getenv("PATH"))}
		try = supervisorAttempt(sup, nil)
	}
	return n.report(true)(Search(ctx, u.Path, id, spellings, try))
}

// PrepareDistro installs the guest and the CLI inside it.
func (n *Nexus) PrepareDistro(ctx context.Context) (*Distro, error) {
	d := n.guest()
	if err := d.Install(ctx); err != nil {
		return nil, err
	}
	url := mustQuote(n.App.Config.Nexus.InstallerURL)
	bin := mustQuote(n.binary())
	script := "command -v " + bin + " >/dev/null 2>&1 || { apt-get update -y && apt-get install -y curl && curl -fsSL " + url + " | sh; }"
	if _, err := d.Login(ctx, script); err != nil {
		return nil, fmt.Errorf("install Nexus CLI inside %s: %w", d.Name, err)
	}
	return d, nil
}

func (n *Nexus) startInDistro(ctx context.Context, id string, detach bool) error {
	d, err := n.PrepareDistro(ctx)
	if err != nil {
		return err
	}
	u := ProbeBinary(ctx, d, n.binary())
	if !u.Runnable {
		return fmt.Errorf("inside %s: %s: %w", d.Name, firstNonEmpty(u.Reason, "not found"), ErrCLIUnavailable)
	}
	help, _ := d.CaptureArgs(ctx, n.binary(), "start", "--help")
	spellings := Reorder(NexusStartSpellings, help+"\n"+u.Help)

	try := RunnerAttempt(d)
	if detach {
		try = supervisorAttempt(n.App.Supervisor(NexusWorkerName), d.WrapArgv)
	}
	return n.report(true)(Search(ctx, n.binary(), id, spellings, try))
}

// Register links a wallet address with the vendor CLI.
func (n *Nexus) Register(ctx context.Context, wallet string, st Status) error {
	if strings.TrimSpace(wallet) == "" {
		return fmt.Errorf("wallet: %w", ErrEmptyIdentifier)
	}
	r, bin, err := n.runner(ctx, st)
	if err != nil {
		return err
	}
	help, _ := r.CaptureArgs(ctx, bin, "--help")
	return n.report(true)(Search(ctx, bin, wallet, Reorder(NexusRegisterSpellings, help), RunnerAttempt(r)))
}

// Login runs the vendor's interactive login.
func (n *Nexus) Login(ctx context.Context, st Status) error {
	r, bin, err := n.runner(ctx, st)
	if err != nil {
		return err
	}
	help, _ := r.CaptureArgs(ctx, bin, "--help")
	return n.report(false)(Search(ctx, bin, "", Reorder(NexusLoginSpellings, help), RunnerAttempt(r)))
}

// runner returns wherever the CLI is usable: host first, then the guest.
func (n *Nexus) runner(ctx context.Context, st Status) (Runner, string, error) {
	if u := n.ProbeCLI(ctx); u.Runnable {
		return n.shell(), u.Path, nil
	}
	if !st.ProotReady {
		return nil, "", ErrCLIUnavailable
	}
	d, err := n.PrepareDistro(ctx)
	if err != nil {
		return nil, "", err
	}
	return d, n.binary(), nil
}

// report logs the attempts of a search and prints the outcome. With guide
// set, output that asks for authentication adds login guidance.
func (n *Nexus) report(guide bool) func(*SearchResult, error) error {
	return func(res *SearchResult, err error) error {
		logger := loggerOr(n.App.Logger)
		for _, a := range res.Attempts {
			logger.Debug("attempt", "spelling", a.Spelling.Name, "ok", a.Err == nil, "exit", exitCodeOf(a.Err))
		}
		if guide && res.AuthRequired {
			fmt.Fprintln(os.Stderr, authGuidance)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(n.App.Out, "OK: %s accepted %q\n", n.binary(), res.Winner.Name)
		return nil
	}
}

const authGuidance = `Note: the Nexus CLI asked for authentication.

Link this device first, then start again:
  nodebox nexus register --wallet <address>
  nodebox nexus login
  nodebox nexus start --node-id <id>`

// supervisorAttempt launches each candidate detached. wrap may rewrite argv,
// e.g. to run it inside the guest.
func supervisorAttempt(sup *Supervisor, wrap func([]string) ([]string, error)) AttemptFunc {
	return func(ctx context.Context, argv []string) (string, error) {
		if wrap != nil {
			var err error
			if argv, err = wrap(argv); err != nil {
				return "", err
			}
		}
		st, err := sup.Launch(ctx, argv)
		var out string
		if st.LogOffset > 0 {
			out = readFrom(sup.LogPath(), st.LogOffset)
		}
		if err == nil {
			loggerOr(sup.Logger).Info("worker detached", "state", st.State, "pid", st.PID, "log", st.LogPath)
		}
		return out, err
	}
}

func mustQuote(s string) string {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		// Only strings with NUL bytes fail to quote.
		return "''"
	}
	return q
}
