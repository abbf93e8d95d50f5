package nodebox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	Quiet      bool
	RunDir     string
	Distro     string
}

// cliState is filled by the root PersistentPreRunE and read by subcommands.
type cliState struct {
	flags      GlobalFlags
	configPath string
	app        *App
}

func Main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:   AppName,
		Short: "Install and run DePIN node workers from Termux",
		Long: strings.TrimSpace(`
Install and run DePIN node workers from Termux (Android).

nodebox detects whether it runs inside Termux, installs the vendor CLI (or a
container runtime) when missing, and starts the worker natively. When the
native binary cannot run on Android (for example "bad system call"), it falls
back to an Ubuntu guest managed by proot-distro.

Workers:
  nodebox nexus start --node-id <id>   (or NODE_ID)
  nodebox tashi install

Detached runs keep a PID file and a log file under the run dir:
  $XDG_STATE_HOME/nodebox/run   (default ~/.local/state/nodebox/run)
`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&st.flags.ConfigPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/nodebox/config.toml, or set NODEBOX_CONFIG)")
	pf.StringVar(&st.flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (or set NODEBOX_LOG_LEVEL)")
	pf.BoolVarP(&st.flags.Quiet, "quiet", "q", false, "Only log warnings and errors")
	pf.StringVar(&st.flags.RunDir, "run-dir", "", "Directory for PID and log files (or set NODEBOX_RUN_DIR)")
	pf.StringVar(&st.flags.Distro, "distro", "", "proot-distro guest to use for the fallback (default: ubuntu)")

	root.AddCommand(newPreflightCmd(st))
	root.AddCommand(newNexusCmd(st))
	root.AddCommand(newTashiCmd(st))
	root.AddCommand(newConfigCmd(st))

	return root
}

func (st *cliState) resolveConfigPath() {
	st.configPath = defaultConfigPath()
	if strings.TrimSpace(st.flags.ConfigPath) != "" {
		st.configPath = absPath(st.flags.ConfigPath)
	}
}

func (st *cliState) init() error {
	st.resolveConfigPath()
	cfg, err := loadConfig(st.configPath)
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(st.flags.Distro); v != "" {
		cfg.Distro = v
	}
	if v := strings.TrimSpace(st.flags.RunDir); v != "" {
		cfg.RunDir = v
	}
	if err := validateConfig(normalizeConfig(cfg)); err != nil {
		return err
	}

	level := firstNonEmpty(st.flags.LogLevel, os.Getenv(EnvLogLevel), cfg.LogLevel)
	if st.flags.Quiet {
		level = "warn"
	}
	logger, err := newLogger(os.Stderr, level)
	if err != nil {
		return err
	}
	st.app = NewApp(cfg, logger)
	return nil
}

func newPreflightCmd(st *cliState) *cobra.Command {
	var tool string
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Detect the environment and install what is missing",
		Long: strings.TrimSpace(`
Detect the environment and install what is missing.

--tool nexus (default) installs curl, the Nexus CLI and proot-distro on Termux.
--tool none only reports the environment without installing anything.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := st.app
			p := app.Platform
			fmt.Fprintf(app.Out, "termux:      %s\n", renderBool(p.Termux))
			fmt.Fprintf(app.Out, "prefix:      %s\n", ternary(p.Prefix != "", p.Prefix, "-"))
			fmt.Fprintf(app.Out, "arch:        %s\n", p.Arch)
			fmt.Fprintf(app.Out, "run dir:     %s\n", app.RunDir)
			switch tool {
			case "none":
				n := &Nexus{App: app}
				u := n.ProbeCLI(cmd.Context())
				fmt.Fprintf(app.Out, "cli ready:   %s%s\n", renderBool(u.Runnable), ternary(u.Reason != "", " ("+u.Reason+")", ""))
				fmt.Fprintf(app.Out, "proot ready: %s\n", renderBool(app.Distro().Available()))
			case "nexus":
				status := (&Nexus{App: app}).Preflight(cmd.Context())
				fmt.Fprintf(app.Out, "cli ready:   %s\n", renderBool(status.CLIReady))
				fmt.Fprintf(app.Out, "proot ready: %s\n", renderBool(status.ProotReady))
			default:
				return fmt.Errorf("invalid --tool %q: must be nexus or none", tool)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "nexus", "What to prepare: nexus or none")
	return cmd
}

// resolveIdentifier applies flag > env > config > prompt. The prompt only
// appears on a TTY.
func resolveIdentifier(label, flagVal, envKey, cfgVal string) (string, error) {
	if v := firstNonEmpty(flagVal, os.Getenv(envKey), cfgVal); v != "" {
		return v, nil
	}
	if !isTTY() {
		return "", fmt.Errorf("%s: %w (pass it as a flag or set %s)", label, ErrEmptyIdentifier, envKey)
	}
	v, err := promptLine(bufio.NewReader(os.Stdin), "Enter your "+label+": ")
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if v == "" {
		return "", fmt.Errorf("%s: %w", label, ErrEmptyIdentifier)
	}
	return v, nil
}

func newConfigCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage nodebox configuration",
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(st.app.Out, st.configPath)
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		// The existing file is not loaded, so --force can replace a broken one.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			st.resolveConfigPath()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeConfigAt(st.configPath, defaultAppConfig(), force); err != nil {
				return err
			}
			fmt.Printf("OK: wrote %s\n", st.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long:  "Set a config value. Keys: " + strings.Join(configKeys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(st.configPath)
			if err != nil {
				return err
			}
			if err := setConfigKey(&cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := writeConfigAt(st.configPath, cfg, true); err != nil {
				return err
			}
			fmt.Fprintf(st.app.Out, "OK: %s=%s\n", args[0], args[1])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := st.app.Config
			out := st.app.Out
			_, err := readConfigAt(st.configPath)
			source := ternary(errors.Is(err, ErrConfigNotFound), " (not found, using defaults)", "")
			fmt.Fprintf(out, "config:        %s%s\n", st.configPath, source)
			fmt.Fprintf(out, "distro:        %s\n", c.Distro)
			fmt.Fprintf(out, "run dir:       %s\n", st.app.RunDir)
			fmt.Fprintf(out, "log level:     %s\n", c.LogLevel)
			fmt.Fprintf(out, "start grace:   %s\n", c.startGrace())
			fmt.Fprintf(out, "stop timeout:  %s\n", c.stopTimeout())
			fmt.Fprintf(out, "nexus binary:  %s\n", c.Nexus.Binary)
			fmt.Fprintf(out, "nexus bin dir: %s\n", c.Nexus.BinDir)
			fmt.Fprintf(out, "nexus node id: %s\n", ternary(c.Nexus.NodeID != "", c.Nexus.NodeID, "-"))
			fmt.Fprintf(out, "nexus wallet:  %s\n", ternary(c.Nexus.Wallet != "", c.Nexus.Wallet, "-"))
			fmt.Fprintf(out, "tashi worker:  %s\n", c.Tashi.Container)
			return nil
		},
	}

	cmd.AddCommand(pathCmd, initCmd, setCmd, showCmd)
	return cmd
}
