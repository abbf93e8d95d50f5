package nodebox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type nexusFlags struct {
	NodeID string
	Wallet string
	Detach bool
	Native bool
	Proot  bool
	Login  bool
	Status bool
	Stop   bool
	Logs   bool
	Follow bool
	Lines  int
}

func (f nexusFlags) placement() (Placement, error) {
	switch {
	case f.Native && f.Proot:
		return "", errors.New("--native and --proot are mutually exclusive")
	case f.Native:
		return PlacementNative, nil
	case f.Proot:
		return PlacementProot, nil
	}
	return PlacementAuto, nil
}

func newNexusCmd(st *cliState) *cobra.Command {
	var f nexusFlags
	cmd := &cobra.Command{
		Use:   "nexus",
		Short: "Run a Nexus network prover node",
		Long: strings.TrimSpace(`
Run a Nexus network prover node.

Without a subcommand this runs the whole flow: preflight, then an optional
wallet registration (--wallet) and login (--login), then start. The worker
flags --status, --stop and --logs act on a detached worker instead.

The node id comes from --node-id, then NODE_ID, then nexus.node-id in the
config, then an interactive prompt.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sup := st.app.Supervisor(NexusWorkerName)
			switch {
			case f.Status:
				return printWorkerStatus(st.app, sup)
			case f.Stop:
				return stopWorker(ctx, st.app, sup)
			case f.Logs:
				return showWorkerLogs(ctx, st.app, sup, f.Follow, f.Lines)
			}

			placement, err := f.placement()
			if err != nil {
				return err
			}
			n := &Nexus{App: st.app}
			status := n.Preflight(ctx)

			if f.Wallet != "" {
				if err := n.Register(ctx, f.Wallet, status); err != nil {
					return err
				}
			}
			if f.Login {
				if err := n.Login(ctx, status); err != nil {
					return err
				}
			}

			id, err := resolveIdentifier("node id", f.NodeID, EnvNodeID, st.app.Config.Nexus.NodeID)
			if err != nil {
				return err
			}
			return n.Start(ctx, id, status, StartOptions{Placement: placement, Detach: f.Detach})
		},
	}

	cmd.Flags().StringVar(&f.NodeID, "node-id", "", "Nexus node id (or set NODE_ID)")
	cmd.Flags().StringVar(&f.Wallet, "wallet", "", "Register this wallet address before starting")
	cmd.Flags().BoolVar(&f.Login, "login", false, "Run the interactive login before starting")
	cmd.Flags().BoolVarP(&f.Detach, "detach", "d", false, "Run the worker in the background")
	cmd.Flags().BoolVar(&f.Native, "native", false, "Only run the native CLI; never fall back to proot")
	cmd.Flags().BoolVar(&f.Proot, "proot", false, "Always run inside the proot guest")
	cmd.Flags().BoolVar(&f.Status, "status", false, "Show the detached worker state")
	cmd.Flags().BoolVar(&f.Stop, "stop", false, "Stop the detached worker")
	cmd.Flags().BoolVar(&f.Logs, "logs", false, "Print the detached worker log")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "With --logs, keep printing new output")
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "With --logs, number of lines to show (0 for all)")
	cmd.MarkFlagsMutuallyExclusive("status", "stop", "logs")

	cmd.AddCommand(newNexusStartCmd(st))
	cmd.AddCommand(newNexusRegisterCmd(st))
	cmd.AddCommand(newNexusLoginCmd(st))
	cmd.AddCommand(newNexusStatusCmd(st))
	cmd.AddCommand(newNexusStopCmd(st))
	cmd.AddCommand(newNexusLogsCmd(st))
	return cmd
}

func newNexusStartCmd(st *cliState) *cobra.Command {
	var f nexusFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node, natively or inside the proot guest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			placement, err := f.placement()
			if err != nil {
				return err
			}
			id, err := resolveIdentifier("node id", f.NodeID, EnvNodeID, st.app.Config.Nexus.NodeID)
			if err != nil {
				return err
			}
			n := &Nexus{App: st.app}
			status := n.Preflight(cmd.Context())
			return n.Start(cmd.Context(), id, status, StartOptions{Placement: placement, Detach: f.Detach})
		},
	}
	cmd.Flags().StringVar(&f.NodeID, "node-id", "", "Nexus node id (or set NODE_ID)")
	cmd.Flags().BoolVarP(&f.Detach, "detach", "d", false, "Run the worker in the background")
	cmd.Flags().BoolVar(&f.Native, "native", false, "Only run the native CLI; never fall back to proot")
	cmd.Flags().BoolVar(&f.Proot, "proot", false, "Always run inside the proot guest")
	cmd.MarkFlagsMutuallyExclusive("native", "proot")
	return cmd
}

func newNexusRegisterCmd(st *cliState) *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a wallet address with the Nexus CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := resolveIdentifier("wallet address", wallet, EnvWallet, st.app.Config.Nexus.Wallet)
			if err != nil {
				return err
			}
			n := &Nexus{App: st.app}
			return n.Register(cmd.Context(), w, n.Preflight(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Wallet address (or set WALLET_ADDRESS)")
	return cmd
}

func newNexusLoginCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Run the Nexus CLI interactive login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := &Nexus{App: st.app}
			return n.Login(cmd.Context(), n.Preflight(cmd.Context()))
		},
	}
}

func newNexusStatusCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the detached worker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printWorkerStatus(st.app, st.app.Supervisor(NexusWorkerName))
		},
	}
}

func newNexusStopCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the detached worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopWorker(cmd.Context(), st.app, st.app.Supervisor(NexusWorkerName))
		},
	}
}

func newNexusLogsCmd(st *cliState) *cobra.Command {
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the detached worker log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showWorkerLogs(cmd.Context(), st.app, st.app.Supervisor(NexusWorkerName), follow, lines)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show (0 for all)")
	return cmd
}

func printWorkerStatus(app *App, sup *Supervisor) error {
	ws := sup.Status()
	fmt.Fprintf(app.Out, "worker: %s\n", sup.Name)
	fmt.Fprintf(app.Out, "state:  %s\n", renderState(strings.ToLower(string(ws.State))))
	if ws.PID > 0 {
		fmt.Fprintf(app.Out, "pid:    %d\n", ws.PID)
	}
	fmt.Fprintf(app.Out, "log:    %s\n", ws.LogPath)
	return nil
}

func stopWorker(ctx context.Context, app *App, sup *Supervisor) error {
	ws, err := sup.Stop(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "OK: stopped %s (pid %d).\n", sup.Name, ws.PID)
	return nil
}

func showWorkerLogs(ctx context.Context, app *App, sup *Supervisor, follow bool, lines int) error {
	if err := sup.Tail(app.Out, lines); err != nil {
		return err
	}
	if !follow {
		return nil
	}
	return sup.Follow(ctx, app.Out)
}
