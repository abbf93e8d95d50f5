package nodebox

import (
	"github.com/spf13/cobra"
)

func newTashiCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tashi",
		Short: "Install and manage the Tashi DePIN worker (podman inside proot)",
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install proot-distro, podman and the Tashi worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&Tashi{App: st.app}).Install(cmd.Context())
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the worker container state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&Tashi{App: st.app}).Status(cmd.Context())
		},
	}

	var follow bool
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the worker container logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&Tashi{App: st.app}).Logs(cmd.Context(), follow)
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new output")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the worker container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&Tashi{App: st.app}).Restart(cmd.Context())
		},
	}

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the worker container and its auth volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&Tashi{App: st.app}).Uninstall(cmd.Context())
		},
	}

	cmd.AddCommand(installCmd, statusCmd, logsCmd, restartCmd, uninstallCmd)
	return cmd
}
