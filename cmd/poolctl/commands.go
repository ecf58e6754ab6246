package poolctl

import "github.com/spf13/cobra"

// Actions defines the operations poolctl exposes against a running Pool.
type Actions interface {
	Get(cmd *cobra.Command, args []string) error
	Inspect(cmd *cobra.Command, args []string) error
	Detach(cmd *cobra.Command, args []string) error
	Disable(cmd *cobra.Command, args []string) error
	Enable(cmd *cobra.Command, args []string) error
	Restart(cmd *cobra.Command, args []string) error
	SetMax(cmd *cobra.Command, args []string) error
}

// Commands builds the flat poolctl command set.
func Commands(h Actions) []*cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get GROUP",
		Short: "Request a session from GROUP, print which process served it, then release it",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Get,
	}
	addOptionsFlags(getCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show every group and process as a table (or --xml for the wire format)",
		RunE:  h.Inspect,
	}
	inspectCmd.Flags().Bool("xml", false, "render the historical XML status document instead of a table")
	inspectCmd.Flags().Bool("show-secrets", false, "include each group's detach secret in the XML document")

	detachCmd := &cobra.Command{
		Use:   "detach [flags] [GUPID]",
		Short: "Detach a single process (GUPID) or a whole group (--group/--secret)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  h.Detach,
	}
	detachCmd.Flags().String("group", "", "detach the named group instead of a single process")
	detachCmd.Flags().String("secret", "", "detach the group owning this secret instead of a single process")

	disableCmd := &cobra.Command{
		Use:   "disable GUPID",
		Short: "Stop routing new sessions to GUPID and report the outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Disable,
	}

	enableCmd := &cobra.Command{
		Use:   "enable GUPID",
		Short: "Make a previously disabled process eligible for sessions again",
		Args:  cobra.ExactArgs(1),
		RunE:  h.Enable,
	}

	restartCmd := &cobra.Command{
		Use:   "restart [flags] [GROUP]",
		Short: "Restart GROUP, or every group under --app-root",
		Args:  cobra.MaximumNArgs(1),
		RunE:  h.Restart,
	}
	restartCmd.Flags().String("app-root", "", "restart every group whose AppRoot matches this path instead of a single group")
	restartCmd.Flags().String("method", "rolling", "restart method: rolling or blocking")

	setMaxCmd := &cobra.Command{
		Use:   "set-max N",
		Short: "Change the pool-wide process ceiling",
		Args:  cobra.ExactArgs(1),
		RunE:  h.SetMax,
	}

	return []*cobra.Command{getCmd, inspectCmd, detachCmd, disableCmd, enableCmd, restartCmd, setMaxCmd}
}

func addOptionsFlags(cmd *cobra.Command) {
	cmd.Flags().String("app-root", "", "application root directory")
	cmd.Flags().String("user", "", "user the worker process should run as")
	cmd.Flags().String("env", "", "environment name (e.g. production, staging)")
	cmd.Flags().Int("min-processes", 0, "floor the garbage collector will not evict below")
	cmd.Flags().Int("max-processes", 0, "per-group process ceiling (0 = bounded only by the pool ceiling)")
	cmd.Flags().Int("max-requests", 0, "retire a process after this many sessions (0 = unbounded)")
	cmd.Flags().String("memory-limit", "", "operator hint carried on the group's options, e.g. 512M (not enforced, not shown by inspect)")
	cmd.Flags().String("label", "", "free-form operator metadata")
}
