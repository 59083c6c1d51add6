package cli

import (
	"github.com/spf13/cobra"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Look up a name history, refreshing it when stale",
		Long: `Run one lookup for an identifier exactly as the HTTP service would:
serve the stored history while fresh, otherwise fetch the current name
from the profile source and record any change.

Examples:
  namehist resolve 4566e69f-c907-48ee-8d71-d7ba5aa00d20
  namehist resolve 4566e69fc90748ee8d71d7ba5aa00d20 --format json`,
		Args:          checkArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runResolve(cmd *cobra.Command, opts *RootOptions, arg string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.newResolver(nil)
	if err != nil {
		return err
	}

	names, err := res.Resolve(commandContext(cmd), id)
	if err != nil {
		return WrapExitError(ExitFailure, "lookup failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(newHistoryResult(id, names, nil))
}
