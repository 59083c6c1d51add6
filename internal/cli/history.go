package cli

import (
	"github.com/spf13/cobra"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Stats bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show the stored name history without contacting the profile source",
		Long: `Print what the local store holds for an identifier, including when it
was last checked. With --stats, print how many identifiers have history.

Examples:
  namehist history 4566e69f-c907-48ee-8d71-d7ba5aa00d20
  namehist history --stats --format json`,
		Args:          checkArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "print the number of identifiers with history")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, args []string) error {
	if opts.Stats == (len(args) == 1) {
		return NewExitError(ExitCommandError, "expected exactly one of <id> or --stats")
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if opts.Stats {
		n, err := a.store.CountIdentifiers(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count identifiers", err)
		}
		return f.Success(StatsResult{Identifiers: n})
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	names, err := a.store.GetHistory(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read history", err)
	}
	meta, err := a.store.GetMetadata(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read metadata", err)
	}

	return f.Success(newHistoryResult(id, names, meta))
}
