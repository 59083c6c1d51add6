package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/importer"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Source int
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.json>...",
		Short: "Seed name histories from JSON files",
		Long: `Seed the store from one or more JSON files, each an array of
{"uuid": "...", "names": [{"name": "...", "changedToAt": ms}]} records.

When an identifier appears in several files the longest name list wins.
Identifiers that already have stored history are left untouched.

Examples:
  namehist import names-2015.json names-2016.json
  namehist import --source 3 legacy.json`,
		Args:          checkArgs(cobra.MinimumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args)
		},
	}

	cmd.Flags().IntVar(&opts.Source, "source", int(history.SourceImport), "provenance tag stored with imported names")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, paths []string) error {
	if opts.Source < 0 {
		return NewExitError(ExitCommandError, "--source must not be negative")
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	im := importer.New(a.store,
		importer.WithSource(history.Source(opts.Source)),
		importer.WithLogger(a.logger),
	)

	report, err := im.ImportFiles(commandContext(cmd), paths)
	if err != nil {
		// Unreadable or invalid input is the caller's mistake; storage is not.
		if history.IsStorageFailure(err) {
			return WrapExitError(ExitFailure, "import failed", err)
		}
		return WrapExitError(ExitCommandError, "import failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(ImportResult(report))
}
