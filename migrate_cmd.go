package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the configured Dropbox folder into Google Drive",
		Long: `Copies every file under source.root_folder into destination.root_folder,
creating folders as needed and translating sharing into Drive permissions.

  --dry-run  list what would be migrated without changing Google Drive
  --test     migrate at most options.test_limit files from test_folder
  --resume   skip files the checkpoint records as migrated at the same revision

The flags can be combined. The exit code is 0 only when every file was
migrated or skipped.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("dry-run", false, "show what would be migrated without writing to Google Drive")
	cmd.Flags().Bool("test", false, "migrate a limited number of files from the test folder")
	cmd.Flags().Bool("resume", false, "continue from the last checkpoint")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	var opts migrateOptions

	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Test, _ = cmd.Flags().GetBool("test")
	opts.Resume, _ = cmd.Flags().GetBool("resume")

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	var observer migrate.Observer
	if !cc.Flags.Quiet && !cc.Flags.JSON && isTerminal(os.Stderr) {
		observer = newProgressObserver(os.Stderr)
	}

	if opts.DryRun {
		cc.Statusf("Dry run: Google Drive will not be modified.\n")
	}

	sess, err := newSession(ctx, cc, opts, observer)
	if err != nil {
		return err
	}
	defer sess.Close()

	summary, runErr := sess.engine.Run(ctx)
	if summary == nil {
		return runErr
	}

	if cc.Flags.JSON {
		if err := writeJSON(os.Stdout, newSummaryOutput(summary)); err != nil {
			return err
		}
	} else {
		printSummary(os.Stdout, summary)
	}

	if runErr != nil {
		return runErr
	}

	if !summary.Succeeded() {
		return &exitError{code: 1, err: fmt.Errorf("%d file(s) failed to migrate", summary.Counts[migrate.StatusFailed])}
	}

	return nil
}
