package cli

import (
	"github.com/spf13/cobra"
)

func newBackupCommand(opts *options) *cobra.Command {
	var indexes []string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot index definitions to blob storage",
		Long: `Reads the definition of every live index (or only those named with --index)
and stores it in blob storage, overwriting the previous snapshot of each index.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			report, err := app.Controller.Backup(cmd.Context(), indexes)
			if report != nil {
				p.report("Backup", report)
			}
			if err != nil {
				return err
			}
			return reportError(report)
		}),
	}
	cmd.Flags().StringSliceVarP(&indexes, "index", "i", nil, "index to back up (repeatable, default: all)")
	return cmd
}

func newRestoreCommand(opts *options) *cobra.Command {
	var indexes []string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Recreate indexes from their snapshots",
		Long: `Loads every snapshot (or only those named with --index), strips the
properties the service rejects on creation and creates or replaces each index.
Restored indexes are empty; re-index the documents afterwards.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			report, err := app.Controller.Restore(cmd.Context(), indexes)
			if report != nil {
				p.report("Restore", report)
			}
			if err != nil {
				return err
			}
			if len(report.Succeeded) > 0 {
				p.warn("", "restored indexes hold no documents until they are re-indexed")
			}
			return reportError(report)
		}),
	}
	cmd.Flags().StringSliceVarP(&indexes, "index", "i", nil, "index to restore (repeatable, default: all snapshots)")
	return cmd
}

func newVerifyCommand(opts *options) *cobra.Command {
	var indexes []string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare live index definitions with their snapshots",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			report, err := app.Controller.Verify(cmd.Context(), indexes)
			if err != nil {
				return err
			}
			p.report("Verify", report)
			return reportError(report)
		}),
	}
	cmd.Flags().StringSliceVarP(&indexes, "index", "i", nil, "index to verify (repeatable, default: all snapshots)")
	return cmd
}
