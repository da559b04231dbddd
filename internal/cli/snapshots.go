package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/indexvault-go/internal/schema/app/sanitizer"
	"github.com/spf13/cobra"
)

func newSnapshotsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"snapshot"},
		Short:   "Inspect and manage stored snapshots",
	}
	cmd.AddCommand(
		newSnapshotsListCommand(opts),
		newSnapshotsShowCommand(opts),
		newSnapshotsDeleteCommand(opts),
	)
	return cmd
}

func newSnapshotsListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored snapshots",
		Args:    cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			snapshots, err := app.Snapshots.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				p.info("", "no snapshots stored")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tSIZE\tCAPTURED\tKEY")
			for _, s := range snapshots {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.IndexName, s.Size, s.CapturedAt.Local().Format(time.DateTime), s.Key)
			}
			return w.Flush()
		}),
	}
}

func newSnapshotsShowCommand(opts *options) *cobra.Command {
	var payload bool
	cmd := &cobra.Command{
		Use:   "show INDEX",
		Short: "Print a stored definition",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			snap, err := app.Snapshots.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			def := snap.Definition
			if payload {
				if dropped := sanitizer.Dropped(def); len(dropped) > 0 {
					p.warn(args[0], "not restorable: "+strings.Join(dropped, ", "))
				}
				def = sanitizer.Restore(def)
			}

			data, err := def.Encode()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}),
	}
	cmd.Flags().BoolVar(&payload, "payload", false, "print the definition as it would be sent on restore")
	return cmd
}

func newSnapshotsDeleteCommand(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete INDEX",
		Short: "Delete a stored snapshot",
		Long: `Deletes the snapshot of one index. While the service is deprovisioned the
snapshot is the only copy of the definition.`,
		Args: cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			name := args[0]
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Type the index name to delete its snapshot: ")
				answer, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("delete aborted: %w", err)
				}
				if answer != name {
					return errors.New("delete aborted: confirmation did not match")
				}
			}

			if err := app.Snapshots.Delete(cmd.Context(), name); err != nil {
				return err
			}
			p.ok(name, "snapshot deleted")
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
