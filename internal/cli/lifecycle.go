package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/spf13/cobra"
)

func newDeprovisionCommand(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "deprovision",
		Short: "Delete the search service (snapshots are kept)",
		Long: `Deletes the search service and every document it holds. Only index
definitions survive, in the snapshots taken by the last backup. Without --yes
the service name must be typed to confirm.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			service := app.Config.Search.ServiceName
			confirmed := yes
			if !confirmed {
				fmt.Fprintf(cmd.OutOrStdout(), "This deletes %s and all of its documents.\nType the service name to confirm: ", service)
				answer, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("deprovision aborted: %w", err)
				}
				confirmed = answer == service
			}

			if err := app.Controller.Deprovision(cmd.Context(), confirmed); err != nil {
				if errors.Is(err, index.ErrConfirmationRequired) {
					return errors.New("deprovision aborted: confirmation did not match")
				}
				return err
			}
			p.ok(service, "deprovisioned; snapshots kept")
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newProvisionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the search service again",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			instance, err := app.Controller.Provision(cmd.Context())
			if err != nil {
				return err
			}
			p.ok(instance.Name, "provisioned at "+instance.Endpoint)
			p.info("", "run 'indexvault restore' to recreate the indexes")
			return nil
		}),
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the lifecycle state and recent history",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			status, err := app.Controller.Status(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			record := status.Record
			p.section("Lifecycle")
			p.info(record.ServiceName, "state "+string(record.State))
			if record.Endpoint != "" {
				p.info("", "endpoint "+record.Endpoint)
			}
			allowed := make([]string, len(status.Allowed))
			for i, event := range status.Allowed {
				allowed[i] = string(event)
			}
			p.info("", "next: "+strings.Join(allowed, ", "))

			if len(status.History) > 0 {
				p.section("History")
				for _, t := range status.History {
					msg := fmt.Sprintf("%s  %s -> %s", t.CreatedAt.Local().Format(time.DateTime), t.FromState, t.ToState)
					if t.Note != "" {
						msg += "  (" + t.Note + ")"
					}
					p.info(string(t.Event), msg)
				}
			}

			if len(status.Runs) > 0 {
				p.section("Runs")
				for _, run := range status.Runs {
					msg := fmt.Sprintf("%s  %d succeeded, %d failed", run.StartedAt.Local().Format(time.DateTime), len(run.Succeeded), len(run.Failed))
					if len(run.Failed) > 0 {
						p.warn(run.Operation, msg+": "+strings.Join(run.Failed, ", "))
					} else {
						p.ok(run.Operation, msg)
					}
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
