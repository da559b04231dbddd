// Package cli is the indexvault command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	configFile string
	verbose    bool

	newApp AppFactory
	// loadConfig is replaced in tests.
	loadConfig func(file string) (*config.Config, error)
}

// NewRootCommand builds the command tree. newApp may be nil to use NewApp.
func NewRootCommand(newApp AppFactory) *cobra.Command {
	if newApp == nil {
		newApp = NewApp
	}
	return newRootCommand(&options{newApp: newApp, loadConfig: config.Load})
}

func newRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "indexvault",
		Short:         "Back up, tear down and restore search index schemas",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `indexvault snapshots the index definitions of a billed search service to
blob storage so the service can be deprovisioned between uses and rebuilt
later. Document content is not backed up; re-index after a restore.`,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./indexvault.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newBackupCommand(opts),
		newDeprovisionCommand(opts),
		newProvisionCommand(opts),
		newRestoreCommand(opts),
		newStatusCommand(opts),
		newVerifyCommand(opts),
		newSnapshotsCommand(opts),
		newScheduleCommand(opts),
	)
	return root
}

// Execute runs the command line and exits with status 1 on any failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(nil)
	if err := root.ExecuteContext(ctx); err != nil {
		printer{out: os.Stdout, err: os.Stderr}.fail("", err.Error())
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and wires the App for one command run.
func (o *options) setup(cmd *cobra.Command) (*App, printer, error) {
	p := printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}

	cfg, err := o.loadConfig(o.configFile)
	if err != nil {
		return nil, p, err
	}
	if o.verbose {
		cfg.Logger.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, p, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())
	app, err := o.newApp(cmd.Context(), cfg, log)
	if err != nil {
		return nil, p, err
	}
	return app, p, nil
}

// run wires the App, calls fn and releases the App afterwards.
func (o *options) run(fn func(cmd *cobra.Command, args []string, app *App, p printer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, p, err := o.setup(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.WithoutCancel(cmd.Context()))
		defer app.Logger.Sync()
		return fn(cmd, args, app, p)
	}
}

// readLine reads one trimmed line of operator input. Input that ends before
// anything was typed is an error, never an empty answer.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("no confirmation received: %w", err)
	}
	return strings.TrimSpace(line), nil
}
