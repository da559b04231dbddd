package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newScheduleCommand(opts *options) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on a cron schedule and serve /metrics and /healthz",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, args []string, app *App, p printer) error {
			cfg := app.Config.Schedule
			sched, err := newScheduler(app, cfg.Backup, cfg.ListenAddr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			errCh := sched.Start()
			p.info("", fmt.Sprintf("backing up on %q, listening on %s", cfg.Backup, cfg.ListenAddr))
			if runNow {
				sched.RunNow()
			}

			select {
			case <-ctx.Done():
			case err = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if shutdownErr := sched.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
				err = shutdownErr
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "also run a backup immediately")
	return cmd
}

// scheduler runs periodic backups next to a small HTTP server for scraping
// and liveness probes.
type scheduler struct {
	app        *App
	cron       *cron.Cron
	httpServer *http.Server
	logger     logger.Logger

	entryID cron.EntryID
	// manual tracks backups started by RunNow.
	manual sync.WaitGroup

	// ctx is cancelled on shutdown; running backups stop between indexes.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	last    *index.Report
	lastErr error
}

func newScheduler(app *App, spec, addr string) (*scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}

	log := app.Logger.With("component", "scheduler")
	s := &scheduler{app: app, logger: log}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{log}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := s.cron.AddFunc(spec, s.backup)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule backup: %w", err)
	}
	s.entryID = id

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start launches the cron loop and the HTTP server. Server failures are sent
// on the returned channel.
func (s *scheduler) Start() <-chan error {
	errCh := make(chan error, 1)
	s.cron.Start()

	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()
	return errCh
}

// RunNow starts the scheduled backup immediately. It goes through the same job
// chain as scheduled runs, so it never overlaps one, and Shutdown waits for it.
func (s *scheduler) RunNow() {
	job := s.cron.Entry(s.entryID).WrappedJob
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		job.Run()
	}()
}

func (s *scheduler) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down scheduler...")
	s.cancel()

	idle := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.manual.Wait()
		close(idle)
	}()

	select {
	case <-idle:
	case <-ctx.Done():
		s.logger.Warn("Backup still running at shutdown")
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *scheduler) backup() {
	s.logger.Info("Scheduled backup started")
	report, err := s.app.Controller.Backup(s.ctx, nil)

	s.mu.Lock()
	s.last, s.lastErr = report, err
	s.mu.Unlock()

	switch {
	case err != nil:
		s.logger.Error("Scheduled backup failed", "error", err)
	case report.HasFailures():
		s.logger.Warn("Scheduled backup finished with failures",
			"succeeded", len(report.Succeeded), "failed", report.FailedNames())
	default:
		s.logger.Info("Scheduled backup finished", "indexes", len(report.Succeeded), "duration", report.Duration())
	}

	if err := metrics.Push(s.app.Config.Metrics.PushgatewayURL, s.app.Config.Metrics.Job); err != nil {
		s.logger.Warn("Failed to push metrics", "error", err)
	}
}

func (s *scheduler) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.app.Telemetry.HTTPMiddleware())

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func (s *scheduler) health(c *gin.Context) {
	status, err := s.app.Controller.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	body := gin.H{
		"status":  "ok",
		"service": status.Record.ServiceName,
		"state":   status.Record.State,
	}

	s.mu.RLock()
	if s.last != nil {
		body["lastBackup"] = gin.H{
			"runId":      s.last.RunID,
			"finishedAt": s.last.FinishedAt,
			"succeeded":  len(s.last.Succeeded),
			"failed":     s.last.FailedNames(),
		}
	}
	if s.lastErr != nil {
		body["lastError"] = s.lastErr.Error()
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, body)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	logger.Logger
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, append(keysAndValues, "error", err)...)
}
