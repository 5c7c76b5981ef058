package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alem-hub/student-insights/internal/application/eventhandler"
	"github.com/alem-hub/student-insights/internal/infrastructure/scheduler"
	"github.com/alem-hub/student-insights/internal/infrastructure/scheduler/jobs"
	insightshttp "github.com/alem-hub/student-insights/internal/interface/http"
	"github.com/alem-hub/student-insights/internal/interface/http/handlers"
	"github.com/alem-hub/student-insights/pkg/circuitbreaker"
)

// NewWorkerCmd creates the worker command.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run scheduled batch analysis with health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

// worker is the long-running process: scheduler, event handlers and health server.
type worker struct {
	app       *app
	outcomes  *eventhandler.OnAnalysisCompletedHandler
	scheduler *scheduler.Scheduler
	job       *jobs.AnalyzeStudentsJob
	server    *insightshttp.Server
}

func buildWorker(ctx context.Context, a *app, version string) (*worker, error) {
	if err := a.buildPipeline(ctx); err != nil {
		return nil, err
	}
	cfg := a.cfg
	w := &worker{app: a}

	w.outcomes = eventhandler.NewOnAnalysisCompletedHandler(a.logger)
	if err := w.outcomes.Register(a.bus); err != nil {
		return nil, fmt.Errorf("registering event handlers: %w", err)
	}

	checker := handlers.NewHealthChecker(version)
	checker.AddCheck("store", handlers.PingCheck(a.store))
	if a.cache != nil {
		checker.AddCheck("redis", handlers.PingCheck(a.cache))
	}
	if a.breaker != nil {
		checker.AddCheck("store_breaker", func(context.Context) error {
			if a.breaker.State() == circuitbreaker.StateOpen {
				return circuitbreaker.ErrCircuitOpen
			}
			return nil
		})
	}
	deps := insightshttp.Dependencies{Health: checker, Logger: a.logger}

	if cfg.Scheduler.Enabled {
		w.job = jobs.NewAnalyzeStudentsJob(a.store, a.pipeline, a.metrics, a.logger, jobs.AnalyzeStudentsConfig{
			Concurrency: cfg.Scheduler.Concurrency,
			Timeout:     cfg.Scheduler.JobTimeout,
		})
		schedule, err := scheduler.NewIntervalSchedule(cfg.Scheduler.Interval)
		if err != nil {
			return nil, err
		}

		sc := scheduler.DefaultConfig()
		sc.Logger = a.logger
		sc.RunOnStart = cfg.Scheduler.RunOnStart
		w.scheduler = scheduler.New(sc)
		if err := w.scheduler.Register(w.job, schedule); err != nil {
			return nil, fmt.Errorf("registering job: %w", err)
		}
		w.scheduler.OnJobComplete(func(r scheduler.JobResult) {
			if stats := w.job.LastStats(); stats != nil && r.JobName == w.job.Name() {
				a.logger.Info("batch analysis finished",
					"success", r.Success,
					"students", stats.TotalStudents,
					"failed", stats.Failed,
					"by_status", stats.ByStatus,
				)
			}
		})
		deps.Jobs = w.scheduler
		deps.Batch = w.job
	}

	srvCfg := insightshttp.DefaultConfig()
	srvCfg.Addr = cfg.Observability.HealthAddr
	w.server = insightshttp.NewServer(srvCfg, deps)
	return w, nil
}

// start launches the scheduler and the HTTP server. Server errors other than
// a graceful close are sent on the returned channel.
func (w *worker) start(ctx context.Context) (<-chan error, error) {
	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting scheduler: %w", err)
		}
	}
	errCh := make(chan error, 1)
	go func() {
		if err := w.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh, nil
}

// stop shuts the server down, waits for the running batch and closes the app.
func (w *worker) stop(ctx context.Context) error {
	var errs []error
	if err := w.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if w.scheduler != nil && w.scheduler.IsRunning() {
		done := make(chan error, 1)
		go func() { done <- w.scheduler.Stop() }()
		select {
		case err := <-done:
			errs = append(errs, err)
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", ctx.Err()))
		}
	}
	errs = append(errs, w.app.Close(ctx))
	return errors.Join(errs...)
}

func runWorker(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}

	w, err := buildWorker(ctx, a, a.cfg.App.Version)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh, err := w.start(runCtx)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}
	color.Green("Worker started (health on %s)", a.cfg.Observability.HealthAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-errCh:
		a.logger.Error("health server failed", "error", runErr)
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer stop()
	if err := w.stop(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}

	counts := w.outcomes.Counts()
	a.logger.Info("worker stopped",
		"analyses", counts.Completed,
		"critical", counts.Critical,
		"fallbacks", counts.Fallbacks,
	)
	color.Green("Worker stopped gracefully")
	return runErr
}
