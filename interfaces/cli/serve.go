package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"echotree/infrastructure/configuration"
	"echotree/infrastructure/logger"
	"echotree/infrastructure/scheduler"
)

const publishJobName = "publish-due"

type ServeOptions struct {
	*RootOptions
	Port int
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sweep scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configuration.C
			if opts.Port > 0 {
				cfg.App.Port = opts.Port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (overrides APP_PORT)")
	return cmd
}

func serve(ctx context.Context, cfg configuration.Config) error {
	app, err := Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	var sched *scheduler.Scheduler
	if cfg.Publish.SchedulerEnabled {
		sched, err = scheduler.New(cfg.App.Timezone, 0)
		if err != nil {
			return err
		}
		if err := sched.AddJob(publishJobName, cfg.Publish.Schedule, sweepJob(app)); err != nil {
			return err
		}
		sched.Start()
		for _, job := range sched.ListJobs() {
			logger.GetLogger().WithField("job", job.Name).WithField("next_run", job.NextRun).Info("scheduled job registered")
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	logger.GetLogger().WithFields(map[string]interface{}{"port": cfg.App.Port, "tls": cfg.App.TLSEnabled}).Info("Starting application")
	g.Go(func() error {
		return listen(httpServer, cfg.App)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.GetLogger().Info("Application shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if sched != nil {
			select {
			case <-sched.Stop().Done():
			case <-shutdownCtx.Done():
			}
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		return err
	}
	return nil
}

func listen(srv *http.Server, app configuration.App) error {
	var err error
	switch {
	case app.TLSEnabled && (app.TLSCertFile == "" || app.TLSKeyFile == ""):
		logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
		err = srv.ListenAndServe()
	case app.TLSEnabled:
		logger.GetLogger().WithFields(map[string]interface{}{"cert": app.TLSCertFile, "key": app.TLSKeyFile}).Info("Serving HTTPS")
		err = srv.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile)
	default:
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// sweepJob adapts the due sweep to a scheduler job. A held lock is not an error.
func sweepJob(app *App) scheduler.Job {
	return func(ctx context.Context) error {
		report, err := app.Publish.PublishDue(ctx)
		if err != nil {
			return err
		}
		if !report.LockAcquired {
			logger.GetLogger().Debug("publish lock held elsewhere; skipping tick")
		}
		return nil
	}
}
