// Command regwatch runs the compliance monitoring and alerting engine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	api "github.com/regwatch/regwatch/internal/api/v2"
	"github.com/regwatch/regwatch/internal/conf"
	"github.com/regwatch/regwatch/internal/dashboard"
	"github.com/regwatch/regwatch/internal/datastore"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/regwatch/regwatch/internal/monitor"
	"github.com/regwatch/regwatch/internal/notification"
	"github.com/regwatch/regwatch/internal/observability/metrics"
	"github.com/regwatch/regwatch/internal/risk"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "regwatch",
		Short:        "Compliance monitoring and alerting engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}
	root.AddCommand(serve)
	root.RunE = serve.RunE

	return root
}

// logEnforcer is the default enforcement collaborator. Real deployments
// replace it with the portal's enforcement client; standalone runs just
// record the dispatch.
type logEnforcer struct {
	log logger.Logger
}

func (l *logEnforcer) Dispatch(_ context.Context, alert *entities.Alert, action string) error {
	l.log.Info("enforcement action dispatched",
		logger.Uint64("alert_id", uint64(alert.ID)),
		logger.Uint64("entity_id", uint64(alert.EntityID)),
		logger.String("action", action))
	return nil
}

func runServe(configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	log := logger.NewSlogLogger(os.Stdout, logger.LogLevelInfo, nil)

	db, err := datastore.Open(&settings.Database)
	if err != nil {
		return err
	}

	repos := monitor.Repositories{
		Rules:      repository.NewRuleRepository(db),
		Executions: repository.NewExecutionRepository(db),
		Alerts:     repository.NewAlertRepository(db),
		Warnings:   repository.NewWarningRepository(db),
	}

	provider := metricstore.NewCachedProvider(
		metricstore.NewDatabaseProvider(db),
		settings.MetricStore.CacheTTL.Std(),
	)

	notification.Initialize(notification.NewService(settings.Notification.MaxStored, log))

	m := metrics.New()
	scheduler, err := monitor.Initialize(repos, provider, settings, m, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	m.SetSchedulerRunning(true)

	predictor := risk.NewPredictor(provider, settings.Risk.HistoryPeriods, log)
	aggregator := dashboard.NewAggregator(repos.Alerts, provider, predictor, settings.Regions, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	api.New(e, api.Options{
		Repos:      repos,
		Scheduler:  scheduler,
		Aggregator: aggregator,
		Enforcer:   &logEnforcer{log: log},
		Recorder:   m,
		Metrics:    m.Handler(),
		Log:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", settings.Server.Listen))
		errCh <- e.Start(settings.Server.Listen)
	}()

	select {
	case err := <-errCh:
		scheduler.Stop()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	scheduler.Stop()
	m.SetSchedulerRunning(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
