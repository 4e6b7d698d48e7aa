package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/api"
	"example.com/snackhouse/delivery/internal/cache"
	"example.com/snackhouse/delivery/internal/database"
	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/notifier"
	"example.com/snackhouse/delivery/internal/repositories"
	"example.com/snackhouse/delivery/internal/scheduler"
	"example.com/snackhouse/delivery/internal/search"
	"example.com/snackhouse/delivery/internal/services"
	"example.com/snackhouse/delivery/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the delivery service",
	Long: `Start the HTTP API server together with the in-process reminder
scheduler and the periodic sweep that flags overdue deliveries.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := connectWithRetry(cfg, 5)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := models.SetupModels(db.DB()); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	metricsCollector := metrics.NewMetrics()

	deliveryRepo := repositories.NewDeliveryRepository(db.DB())
	orderLineRepo := repositories.NewOrderLineRepository(db.DB())
	stockRepo := repositories.NewStockRepository(db.DB())
	credentialRepo := repositories.NewCredentialRepository(db.DB())
	operatorRepo := repositories.NewOperatorRepository(db.DB())
	sessionRepo := repositories.NewSessionRepository(db.DB())
	reportRepo := repositories.NewReportRepository(db.DB())

	voiceClient := notifier.NewVoiceMonkeyClient(cfg.Notifier, credentialRepo)
	reminders := scheduler.New(cfg.Scheduler, deliveryRepo, voiceClient, metricsCollector)
	defer reminders.Stop()

	deliveryService := services.NewDeliveryService(
		cfg.Scheduler, deliveryRepo, orderLineRepo, reminders,
		voiceClient, elasticClient, metricsCollector, tracer)
	stockService := services.NewStockService(stockRepo, voiceClient, metricsCollector)
	reportService := services.NewReportService(reportRepo, stockRepo, redisCache)
	authService := services.NewAuthService(cfg.Auth, operatorRepo, sessionRepo, redisCache)

	if err := authService.EnsureOperator(ctx); err != nil {
		return errors.Wrap(err, "failed to seed operator account")
	}

	// Re-arm reminders for deliveries that were pending before the restart,
	// then flag anything that slipped past the grace window while down.
	if err := reminders.RescheduleAllPending(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to reschedule pending reminders")
	}
	if err := reminders.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("Initial overdue sweep failed")
	}

	server := api.NewServer(cfg,
		deliveryService, stockService, reportService, authService,
		credentialRepo, reminders, metricsCollector, tracer)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	g.Go(func() error {
		sweeper, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = sweeper.NewJob(
			gocron.DurationJob(cfg.Scheduler.SweepInterval),
			gocron.NewTask(func() {
				if err := reminders.Reconcile(ctx); err != nil {
					log.Error().Err(err).Msg("Overdue sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		sweeper.Start()

		<-ctx.Done()

		return sweeper.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service error")
		return err
	}

	if tracer != nil {
		tracer.Close()
	}
	if redisCache != nil {
		redisCache.Close()
	}

	log.Info().Msg("Delivery service shut down gracefully")
	return nil
}

func connectWithRetry(cfg config.Config, attempts int) (database.DB, error) {
	var db database.DB
	var err error

	for i := 0; i < attempts; i++ {
		db, err = database.Connect(cfg.DB)
		if err == nil {
			return db, nil
		}
		wait := time.Duration(i+1) * 2 * time.Second
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Database connection failed, retrying")
		time.Sleep(wait)
	}

	return nil, errors.Wrap(err, "failed to connect to database")
}
