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

	"slotbook/internal/api"
	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/notify"
	"slotbook/internal/query"
	"slotbook/internal/reservation"
	"slotbook/internal/slots"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API, event stream and background workers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
}

func runServe(rootOpts *RootOptions, cmd *cobra.Command) error {
	logger := rootOpts.logger(os.Stdout)

	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if ids, err := db.CheckOccupancy(cmd.Context()); err != nil {
		logger.Error().Err(err).Msg("Occupancy check failed")
	} else if len(ids) > 0 {
		logger.Warn().Ints64("slot_ids", ids).Msg("Slots with inconsistent occupancy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	bus := events.NewBus(events.WithDefaultBuffer(cfg.EventBufferSize()), events.WithLogger(&logger))
	defer bus.Close()

	var publisher events.Publisher = bus
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		relay := events.NewRedisRelay(rdb, bus, events.WithChannel(cfg.Redis.Channel), events.WithRelayLogger(&logger))
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Event relay stopped")
				stop()
			}
		}()
		select {
		case <-relay.Ready():
		case <-ctx.Done():
			return nil
		}
		publisher = relay
	}

	engine := reservation.NewEngine(db, reservation.WithPublisher(publisher), reservation.WithLogger(&logger))
	generator := slots.NewGenerator(db,
		slots.WithLocation(loc),
		slots.WithStep(cfg.SlotStep()),
		slots.WithPublisher(publisher),
		slots.WithLogger(&logger),
	)
	queries := query.NewService(db, loc)

	if cfg.Telegram.BotToken != "" {
		forwarder, err := notify.NewTelegramForwarder(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Telegram.ChatIDs, notify.WithLogger(&logger))
		if err != nil {
			logger.Error().Err(err).Msg("Telegram notifications disabled")
		} else {
			go forwarder.Run(ctx, bus)
		}
	}

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	if cfg.Slots.ConfigPath != "" {
		watcher := &config.SlotsWatcher{
			Path:     cfg.Slots.ConfigPath,
			Interval: cfg.SlotsWatchInterval(),
			OnUpdate: func(f *config.SlotsFile) {
				cfgs, err := f.SlotConfigurations()
				if err != nil {
					logger.Warn().Err(err).Msg("Skipping invalid slot configurations")
				}
				result := generator.GenerateBatch(ctx, cfgs)
				logger.Info().Int("created", result.Total).Int("failed", len(result.Failed())).Msg("Slot configurations applied")
			},
			OnError: func(err error) {
				logger.Error().Err(err).Msg("Failed to reload slot configurations")
			},
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Error().Err(err).Str("path", cfg.Slots.ConfigPath).Msg("Slot configuration watcher not started")
		}
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	server := api.NewHTTPServer(api.Config{
		Port:         cfg.HTTP.Port,
		BookingRate:  cfg.BookingRate(),
		BookingBurst: cfg.BookingBurst(),
	}, engine, queries, generator, bus, &logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown error")
		}
	}()

	logger.Info().Str("timezone", loc.String()).Msg("Slotbook started")
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info().Msg("Slotbook stopped")
	return nil
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: healthHandler(ctx, db, rdb)}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

// healthHandler serves /healthz and /readyz. Ready means the database and, when
// configured, Redis answer a ping within a second.
func healthHandler(ctx context.Context, db *database.DB, rdb *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
