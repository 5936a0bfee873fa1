package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/whisper/automod/internal/action"
	"github.com/whisper/automod/internal/config"
	"github.com/whisper/automod/internal/logging"
	"github.com/whisper/automod/internal/messaging"
	"github.com/whisper/automod/internal/metrics"
	"github.com/whisper/automod/internal/pipeline"
	"github.com/whisper/automod/internal/platform"
	"github.com/whisper/automod/internal/ratelimit"
	"github.com/whisper/automod/internal/store"
	"github.com/whisper/automod/internal/traces"
	"github.com/whisper/automod/internal/verify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(config.DefaultLogLevel, config.DefaultLogFormat).Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting automod moderation service")

	shutdownTracing, err := traces.Init(context.Background(), cfg.OTelEndpoint, cfg.NATSName, logger)
	if err != nil {
		fatal(logger, "failed to initialize tracing", err)
	}

	// PostgreSQL setup.
	if cfg.RunMigrations {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			fatal(logger, "failed to run migrations", err)
		}
		logger.Info("database migrations applied")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	st := store.NewStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Ping(ctx); err != nil {
		cancel()
		fatal(logger, "failed to connect to PostgreSQL", err)
	}
	cancel()

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		fatal(logger, "failed to connect to Redis", err)
	}
	cancel()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = cfg.NATSName
	natsConfig.Logger = logger

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		fatal(logger, "failed to connect to NATS", err)
	}

	// Moderation pipeline.
	directory := platform.NewDirectory(rdb)
	gateway := platform.NewGateway(natsClient, directory, platform.GatewayConfig{Timeout: cfg.PlatformTimeout})
	scheduler := action.TimerScheduler{}

	handler, err := pipeline.NewHandler(pipeline.Deps{
		Store:    st,
		Executor: action.NewExecutor(action.Config{Scheduler: scheduler}),
		Sessions: func(ev platform.MessageEvent) action.Session {
			return gateway.Session(ev)
		},
		Challenges:    verify.NewStore(rdb, cfg.VerifyTTL),
		Limiter:       ratelimit.NewLimiter(rdb),
		Scheduler:     scheduler,
		Logger:        logger,
		HistoryWindow: cfg.HistoryWindow,
	})
	if err != nil {
		fatal(logger, "failed to build pipeline", err)
	}

	// baseCtx is cancelled on shutdown so in-flight events stop issuing
	// platform commands.
	baseCtx, stop := context.WithCancel(context.Background())

	err = natsClient.SubscribeMessages(func(data []byte) {
		typ, ev, err := platform.ParseEvent(data)
		if err != nil {
			logger.Warn("dropping malformed event", "type", typ, "err", err)
			return
		}
		msg, ok := ev.(platform.MessageEvent)
		if !ok {
			logger.Warn("unexpected event on message subject", "type", typ)
			return
		}
		if _, err := handler.Handle(baseCtx, msg); err != nil {
			logger.Error("failed to handle message", "message_id", msg.ID, "guild_id", msg.GuildID, "err", err)
		}
	})
	if err != nil {
		fatal(logger, "failed to subscribe to messages", err)
	}

	err = natsClient.SubscribeChannelUpdates(func(data []byte) {
		typ, ev, err := platform.ParseEvent(data)
		if err != nil {
			logger.Warn("dropping malformed event", "type", typ, "err", err)
			return
		}
		update, ok := ev.(platform.ChannelsUpdate)
		if !ok {
			logger.Warn("unexpected event on channel subject", "type", typ)
			return
		}
		if err := directory.Apply(baseCtx, update); err != nil {
			logger.Error("failed to apply channel update", "guild_id", update.GuildID, "err", err)
		}
	})
	if err != nil {
		fatal(logger, "failed to subscribe to channel updates", err)
	}

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("automod moderation service running",
		"redis_addr", cfg.RedisAddr,
		"nats_url", cfg.NATSURL,
		"metrics_addr", cfg.MetricsAddr,
		"history_window", cfg.HistoryWindow,
	)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	natsClient.Close()
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", "err", err)
	}
	rdb.Close()
	db.Close()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
