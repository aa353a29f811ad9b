package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternisai/agent-stream/internal/agent"
	"github.com/eternisai/agent-stream/internal/auth"
	"github.com/eternisai/agent-stream/internal/chats"
	"github.com/eternisai/agent-stream/internal/config"
	"github.com/eternisai/agent-stream/internal/entitlement"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/memory"
	"github.com/eternisai/agent-stream/internal/metrics"
	"github.com/eternisai/agent-stream/internal/relay"
	"github.com/eternisai/agent-stream/internal/scrape"
	"github.com/eternisai/agent-stream/internal/search"
	"github.com/eternisai/agent-stream/internal/storage"
	memstore "github.com/eternisai/agent-stream/internal/storage/memory"
	"github.com/eternisai/agent-stream/internal/storage/pg"
	"github.com/eternisai/agent-stream/internal/storage/sqlite"
	"github.com/eternisai/agent-stream/internal/streaming"
	"github.com/eternisai/agent-stream/internal/tiers"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	slog.SetDefault(log.Logger)

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	store, err := openStore(cfg)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close() //nolint:errcheck

	tokenValidator, err := NewTokenValidator(cfg, log)
	if err != nil {
		log.Error("failed to initialize token validator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authMiddleware := auth.NewMiddleware(tokenValidator)

	clock := clockwork.NewRealClock()

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	// Redis is optional: without it limits and stream locks are per instance.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to configure redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close() //nolint:errcheck

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis is not reachable, continuing with fail-open checks", slog.String("error", err.Error()))
		}
		cancel()
	}

	var limiter entitlement.RateLimiter = entitlement.NewMemoryLimiter(clock)
	streamOpts := []streaming.ManagerOption{
		streaming.WithClock(clock),
		streaming.WithActiveObserver(rec.SetActive),
	}
	if rdb != nil {
		limiter = entitlement.NewRedisLimiter(rdb, clock)
		streamOpts = append(streamOpts, streaming.WithLock(streaming.NewRedisLock(rdb, cfg.StreamLockTTL), cfg.StreamLockTTL/3))
	}

	entitlements := entitlement.NewService(store, limiter, tiers.Configs.WithHourlyLimits(cfg.FreeHourlyMessages, cfg.ProHourlyMessages), clock, log)
	entitlements.Disabled = !cfg.RateLimitEnabled

	streamManager := streaming.NewStreamManager(log, streamOpts...)

	// NATS is optional: without it a stop only reaches streams on this instance.
	var (
		nc            *nats.Conn
		cancelService *streaming.DistributedCancelService
	)
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL,
			nats.Name("agent-stream-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn("failed to connect to NATS, distributed stop disabled", slog.String("error", err.Error()))
		} else {
			cancelService = streaming.NewDistributedCancelService(nc, streamManager, log, logger.GetInstanceID())
			if err := cancelService.Start(); err != nil {
				log.Error("failed to start distributed cancel service", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}
	}

	memoryService := memory.NewService(store, log)
	researchAgent := newAgent(cfg, log, memoryService, clock)

	relayDeps := relay.Dependencies{
		Store:        store,
		Agent:        researchAgent,
		Entitlements: entitlements,
		Streams:      streamManager,
		Metrics:      rec,
		Clock:        clock,
		Logger:       log,
		Options: relay.Options{
			HeartbeatInterval:   cfg.StreamHeartbeatInterval,
			HistoryLimit:        cfg.Agent.HistoryLimit,
			RateLimitFailClosed: cfg.RateLimitFailClosed,
		},
	}
	if cancelService != nil {
		relayDeps.RemoteStop = cancelService
	}
	relayHandler := relay.NewHandler(relayDeps)
	chatsHandler := chats.NewHandler(store, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"instanceId":    logger.GetInstanceID(),
			"activeStreams": streamManager.ActiveCount(),
		})
	})
	if rec != nil {
		router.GET("/metrics", gin.WrapH(rec.Handler()))
	}

	requireAuth := authMiddleware.RequireAuth()
	relayHandler.RegisterRoutes(router, requireAuth)
	chatsHandler.RegisterRoutes(router, requireAuth)
	memoryService.RegisterRoutes(router, requireAuth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:       cfg.AllowedOrigins(),
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Authorization", "Content-Type", "Accept", "Cache-Control", logger.RequestIDHeader},
		ExposedHeaders:       []string{logger.RequestIDHeader},
		OptionsSuccessStatus: http.StatusOK,
		MaxAge:               600,
	})

	port := ":" + cfg.Port
	srv := &http.Server{
		Addr:              port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("agent stream server listening",
		slog.String("port", port),
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.String("model", researchAgent.Model()),
		slog.Bool("redis", rdb != nil),
		slog.Bool("nats", cancelService != nil),
		slog.Bool("rate_limit_enabled", cfg.RateLimitEnabled))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server", slog.Int("active_streams", streamManager.ActiveCount()))

	// Open streams end with a stopped complete event and keep their partial reply.
	streamManager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	if cancelService != nil {
		if err := cancelService.Stop(); err != nil {
			log.Warn("failed to stop distributed cancel service", slog.String("error", err.Error()))
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warn("failed to drain NATS connection", slog.String("error", err.Error()))
		}
	}

	log.Info("server exited")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := pg.InitDatabase(cfg.DatabaseURL, pg.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Minute,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		return db.Store, nil
	case "sqlite":
		return sqlite.Open(cfg.DatabaseURL)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func newAgent(cfg *config.Config, log *logger.Logger, mem *memory.Service, clock clockwork.Clock) *agent.ResearchAgent {
	var model agent.ChatModel
	if cfg.OpenAIAPIKey != "" {
		model = agent.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Agent.Model)
	} else {
		log.Warn("no chat model configured, streams will end with an error")
	}

	searchService := search.NewService(search.Options{
		ExaAPIKey:  cfg.ExaAPIKey,
		SerpAPIKey: cfg.SerpAPIKey,
	}, log)
	fetcher := scrape.NewFetcher(time.Duration(cfg.Agent.ScrapeTimeoutSeconds)*time.Second, cfg.Agent.MaxPageBytes)

	return agent.NewResearchAgent(model, cfg.Agent, log,
		agent.WithSearch(searchService),
		agent.WithFetcher(fetcher),
		agent.WithMemory(mem),
		agent.WithClock(clock),
	)
}

func NewTokenValidator(cfg *config.Config, log *logger.Logger) (auth.TokenValidator, error) {
	switch cfg.ValidatorType {
	case "firebase":
		if cfg.FirebaseCredJSON == "" {
			return nil, errors.New("FIREBASE_CRED_JSON is required for the firebase validator")
		}
		log.Info("creating Firebase token validator")
		return auth.NewFirebaseTokenValidator(context.Background(), cfg.FirebaseCredJSON)

	case "hmac":
		log.Info("creating HMAC token validator")
		return auth.NewHMACValidator(cfg.JWTSecret)

	case "jwk":
		if cfg.JWTJWKSURL == "" {
			log.Warn("JWT_JWKS_URL is empty, tokens are NOT verified (development mode)")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return auth.NewTokenValidator(ctx, cfg.JWTJWKSURL)

	default:
		return nil, fmt.Errorf("validator type must be 'jwk', 'hmac' or 'firebase', got %q", cfg.ValidatorType)
	}
}
