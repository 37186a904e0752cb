package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"thumbgen/internal/api/v1/handler"
	"thumbgen/internal/config"
	"thumbgen/internal/metrics"
	"thumbgen/internal/middleware"
	"thumbgen/internal/pubsub"
	"thumbgen/internal/repository"
	"thumbgen/internal/service"
	"thumbgen/internal/util"
)

// New wires storage, services and handlers into one HTTP handler. The returned cleanup
// releases the database pool and the event publisher.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().Str("environment", cfg.Env).Str("store_driver", cfg.StoreDriver).Msg("Initializing router")

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// 1. Storage
	var (
		store *repository.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("Using in-memory store, data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		var err error
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		logger.Info().Msg("Database connection successful")

		if err := repository.Migrate(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		store = repository.NewPostgresStore(pool, repository.RetryPolicy{MaxElapsed: cfg.StoreRetryMaxElapsed()})
	}

	// 2. Image storage
	var images service.ImageStore = service.PassthroughImageStore{}
	if cfg.S3Bucket != "" {
		s3Client, err := service.NewS3Client(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		images = service.NewS3ImageStore(s3Client, cfg.S3Bucket, cfg.PresignExpiry(), logger)
	}

	// 3. Account event publisher
	var publisher pubsub.Publisher = pubsub.NoopPublisher{}
	if cfg.PubSubAccountEventsTopic != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("creating Pub/Sub publisher: %w", err)
		}
		closers = append(closers, func() {
			if err := p.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close Pub/Sub publisher")
			}
		})
		publisher = p
	}

	// 4. Auth, validation, metrics
	verifier, err := util.NewJWTVerifier(cfg.JWTVerificationKey)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("loading JWT verification key: %w", err)
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	m := metrics.New()

	// 5. Services & handlers
	clock := service.SystemClock{}
	usageSvc := service.NewUsageService(store.Accounts, clock, cfg.UpgradeURL(), m, logger)
	identitySvc := service.NewIdentityService(store.Accounts, logger)
	subSvc := service.NewSubscriptionService(store.Accounts, clock, publisher, cfg.PubSubAccountEventsTopic, logger)
	stripeSvc := service.NewStripeService(cfg, service.NewStripeClient(cfg.StripeSecretKey), store.Accounts, subSvc, logger)
	provider := service.NewOpenRouterProvider(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.SiteURL, cfg.GenerationTimeout(), nil)
	thumbSvc := service.NewThumbnailService(store.Thumbnails, usageSvc, provider, images, cfg.ImageModelDefault, cfg.GenerationTimeout(), m, logger)

	webhookHandler, err := handler.NewWebhookHandler(stripeSvc, identitySvc, store.WebhookFailures, cfg.IdentityWebhookSecret, m, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	usageHandler := handler.NewUsageHandler(usageSvc, validate, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(stripeSvc, validate, logger)
	thumbnailHandler := handler.NewThumbnailHandler(thumbSvc, validate, logger)

	// 6. Routes
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{strings.TrimRight(cfg.SiteURL, "/")},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggerMiddleware(logger, m))
	r.Use(c.Handler)

	r.Get("/healthz", healthz(pool))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	webhookHandler.RegisterRoutes(r)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(verifier, logger))
		usageHandler.RegisterRoutes(r)
		subscriptionHandler.RegisterRoutes(r)
		thumbnailHandler.RegisterRoutes(r)
	})

	logger.Info().Msg("Router initialized")
	return r, cleanup, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.DBConnectionString
	// Local databases usually run without TLS.
	if cfg.Env == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			separator = "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}
		}
		dsn += separator + "sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DB connection string: %w", err)
	}
	// Transaction poolers such as pgbouncer reject server-side prepared statements.
	if cfg.Env != "development" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening DB pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging DB: %w", err)
	}
	return pool, nil
}

func healthz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}
}
