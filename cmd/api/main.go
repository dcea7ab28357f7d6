package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gigmarket/api/internal/handlers"
	"github.com/gigmarket/api/internal/payments"
	"github.com/gigmarket/api/internal/platform/auth"
	"github.com/gigmarket/api/internal/platform/config"
	pfirestore "github.com/gigmarket/api/internal/platform/firestore"
	"github.com/gigmarket/api/internal/platform/idempotency"
	"github.com/gigmarket/api/internal/platform/jobs"
	"github.com/gigmarket/api/internal/platform/observability"
	"github.com/gigmarket/api/internal/platform/secrets"
	"github.com/gigmarket/api/internal/repositories"
	firestoreRepo "github.com/gigmarket/api/internal/repositories/firestore"
	memoryRepo "github.com/gigmarket/api/internal/repositories/memory"
	postgresRepo "github.com/gigmarket/api/internal/repositories/postgres"
	"github.com/gigmarket/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_SECURITY_ENVIRONMENT"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.registry.Close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()
	registry := store.registry

	sink, err := newNotificationSink(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise notification sink", zap.Error(err))
	}
	defer sink.close()

	emitter, err := services.NewNotificationEmitter(services.NotificationEmitterDeps{
		Publisher: sink.publisher,
		Outbox:    registry.Notifications(),
		QueueSize: cfg.Notifications.QueueSize,
		Workers:   cfg.Notifications.Workers,
		Logger:    observability.ServiceLogger(logger.Named("notifications")),
	})
	if err != nil {
		logger.Fatal("failed to initialise notification emitter", zap.Error(err))
	}

	paymentManager, sandbox, err := newPaymentManager(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	gigService, err := services.NewGigService(services.GigServiceDeps{
		Gigs:   registry.Gigs(),
		Logger: observability.ServiceLogger(logger.Named("gigs")),
	})
	if err != nil {
		logger.Fatal("failed to initialise gig service", zap.Error(err))
	}
	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Gigs:       registry.Gigs(),
		Orders:     registry.Orders(),
		Sessions:   registry.CheckoutSessions(),
		Payments:   paymentManager,
		Notifier:   emitter,
		Logger:     observability.ServiceLogger(logger.Named("checkout")),
		SuccessURL: cfg.Payments.SuccessURL,
		CancelURL:  cfg.Payments.CancelURL,
		SessionTTL: cfg.Payments.SessionTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             registry.Orders(),
		Notifier:           emitter,
		Logger:             observability.ServiceLogger(logger.Named("orders")),
		TransitionAttempts: cfg.Orders.TransitionAttempts,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}
	reviewService, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:  registry.Reviews(),
		Orders:   registry.Orders(),
		Notifier: emitter,
		Logger:   observability.ServiceLogger(logger.Named("reviews")),
	})
	if err != nil {
		logger.Fatal("failed to initialise review service", zap.Error(err))
	}
	ratingService, err := services.NewRatingService(services.RatingServiceDeps{
		Ratings: registry.Ratings(),
		Reviews: registry.Reviews(),
		Logger:  observability.ServiceLogger(logger.Named("ratings")),
	})
	if err != nil {
		logger.Fatal("failed to initialise rating service", zap.Error(err))
	}

	systemService, err := newSystemService(store.checks, sink.check, fetcher, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	idempotencyMiddleware := idempotency.Middleware(store.idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService,
		handlers.WithCheckoutRateLimits(cfg.RateLimits.CheckoutPerMinute, cfg.RateLimits.ConfirmPerMinute),
		handlers.WithCheckoutIdempotency(idempotencyMiddleware),
	)
	gigHandlers := handlers.NewGigHandlers(authenticator, gigService, reviewService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, reviewService)
	userHandlers := handlers.NewUserHandlers(authenticator, ratingService, reviewService)
	internalHandlers := handlers.NewInternalJobHandlers(emitter, ratingService, cfg.Notifications.RetryBatch)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.RequestLoggerMiddleware(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithGigRoutes(gigHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithUserRoutes(userHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(logger.Named("auth"), cfg)),
	}
	if secret := strings.TrimSpace(cfg.Payments.StripeWebhookSecret); secret != "" {
		verifier, err := payments.NewStripeWebhookVerifier(secret)
		if err != nil {
			logger.Fatal("failed to initialise webhook verifier", zap.Error(err))
		}
		opts = append(opts, handlers.WithWebhookRoutes(handlers.NewPaymentWebhookHandlers(verifier, checkoutService).Routes))
	} else {
		logger.Warn("payments: webhook secret not configured; stripe webhooks disabled")
	}
	if sandbox != nil {
		opts = append(opts, handlers.WithSandboxRoutes(handlers.NewSandboxCheckoutHandlers(sandbox).Routes))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	retryCtx, retryCancel := context.WithCancel(context.Background())
	var retryWG sync.WaitGroup
	retryWG.Add(1)
	go func() {
		defer retryWG.Done()
		runOutboxRetry(retryCtx, emitter, cfg.Notifications, logger.Named("notifications"))
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
	go func() {
		serverLogger.Info("gigmarket api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	retryCancel()
	retryWG.Wait()
	if err := emitter.Close(shutdownCtx); err != nil {
		logger.Warn("notification emitter close error", zap.Error(err))
	}
}

// storeBackend bundles the persistence pieces selected by API_STORE_DRIVER.
type storeBackend struct {
	registry    repositories.Registry
	idempotency idempotency.Store
	checks      []repositories.DependencyCheck
}

func openStore(ctx context.Context, cfg config.Config) (storeBackend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		reg, err := postgresRepo.Open(ctx, cfg.Postgres)
		if err != nil {
			return storeBackend{}, err
		}
		return storeBackend{
			registry:    reg,
			idempotency: idempotency.NewPostgresStore(reg.Pool()),
			checks: []repositories.DependencyCheck{
				{Name: "postgres", Timeout: 1500 * time.Millisecond, Check: reg.Ping},
			},
		}, nil
	case config.StoreDriverMemory:
		return storeBackend{
			registry:    memoryRepo.NewRegistry(memoryRepo.NewStore()),
			idempotency: idempotency.NewMemoryStore(),
		}, nil
	default:
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		if _, err := provider.Client(ctx); err != nil {
			return storeBackend{}, err
		}
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return storeBackend{}, err
		}
		return storeBackend{
			registry:    reg,
			idempotency: idempotency.NewFirestoreStore(provider, ""),
			checks: []repositories.DependencyCheck{
				{Name: "firestore", Timeout: 1500 * time.Millisecond, Check: provider.Ping},
			},
		}, nil
	}
}

// notificationSink is the external delivery target for the emitter plus its health probe.
type notificationSink struct {
	publisher services.NotificationPublisher
	check     *repositories.DependencyCheck
	close     func()
}

func newNotificationSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (notificationSink, error) {
	if cfg.Notifications.Publisher == config.PublisherLog {
		return notificationSink{
			publisher: services.LoggingNotificationPublisher{Logger: observability.ServiceLogger(logger.Named("notifications"))},
			close:     func() {},
		}, nil
	}

	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID, clientOpts...)
	if err != nil {
		return notificationSink{}, fmt.Errorf("pubsub: create client: %w", err)
	}
	topic := client.Topic(cfg.Notifications.Topic)
	publisher, err := jobs.NewPubSubNotificationPublisher(topic)
	if err != nil {
		_ = client.Close()
		return notificationSink{}, err
	}
	return notificationSink{
		publisher: publisher,
		check: &repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", cfg.Notifications.Topic)
				}
				return nil
			},
		},
		close: func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		},
	}, nil
}

func newPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, *payments.SandboxProvider, error) {
	if key := strings.TrimSpace(cfg.Payments.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: observability.ServiceLogger(logger.Named("payments")),
		})
		if err != nil {
			return nil, nil, err
		}
		manager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripeProvider})
		return manager, nil, err
	}

	logger.Warn("payments: stripe api key not configured; using sandbox gateway")
	sandbox := payments.NewSandboxProvider("http://localhost:"+cfg.Server.Port, cfg.Payments.SandboxAutoPay)
	manager, err := payments.NewManager(map[string]payments.Provider{"sandbox": sandbox}, payments.WithDefaultProvider("sandbox"))
	if err != nil {
		return nil, nil, err
	}
	return manager, sandbox, nil
}

func runOutboxRetry(ctx context.Context, emitter services.NotificationEmitter, cfg config.NotificationsConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, cfg.RetryInterval)
			result, err := emitter.RetryPending(runCtx, cfg.RetryBatch)
			cancel()
			if err != nil {
				logger.Error("outbox retry failed", zap.Error(err))
				continue
			}
			if result.Attempted > 0 {
				logger.Info("outbox retry completed",
					zap.Int("attempted", result.Attempted),
					zap.Int("delivered", result.Delivered),
					zap.Int("failed", result.Failed),
				)
			}
		}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(storeChecks []repositories.DependencyCheck, sinkCheck *repositories.DependencyCheck, fetcher *secrets.Fetcher, build services.BuildInfo) (services.SystemService, error) {
	checks := append([]repositories.DependencyCheck(nil), storeChecks...)
	if sinkCheck != nil {
		checks = append(checks, *sinkCheck)
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if errors.Is(err, secrets.ErrSecretNotFound) || status.Code(errors.Unwrap(err)) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Build:            build,
	})
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	return auth.NewOIDCValidator(cache, logger).RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(defaultProject),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve for the configured gateway and store.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
		required = append(required, "Payments.StripeAPIKey", "Payments.StripeWebhookSecret")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_STORE_DRIVER"]), config.StoreDriverPostgres) {
		required = append(required, "Postgres.DSN")
	}
	return required
}
