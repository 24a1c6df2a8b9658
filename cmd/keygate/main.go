package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keygate/internal/background"
	"github.com/dropDatabas3/keygate/internal/cache"
	"github.com/dropDatabas3/keygate/internal/config"
	devctrl "github.com/dropDatabas3/keygate/internal/http/controllers/developer"
	oauthctrl "github.com/dropDatabas3/keygate/internal/http/controllers/oauth"
	"github.com/dropDatabas3/keygate/internal/http/router"
	devsvc "github.com/dropDatabas3/keygate/internal/http/services/developer"
	oauthsvc "github.com/dropDatabas3/keygate/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/rate"
	"github.com/dropDatabas3/keygate/internal/store/pg"
	"github.com/dropDatabas3/keygate/internal/webhook"
)

// version se inyecta en build time via -ldflags.
var version = "dev"

func main() {
	// .env opcional; en prod las variables vienen del entorno real
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "keygate",
		Short: "OAuth2 authorization server con webhooks de eventos",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("CONFIG_PATH"),
		"Ruta del config YAML (opcional; sin archivo arranca solo con env)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Arranca el servidor HTTP y el sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cfgPath)
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Corre una pasada de purga y reintentos y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweepOnce(cfgPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("keygate", version)
		},
	}

	root.AddCommand(serveCmd, migrateCmd, sweepCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// app agrupa la infraestructura compartida entre comandos.
type app struct {
	cfg    *config.Config
	store  *pg.Store
	cache  cache.Client
	engine *webhook.Engine
}

func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "keygate",
		Version:     version,
	})

	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: mustDur(cfg.Cache.Memory.DefaultTTL),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	engine := webhook.NewEngine(store.Webhooks(), store.Deliveries(), webhook.Config{
		Timeout:     cfg.WebhookTimeout(),
		BaseDelay:   cfg.WebhookBaseDelay(),
		MaxAttempts: cfg.Webhook.MaxAttempts,
	})

	return &app{cfg: cfg, store: store, cache: cacheClient, engine: engine}, nil
}

func (a *app) close() {
	_ = a.cache.Close()
	a.store.Close()
}

func (a *app) limiter() rate.Limiter {
	if a.cfg.Cache.Kind == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr: a.cfg.Cache.Redis.Addr,
			DB:   a.cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "rl:", 60, time.Minute)
	}
	return rate.NewMemoryLimiter(60, time.Minute)
}

func runServe(cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	log := logger.L()

	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	cfg := a.cfg
	issuer := jwtx.NewIssuer(cfg.JWT.Issuer, []byte(cfg.JWT.Secret), cfg.AccessTTL())

	tokenService := oauthsvc.NewTokenService(oauthsvc.TokenDeps{
		Clients:       a.store.Clients(),
		Codes:         a.store.Codes(),
		AccessTokens:  a.store.AccessTokens(),
		RefreshTokens: a.store.RefreshTokens(),
		Issuer:        issuer,
		Cache:         a.cache,
		Events:        a.engine,
		RefreshTTL:    cfg.RefreshTTL(),
	})
	authorizeService := oauthsvc.NewAuthorizeService(oauthsvc.AuthorizeDeps{
		Clients: a.store.Clients(),
		Codes:   a.store.Codes(),
		Events:  a.engine,
		CodeTTL: cfg.CodeTTL(),
	})
	revokeService := oauthsvc.NewRevokeService(oauthsvc.RevokeDeps{
		Clients:       a.store.Clients(),
		AccessTokens:  a.store.AccessTokens(),
		RefreshTokens: a.store.RefreshTokens(),
		Issuer:        issuer,
		Events:        a.engine,
	})
	verifyService := oauthsvc.NewVerifyService(oauthsvc.VerifyDeps{
		AccessTokens: a.store.AccessTokens(),
		Issuer:       issuer,
	})
	clientService := devsvc.NewClientService(devsvc.ClientDeps{
		Clients: a.store.Clients(),
		Cache:   a.cache,
		Events:  a.engine,
	})
	webhookService := devsvc.NewWebhookService(devsvc.WebhookDeps{
		Clients:    a.store.Clients(),
		Webhooks:   a.store.Webhooks(),
		Deliveries: a.store.Deliveries(),
	})

	handler := router.New(router.Deps{
		OAuth: router.OAuthControllers{
			Authorize: oauthctrl.NewAuthorizeController(authorizeService),
			Token:     oauthctrl.NewTokenController(tokenService),
			Revoke:    oauthctrl.NewRevokeController(revokeService),
			UserInfo:  oauthctrl.NewUserInfoController(verifyService),
			Discovery: oauthctrl.NewDiscoveryController(cfg.JWT.Issuer),
		},
		Developer: router.DeveloperControllers{
			Clients:  devctrl.NewClientsController(clientService),
			Webhooks: devctrl.NewWebhooksController(webhookService),
		},
		Issuer:   issuer,
		Limiter:  a.limiter(),
		Registry: registry,
		Health: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return a.store.Ping(pingCtx)
		},
	})

	sweeper := background.NewSweeper(
		a.store.Codes(), a.store.AccessTokens(), a.store.RefreshTokens(),
		a.store.Deliveries(), a.engine,
		background.Config{
			Interval:          cfg.SweepInterval(),
			RetryInterval:     cfg.SweepRetryInterval(),
			DeliveryRetention: time.Duration(cfg.Webhook.RetentionDays) * 24 * time.Hour,
		},
	)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.L().Info("migrations applied")
	return nil
}

func runSweepOnce(cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, step := range []struct {
		table string
		run   func(context.Context) (int64, error)
	}{
		{"auth_code", a.store.Codes().DeleteDead},
		{"access_token", a.store.AccessTokens().DeleteDead},
		{"refresh_token", a.store.RefreshTokens().DeleteDead},
	} {
		n, err := step.run(ctx)
		if err != nil {
			return fmt.Errorf("purge %s: %w", step.table, err)
		}
		logger.L().Info("purged", logger.String("table", step.table), logger.Any("rows", n))
	}

	cutoff := time.Now().Add(-time.Duration(a.cfg.Webhook.RetentionDays) * 24 * time.Hour)
	n, err := a.store.Deliveries().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge webhook_delivery: %w", err)
	}
	logger.L().Info("purged", logger.String("table", "webhook_delivery"), logger.Any("rows", n))

	retried, err := a.engine.SweepRetries(ctx)
	if err != nil {
		return fmt.Errorf("sweep retries: %w", err)
	}
	logger.L().Info("deliveries retried", logger.Any("count", retried))
	return nil
}

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
