package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/Shay-Sh/BizOSV1-sub000/pkg/api/v1"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/archive"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/auth"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/classify"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/engine"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/oauth"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/scheduler"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

const defaultShutdownTimeout = 30 * time.Second

type Gateway struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient
	Backend     repository.BackendRepository
	Engine      *engine.Engine

	httpServer *http.Server
	echo       *echo.Echo
	ctx        context.Context
	cancelFunc context.CancelFunc

	baseRouteGroup *echo.Group
	rootRouteGroup *echo.Group

	poller *scheduler.Poller
	done   chan struct{}
}

func NewGateway() (*Gateway, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return nil, err
	}
	return NewGatewayWithConfig(configManager.GetConfig())
}

// NewGatewayWithConfig connects storage and builds the engine for config
func NewGatewayWithConfig(config types.AppConfig) (*Gateway, error) {
	if config.PrettyLogs {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		Config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}

	if err := g.initStorage(); err != nil {
		cancel()
		return nil, err
	}

	if err := g.initEngine(); err != nil {
		cancel()
		g.closeStorage()
		return nil, err
	}

	return g, nil
}

func (g *Gateway) initStorage() error {
	if g.Config.IsLocalMode() {
		log.Info().Msg("running in local mode - Redis and Postgres disabled")
		g.Backend = repository.NewMemoryBackend()
		return nil
	}

	if g.Config.Database.Redis.IsConfigured() {
		rdb, err := common.NewRedisClient(g.Config.Database.Redis, common.WithClientName("MailflowGateway"))
		if err != nil {
			return err
		}
		g.RedisClient = rdb
	} else {
		log.Warn().Msg("redis not configured - token refresh and schedule locks are process-local")
	}

	secrets, err := common.NewSecretBox(g.Config.Security.SecretKey)
	if err != nil {
		return fmt.Errorf("load secret key: %w", err)
	}
	if !secrets.Enabled() {
		log.Warn().Msg("security.secretKey not set - credentials are stored unencrypted")
	}

	backend, err := repository.NewPostgresBackend(g.ctx, g.Config.Database.Postgres, secrets)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	g.Backend = backend

	unlock, err := g.initLock("migrations")
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer unlock()

	if _, err := backend.RunMigrations(g.ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (g *Gateway) initLock(name string) (func(), error) {
	// Skip locking without Redis
	if g.RedisClient == nil {
		return func() {}, nil
	}

	lockKey := common.Keys.GatewayInitLock(name)
	lock := common.NewRedisLock(g.RedisClient)

	if err := lock.Acquire(g.ctx, lockKey, common.RedisLockOptions{TtlS: 60, Retries: 300}); err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Release(lockKey); err != nil {
			log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release init lock")
		}
	}, nil
}

func (g *Gateway) initEngine() error {
	policy := retry.FromConfig(g.Config.Engine.Retry)

	google := oauth.NewGoogleClient(g.Config.OAuth.Google)
	if !google.IsConfigured() {
		log.Warn().Msg("google oauth client not configured - expired mailbox tokens cannot be refreshed")
	}
	tokens := oauth.NewTokenManager(g.Backend, google, g.Config.OAuth, g.RedisClient)

	var archiver engine.Archiver
	if g.Config.Archive.Enabled {
		store, err := archive.NewSnapshotStore(g.ctx, g.Config.Archive)
		if err != nil {
			return fmt.Errorf("create snapshot store: %w", err)
		}
		archiver = store
		log.Info().Str("bucket", g.Config.Archive.S3.Bucket).Msg("execution snapshots archived to s3")
	}

	classifiers := classify.NewRouter(g.Config.Classification, g.Backend, policy)

	g.Engine = engine.New(g.Config.Engine, engine.Dependencies{
		Agents:      g.Backend,
		Logs:        g.Backend,
		Mailbox:     mailbox.NewClient(g.Config.Mailbox, tokens, policy),
		Classifiers: classifiers,
		Archive:     archiver,
	})

	if g.Config.Scheduler.Enabled {
		g.poller = scheduler.NewPoller(g.Backend, g.Engine, g.RedisClient, g.Config.Scheduler)
	}
	return nil
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	if g.Config.Gateway.HTTP.EnablePrettyLogs {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: g.Config.Gateway.HTTP.CORS.AllowedOrigins,
		AllowHeaders: g.Config.Gateway.HTTP.CORS.AllowedHeaders,
		AllowMethods: g.Config.Gateway.HTTP.CORS.AllowedMethods,
	}))

	e.Use(middleware.Recover())

	g.echo = e
	g.httpServer = &http.Server{
		Addr:    g.httpAddr(),
		Handler: e,
	}

	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute)
	g.rootRouteGroup = e.Group(apiv1.HttpServerRootRoute)

	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), g.Backend, g.RedisClient)
	g.rootRouteGroup.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	sessions := auth.NewSessionManager(g.Config.Gateway.JWTSecret)
	if g.Config.Gateway.AuthToken == "" && !sessions.Enabled() {
		log.Warn().Msg("neither gateway.authToken nor gateway.jwtSecret is set - user APIs will reject every request")
	}
	userAuth := apiv1.NewUserAuthMiddleware(apiv1.UserAuthConfig{
		AdminToken: g.Config.Gateway.AuthToken,
		Sessions:   sessions,
	})

	apiv1.NewAgentsGroup(g.baseRouteGroup.Group("/agents", userAuth), g.Backend, g.Engine)
	apiv1.NewCredentialsGroup(g.baseRouteGroup.Group("/credentials", userAuth), g.Backend)

	return nil
}

func (g *Gateway) httpAddr() string {
	return fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port)
}

// StartAsync starts the HTTP server and the schedule poller without blocking
func (g *Gateway) StartAsync() error {
	if err := g.initHTTP(); err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	lis, err := net.Listen("tcp", g.httpAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on http: %w", err)
	}

	go func() {
		if err := g.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	if g.poller != nil {
		go func() {
			defer close(g.done)
			g.poller.Start(g.ctx)
		}()
	} else {
		close(g.done)
	}

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Str("mode", g.Config.Mode).
		Bool("scheduler", g.poller != nil).
		Msg("gateway http server running")

	return nil
}

func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	g.Shutdown()

	return nil
}

// Shutdown stops accepting requests, waits for the poller and closes storage
func (g *Gateway) Shutdown() {
	timeout := g.Config.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	if g.httpServer != nil {
		eg.Go(func() error {
			return g.httpServer.Shutdown(ctx)
		})
	}

	g.cancelFunc()
	eg.Go(func() error {
		select {
		case <-g.done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("schedule poller: %w", ctx.Err())
		}
	})

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to shutdown gateway gracefully")
	}

	g.closeStorage()
	log.Info().Msg("gateway stopped")
}

func (g *Gateway) closeStorage() {
	if g.Backend != nil {
		if err := g.Backend.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close backend")
		}
	}
	if g.RedisClient != nil {
		if err := g.RedisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}
}

// Echo exposes the router for tests and embedding
func (g *Gateway) Echo() *echo.Echo {
	return g.echo
}
