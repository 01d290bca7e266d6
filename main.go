package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"exto/internal/api"
	"exto/internal/auth"
	"exto/internal/cache"
	"exto/internal/config"
	"exto/internal/filestore"
	"exto/internal/logging"
	"exto/internal/redis"
	"exto/internal/service/account"
	"exto/internal/service/catalog"
	"exto/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := os.Getenv("EXTO_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("info")
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.Setup(cfg.BasicConfig.LogLevel)
	if !strings.EqualFold(cfg.BasicConfig.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	dbType := cfg.BasicConfig.DatabaseType
	logger.Info().Str("db_type", dbType).Msg("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Create necessary tables: users, user_tokens, products, product_images
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCache := newCache(ctx, cfg)

	files, err := filestore.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init file store")
	}

	authService := auth.NewService(db, appCache, time.Duration(cfg.BasicConfig.TokenTTL)*time.Minute)
	authService.StartTokenSweeper(ctx, auth.DefaultSweepInterval)

	handler := api.NewHandler(
		account.NewService(db),
		catalog.NewService(db, appCache, files),
		authService,
		files,
	)
	opts := api.RouterOptions{Logger: logger, AllowOrigins: cfg.BasicConfig.AllowOrigins}
	if local, ok := files.(*filestore.Local); ok {
		opts.UploadDir = local.Dir()
	}
	router := api.NewRouter(handler, opts)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}

// newCache connects to redis when it is configured. A failed connection leaves the
// facade enabled; every operation then degrades to its cold-cache default.
func newCache(ctx context.Context, cfg *config.Config) *cache.Cache {
	if !cfg.Redis.Enabled() {
		log.Info().Msg("redis not configured, caching disabled")
		return cache.New(redis.Noop{}, false)
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("invalid redis configuration, caching disabled")
		return cache.New(redis.Noop{}, false)
	}
	c := cache.New(client, true)
	if err := c.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, will retry on demand")
	} else {
		log.Info().Msg("redis connected")
	}
	return c
}
