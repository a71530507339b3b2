package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"qbank/api/internal/app"
	"qbank/api/internal/archive"
	"qbank/api/internal/cache"
	"qbank/api/internal/config"
	"qbank/api/internal/roles"
	"qbank/api/internal/search"
	"qbank/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "qbank-api").Logger()

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var snapshots *cache.Snapshots
	if strings.TrimSpace(cfg.RedisURL) != "" {
		snapshots, err = cache.New(cfg.RedisURL, cfg.CacheTTL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer snapshots.Close()
	} else {
		log.Warn().Msg("snapshot cache disabled, every read hits the database")
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	if meiliClient != nil {
		// Rebuild the summary index from Postgres so a fresh or wiped
		// Meilisearch instance converges without manual intervention.
		go searchService.ReindexAllFromPG(ctx)
	}

	var archiveService *archive.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiveService, err = archive.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("archive storage unavailable")
		}
	} else {
		log.Warn().Msg("archive storage disabled, hard deletes will not be archived")
	}

	service := app.New(cfg, dataStore, snapshots, roles.NewChecker(dataStore), searchService, archiveService, log)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("qbank API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
