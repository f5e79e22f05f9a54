package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/madnificent/mu-image-service/image/application"
	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/image/persistence"
	"github.com/madnificent/mu-image-service/image/resize"
	"github.com/madnificent/mu-image-service/internal/middleware"
	"github.com/madnificent/mu-image-service/internal/rest"
	"github.com/madnificent/mu-image-service/shared/blobstore"
	"github.com/madnificent/mu-image-service/shared/db/sqlite"
	"github.com/madnificent/mu-image-service/shared/sparql"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig(persistence.DefaultGraph)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	blobs, err := blobstore.New(cfg.ShareFolder)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.ShareFolder).Msg("Failed to initialize blob store")
	}

	metadata, cleanup, err := newMetadataStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metadata store")
	}
	defer cleanup()

	resolver := application.NewResolver(metadata, blobs, resize.NewEngine())
	defer func() {
		if err := resolver.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to gracefully close resolver")
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.CustomRecovery(middleware.HandlePanics()))
	rest.NewApi(router, resolver)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("store", cfg.MetadataStore).
			Str("share", cfg.ShareFolder).
			Msg("Starting image service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to shutdown server")
	}

	// The deferred resolver.Close waits for in-flight write-behind
	// persistence before the metadata store is torn down.
	log.Info().Msg("Server stopped")
}

// newMetadataStore selects the configured backend: the SPARQL endpoint of
// the surrounding stack, or an embedded SQLite database for standalone
// deployments.
func newMetadataStore(cfg *config) (domain.MetadataStore, func(), error) {
	switch cfg.MetadataStore {
	case storeSQLite:
		database := sqlite.NewDB(sqlite.NewConfig())
		if err := database.Connect(); err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := database.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
		return persistence.NewSQLiteStore(database.DB()), cleanup, nil

	default:
		client := sparql.NewClient(sparql.NewConfig().Endpoint)
		return persistence.NewSPARQLStore(client, cfg.ApplicationGraph), func() {}, nil
	}
}
