package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/antoinelm/listful/internal/cache"
	"github.com/antoinelm/listful/internal/config"
	"github.com/antoinelm/listful/internal/identify"
	"github.com/antoinelm/listful/internal/listing"
	"github.com/antoinelm/listful/internal/llm"
	"github.com/antoinelm/listful/internal/metrics"
	"github.com/antoinelm/listful/internal/ocr"
	"github.com/antoinelm/listful/internal/pipeline"
	"github.com/antoinelm/listful/internal/pricing"
	"github.com/antoinelm/listful/internal/server"
	"github.com/antoinelm/listful/internal/shopping"
	"github.com/antoinelm/listful/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg := config.FromEnv()

	if cfg.GeminiAPIKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY environment variable is required")
	}
	if cfg.SerpAPIKey == "" {
		log.Fatal().Msg("SERPAPI_API_KEY environment variable is required")
	}
	if cfg.HistorySecret == "" {
		log.Fatal().Msg("LISTFUL_HISTORY_SECRET environment variable is required")
	}

	metrics.Init()

	encryptionKey, err := storage.DeriveKey(cfg.HistorySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath, encryptionKey, cfg.DailyQuota)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gemini, err := llm.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini client")
	}
	log.Info().Msg("gemini client initialized")

	ocrClient := ocr.NewClient(ocr.ClientOpts{
		BaseURL: cfg.OCRBaseURL,
		APIKey:  cfg.OCRAPIKey,
		Timeout: cfg.ProviderTimeout,
		Retries: cfg.ProviderRetries,
	})
	shoppingClient := shopping.NewClient(shopping.ClientOpts{
		APIKey:  cfg.SerpAPIKey,
		Timeout: cfg.ProviderTimeout,
		Retries: cfg.ProviderRetries,
	})

	engine := identify.NewEngine(gemini, ocrClient, cfg.VisionThreshold)
	estimator := pricing.NewEstimator(shoppingClient, pricing.Config{
		MinPrice:   cfg.OutlierMinPrice,
		MaxShare:   cfg.OutlierMaxShare,
		TriggerMax: cfg.OutlierTrigger,
	})
	generator := listing.NewGenerator(gemini)

	svc := pipeline.NewService(
		engine,
		estimator,
		generator,
		cache.NewMemory(),
		store,
		store,
		pipeline.Config{
			VisionCacheTTL:     cfg.VisionCacheTTL,
			PriceCacheTTL:      cfg.PriceCacheTTL,
			CacheMinConfidence: cfg.CacheMinConf,
		},
	)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(svc, store).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("bye")
}
