package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/lmittmann/tint"

	"github.com/swapgrid/swapgrid/internal/api"
	"github.com/swapgrid/swapgrid/internal/checkout"
	"github.com/swapgrid/swapgrid/internal/config"
	"github.com/swapgrid/swapgrid/internal/feed"
	"github.com/swapgrid/swapgrid/internal/prefs"
	"github.com/swapgrid/swapgrid/internal/ratelimit"
	"github.com/swapgrid/swapgrid/internal/source"
)

func main() {
	cfg := config.Load()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLogLevel(cfg.LogLevel),
		TimeFormat: "2006-01-02 15:04:05",
	}))

	src, err := openSource(cfg, logger)
	if err != nil {
		logger.Error("failed to open offer source", "source", cfg.Source, "error", err)
		os.Exit(1)
	}
	defer src.Close()

	var slot prefs.Slot
	if cfg.Ephemeral {
		slot = prefs.NewMemorySlot()
	} else {
		fileSlot := prefs.NewFileSlot(cfg.VotesDir)
		logger.Info("vote preferences slot ready", "path", fileSlot.Path())
		slot = fileSlot
	}

	store := feed.New(src, slot, cfg.PageSize, logger)

	// Warm the first page so the feed is not empty on the first render.
	go func() {
		if err := store.LoadNextPage(context.Background()); err != nil {
			logger.Warn("initial page load failed", "error", err)
		}
	}()

	orders := checkout.NewService(store, logger)

	limiter := ratelimit.NewSlidingWindow()
	limiter.StartCleanup(5*time.Minute, cfg.RateLimitWindow)

	handler := api.NewHandler(store, src, orders, limiter, cfg, logger)

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Info("starting swapgrid", "addr", addr, "source", cfg.Source, "page_size", cfg.PageSize)

	server := &http.Server{
		Addr:        addr,
		Handler:     api.LogRequests(logger, corsMiddleware(handler.Routes())),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the SSE feed stream stays open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	// Let in-flight vote reconciliations settle before the source closes.
	store.Wait()

	logger.Info("stopped")
}

func openSource(cfg *config.Config, logger *slog.Logger) (source.Source, error) {
	switch cfg.Source {
	case "fixture":
		return source.NewFixture(source.FixtureConfig{
			Path:    cfg.FixturePath,
			Latency: cfg.SourceLatency,
		})

	case "sqlite":
		s, err := source.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		// Seed an empty database from the embedded fixture so a fresh
		// install has something to browse.
		page, err := s.FetchPage(context.Background(), 0, 1)
		if err != nil {
			s.Close()
			return nil, err
		}
		if page.Total == 0 {
			offers, err := source.EmbeddedOffers()
			if err != nil {
				s.Close()
				return nil, err
			}
			if err := s.Import(context.Background(), offers); err != nil {
				s.Close()
				return nil, err
			}
			logger.Info("seeded sqlite source from embedded fixture", "offers", len(offers))
		}
		return s, nil

	case "remote":
		return source.NewRemote(cfg.RemoteURL), nil

	default:
		return nil, fmt.Errorf("unknown SOURCE %q (want fixture, sqlite or remote)", cfg.Source)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
