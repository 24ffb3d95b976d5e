package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"cpg-mentor/internal/cache"
	"cpg-mentor/internal/config"
	"cpg-mentor/internal/core"
	"cpg-mentor/internal/db"
	httpserver "cpg-mentor/internal/http"
	"cpg-mentor/internal/llm"
	"cpg-mentor/internal/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server exited", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbConn.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := db.Migrate(ctx, dbConn); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	repo := db.NewRepository(dbConn)

	var refs core.ReferenceStore = repo
	if cfg.RedisURL != "" {
		provider, err := cache.NewRedisProvider(ctx, cfg.RedisURL)
		if err != nil {
			// the cache is optional; serve straight from Postgres
			log.Warn("redis unavailable, reference cache disabled", "error", err)
		} else {
			defer provider.Close()
			refs = cache.NewReferenceCache(repo, provider, cfg.ReferenceCacheTTL, log)
			log.Info("reference cache enabled", "ttl", cfg.ReferenceCacheTTL.String())
		}
	}

	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is empty; model calls will fail")
	}
	llmClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIMaxTokens)
	notifier := db.NewNotifier(dbConn, cfg.NotifyChannel)
	chat := core.NewChatService(refs, repo, notifier, llmClient, log, core.WithModelTimeout(cfg.LLMTimeout))

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpserver.NewRouter(httpserver.NewServer(chat, chat.Lifecycle(), log), log)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr(), "model", cfg.OpenAIChatModel)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
