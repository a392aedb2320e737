package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cobrain-app/cobrain-sync/internal/config"
	"github.com/cobrain-app/cobrain-sync/internal/server"
	"github.com/cobrain-app/cobrain-sync/internal/server/auth"
	"github.com/cobrain-app/cobrain-sync/internal/server/store"
	storesqlite "github.com/cobrain-app/cobrain-sync/internal/server/store/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env опционален, в продакшене конфигурация приходит из окружения
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting sync server",
		"version", Version,
		"build_date", BuildDate,
		"git_commit", GitCommit,
		"addr", cfg.ListenAddr,
		"store", cfg.StoreBackend,
	)

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changeStore, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := server.New(verifier, changeStore, cfg.AuthTimeout, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Сначала закрываем websocket соединения, затем HTTP сервер
	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildVerifier выбирает механизм аутентификации из конфигурации:
// JWT при наличии секрета, иначе статическая таблица токенов.
func buildVerifier(cfg *config.Config, logger *slog.Logger) (auth.Verifier, error) {
	if cfg.JWTSecret != "" {
		return auth.NewJWTVerifier([]byte(cfg.JWTSecret)), nil
	}

	tokens, err := auth.ParseTokenTable(cfg.AuthTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SYNC_AUTH_TOKENS: %w", err)
	}

	if len(tokens) == 0 {
		logger.Warn("no auth tokens configured, enabling dev fallback token",
			"token", auth.DevFallbackToken,
			"user_id", auth.DevFallbackUserID,
		)
		tokens[auth.DevFallbackToken] = auth.DevFallbackUserID
	}

	return auth.NewStaticVerifier(tokens), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.ChangeStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		st, err := storesqlite.New(ctx, cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}
