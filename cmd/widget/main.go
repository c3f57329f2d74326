package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/backend"
	"github.com/zhouzirui/doctor-chat/internal/config"
	"github.com/zhouzirui/doctor-chat/internal/handler"
	"github.com/zhouzirui/doctor-chat/internal/middleware"
	"github.com/zhouzirui/doctor-chat/internal/observability/metrics"
	"github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/pkg/logging"
	"github.com/zhouzirui/doctor-chat/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("failed to initialise logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	chatMetrics := metrics.NewChatMetrics(registry)

	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithChatTimeout(cfg.Backend.ChatTimeout),
		backend.WithResetTimeout(cfg.Backend.ResetTimeout),
	)
	if err != nil {
		logger.Fatal("invalid backend configuration", zap.Error(err))
	}

	chatService := chat.NewService(client, logger.Named("session"), chatMetrics)
	go chatService.RunJanitor(ctx, cfg.Widget.SessionTTL, janitorInterval(cfg.Widget.SessionTTL))

	router := handler.NewRouter(handler.RouterConfig{
		ChatService: chatService,
		Logger:      logger.Named("http"),
		Gatherer:    registry,
		Limiter:     middleware.NewRateLimiter(cfg.Widget.RateLimit, cfg.Widget.RateBurst, logger.Named("ratelimit")),
		Web:         web.Handler(logger.Named("web")),
	})

	logger.Info("booking backend configured",
		zap.String("url", client.BaseURL()),
		zap.Duration("chat_timeout", cfg.Backend.ChatTimeout),
		zap.Duration("session_ttl", cfg.Widget.SessionTTL),
	)

	startServer(ctx, logger, cfg.Server, router)
}

// janitorInterval sweeps a few times per TTL without spinning on short TTLs.
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("doctor chat widget listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
