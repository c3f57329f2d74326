package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/handler/chat"
	"github.com/zhouzirui/doctor-chat/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/doctor-chat/internal/middleware"
	chatService "github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/pkg/utils"
)

// RouterConfig holds the dependencies of the widget server.
type RouterConfig struct {
	ChatService *chatService.Service
	Logger      *zap.Logger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Limiter throttles /api per client IP; nil disables limiting.
	Limiter *middlewarePkg.RateLimiter
	// Web serves the embedded widget page at /.
	Web http.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	respond := utils.NewResponder(logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	// 允许浏览器 widget 跨域调用 API
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         int((12 * time.Hour).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": cfg.ChatService.Count(),
		})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	chatHandler := chat.New(cfg.ChatService, logger.Named("chat"))
	streamHandler := stream.New(cfg.ChatService, logger.Named("stream"))
	wsHandler := stream.NewWebSocketHandler(streamHandler, cfg.ChatService, logger.Named("ws"))

	r.Route("/api", func(api chi.Router) {
		api.Use(cfg.Limiter.Middleware)

		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	if cfg.Web != nil {
		r.Handle("/*", cfg.Web)
	}

	return r
}
