package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/doctor-chat/pkg/utils"
)

// RateLimiter 按客户端 IP 限流。
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	logger  *zap.Logger
	respond utils.Responder

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器；perSecond <= 0 时返回 nil，即不限流。
func NewRateLimiter(perSecond float64, burst int, logger *zap.Logger) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		logger:   logger,
		respond:  utils.NewResponder(logger),
		limiters: make(map[string]*clientLimiter),
	}
}

// Allow 报告该客户端当前请求是否放行。
func (l *RateLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = entry
	}
	entry.lastSeen = now

	// 顺带清理长时间未出现的客户端，避免 map 无限增长。
	for key, other := range l.limiters {
		if now.Sub(other.lastSeen) > l.idle {
			delete(l.limiters, key)
		}
	}
	return entry.limiter.AllowN(now, 1)
}

// Middleware 返回 chi 兼容的中间件。
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if !l.Allow(client) {
			l.logger.Warn("rate limit exceeded", zap.String("client", client), zap.String("path", r.URL.Path))
			l.respond.Error(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
